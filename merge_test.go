package livecache

import (
	"testing"
	"time"
)

func provRecord(id string, createdAt time.Time) Record {
	return Record{
		ID:          id,
		UpdatedAt:   LocalTime(createdAt),
		Fields:      map[string]any{"name": "pending " + id},
		Provisional: &Provisional{CreatedAt: createdAt},
	}
}

func TestMergeFullReplaceRetainsUnexpiredProvisional(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cached := []Record{
		provRecord("tmp-1", now.Add(-10*time.Second)),
		{ID: "a", Fields: map[string]any{"name": "A"}},
	}
	pushed := []Record{
		{ID: "a", Fields: map[string]any{"name": "A2"}},
		{ID: "b", Fields: map[string]any{"name": "B"}},
	}

	merged, dropped := mergeSnapshot(cached, pushed, false, now, 30*time.Second)
	if len(dropped) != 0 {
		t.Fatalf("nothing should be dropped: %v", dropped)
	}
	if len(merged) != 3 {
		t.Fatalf("want provisional + 2 pushed, got %d", len(merged))
	}
	if merged[0].ID != "tmp-1" || !merged[0].IsProvisional() {
		t.Fatalf("provisional should lead the merged set: %+v", merged[0])
	}
	if merged[1].Fields["name"] != "A2" {
		t.Fatalf("full replace should take the pushed record verbatim")
	}
}

func TestMergeDropsExpiredProvisional(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cached := []Record{
		provRecord("tmp-old", now.Add(-31*time.Second)),
		provRecord("tmp-new", now.Add(-5*time.Second)),
	}

	merged, dropped := mergeSnapshot(cached, nil, false, now, 30*time.Second)
	if len(dropped) != 1 || dropped[0] != "tmp-old" {
		t.Fatalf("expected tmp-old dropped, got %v", dropped)
	}
	if len(merged) != 1 || merged[0].ID != "tmp-new" {
		t.Fatalf("only the fresh provisional should survive: %+v", merged)
	}
}

// Once the server pushes a record under the provisional's id, the optimistic
// copy is superseded and exactly one record remains.
func TestMergeConfirmedProvisionalReplacedOnce(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cached := []Record{provRecord("id-1", now.Add(-2*time.Second))}
	pushed := []Record{{
		ID:        "id-1",
		UpdatedAt: ServerTime(now),
		Fields:    map[string]any{"name": "confirmed"},
	}}

	for _, incremental := range []bool{false, true} {
		merged, dropped := mergeSnapshot(cached, pushed, incremental, now, 30*time.Second)
		if len(dropped) != 0 {
			t.Fatalf("incremental=%v: confirmation is not a drop: %v", incremental, dropped)
		}
		if len(merged) != 1 {
			t.Fatalf("incremental=%v: want exactly one record, got %d", incremental, len(merged))
		}
		if merged[0].IsProvisional() {
			t.Fatalf("incremental=%v: confirmed record must lose its marker", incremental)
		}
		if merged[0].Fields["name"] != "confirmed" {
			t.Fatalf("incremental=%v: server fields must win: %v", incremental, merged[0].Fields)
		}
	}
}

// An incremental push that carries only top-level fields must not disturb
// the cached items array or the aggregate count.
func TestMergeIncrementalKeepsItemsAndCountTogether(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cached := []Record{{
		ID:     "list-1",
		Fields: map[string]any{"name": "Fall 2024", "status": "open"},
		Items: []Item{
			{ID: "i1", Completed: true},
			{ID: "i2"},
		},
		CompletedCount: 1,
	}}
	pushed := []Record{{
		ID:        "list-1",
		UpdatedAt: ServerTime(now),
		Fields:    map[string]any{"status": "closed"},
	}}

	merged, _ := mergeSnapshot(cached, pushed, true, now, 30*time.Second)
	if len(merged) != 1 {
		t.Fatalf("want one record, got %d", len(merged))
	}
	got := merged[0]
	if got.Fields["status"] != "closed" || got.Fields["name"] != "Fall 2024" {
		t.Fatalf("field merge wrong: %v", got.Fields)
	}
	if len(got.Items) != 2 || got.CompletedCount != 1 {
		t.Fatalf("items/count pair must survive a field-only push: items=%d count=%d",
			len(got.Items), got.CompletedCount)
	}
	if !got.UpdatedAt.Equal(ServerTime(now)) {
		t.Fatalf("pushed updatedAt should be taken")
	}
}

// When the push does carry items, the pair moves together from the push.
func TestMergeIncrementalTakesPushedItemsWithCount(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cached := []Record{{
		ID:             "list-1",
		Items:          []Item{{ID: "i1"}},
		CompletedCount: 0,
	}}
	pushed := []Record{{
		ID:             "list-1",
		Items:          []Item{{ID: "i1", Completed: true}, {ID: "i2", Completed: true}},
		CompletedCount: 2,
	}}

	merged, _ := mergeSnapshot(cached, pushed, true, now, 30*time.Second)
	if len(merged[0].Items) != 2 || merged[0].CompletedCount != 2 {
		t.Fatalf("pushed items+count should replace the pair: items=%d count=%d",
			len(merged[0].Items), merged[0].CompletedCount)
	}
}

func TestMergeIncrementalAppendsUnknownRecords(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cached := []Record{{ID: "a"}}
	pushed := []Record{{ID: "b", Fields: map[string]any{"name": "new"}}}

	merged, _ := mergeSnapshot(cached, pushed, true, now, 30*time.Second)
	if len(merged) != 2 || merged[0].ID != "a" || merged[1].ID != "b" {
		t.Fatalf("never-seen pushed records should append: %+v", merged)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cached := []Record{{
		ID:     "a",
		Fields: map[string]any{"name": "old"},
		Items:  []Item{{ID: "i1"}},
	}}
	pushed := []Record{{ID: "a", Fields: map[string]any{"name": "new"}}}

	merged, _ := mergeSnapshot(cached, pushed, true, now, 30*time.Second)
	merged[0].Fields["name"] = "mutated"
	merged[0].Items[0].Completed = true

	if cached[0].Fields["name"] != "old" || cached[0].Items[0].Completed {
		t.Fatalf("merge must deep-copy, cached input was mutated: %+v", cached[0])
	}
}
