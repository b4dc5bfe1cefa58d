package livecache

import "time"

// mergeSnapshot reconciles a pushed server snapshot with the cached
// collection for one scope.
//
// Full-replace (incremental=false): the push wholly supersedes cached
// state. Incremental (incremental=true): pushed records are deep-merged
// field-by-field into the cached aggregate, since a watermarked push may carry
// only top-level fields, not nested items.
//
// In both modes, cached provisional records not yet confirmed by the server
// are retained until a server record with the same id appears or the grace
// period runs out; expired provisionals are purged even if unconfirmed.
// The push is never ordered relative to the local optimistic insert, which
// is exactly why the grace window exists.
func mergeSnapshot(cached, pushed []Record, incremental bool, now time.Time, grace time.Duration) (merged []Record, droppedProvisionals []string) {
	pushedByID := make(map[string]int, len(pushed))
	for i, r := range pushed {
		pushedByID[r.ID] = i
	}

	// provisionals to carry over, in their cached (prepended) order
	var retained []Record
	for _, r := range cached {
		if !r.IsProvisional() {
			continue
		}
		if _, confirmed := pushedByID[r.ID]; confirmed {
			continue // server record supersedes it below
		}
		if r.Provisional.Expired(now, grace) {
			droppedProvisionals = append(droppedProvisionals, r.ID)
			continue
		}
		retained = append(retained, r)
	}

	if !incremental {
		merged = make([]Record, 0, len(retained)+len(pushed))
		merged = append(merged, retained...)
		merged = append(merged, pushed...)
		return merged, droppedProvisionals
	}

	retainedIDs := make(map[string]bool, len(retained))
	for _, r := range retained {
		retainedIDs[r.ID] = true
	}
	droppedIDs := make(map[string]bool, len(droppedProvisionals))
	for _, id := range droppedProvisionals {
		droppedIDs[id] = true
	}

	seen := make(map[string]bool, len(cached))
	merged = make([]Record, 0, len(cached)+len(pushed))
	for _, r := range cached {
		if r.IsProvisional() && (retainedIDs[r.ID] || droppedIDs[r.ID]) {
			if retainedIDs[r.ID] {
				merged = append(merged, r)
				seen[r.ID] = true
			}
			continue
		}
		if i, ok := pushedByID[r.ID]; ok {
			merged = append(merged, mergeRecord(r, pushed[i]))
		} else {
			merged = append(merged, r)
		}
		seen[r.ID] = true
	}
	// records the watermark query surfaced that we had never cached
	for _, r := range pushed {
		if !seen[r.ID] {
			merged = append(merged, r)
		}
	}
	return merged, droppedProvisionals
}

// mergeRecord patches the pushed record into the cached one field by field.
// The items array and the aggregate completed count move together: when the
// push carries no items, both keep their cached values so a reader can
// never observe the pair out of sync.
func mergeRecord(old, pushed Record) Record {
	out := old.Clone()
	out.Provisional = nil // the server has spoken for this id

	if !pushed.UpdatedAt.IsZero() {
		out.UpdatedAt = pushed.UpdatedAt
	}
	for k, v := range pushed.Fields {
		if out.Fields == nil {
			out.Fields = make(map[string]any, len(pushed.Fields))
		}
		out.Fields[k] = cloneValue(v)
	}
	if pushed.Items != nil {
		out.Items = make([]Item, len(pushed.Items))
		for i, it := range pushed.Items {
			out.Items[i] = it.Clone()
		}
		out.CompletedCount = pushed.CompletedCount
	}
	return out
}
