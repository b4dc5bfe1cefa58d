package livecache

import "time"

// Record is the generalized resource document this layer caches and syncs:
// a district, a yearbook shoot list, a critique, a chat channel. Kind-specific
// data lives in Fields and passes through serialization untouched, so newer
// server fields survive older clients.
//
// Items is non-nil only for list-shaped kinds. CompletedCount is the parent's
// aggregate over Items and must never be observed out of sync with them.
type Record struct {
	ID             string         `json:"id" cbor:"id" msgpack:"id"`
	UpdatedAt      Timestamp      `json:"updatedAt" cbor:"updatedAt" msgpack:"updatedAt"`
	Fields         map[string]any `json:"fields,omitempty" cbor:"fields,omitempty" msgpack:"fields,omitempty"`
	Items          []Item         `json:"items,omitempty" cbor:"items,omitempty" msgpack:"items,omitempty"`
	CompletedCount int            `json:"completedCount" cbor:"completedCount" msgpack:"completedCount"`
	Provisional    *Provisional   `json:"provisional,omitempty" cbor:"provisional,omitempty" msgpack:"provisional,omitempty"`
}

// Item is one sub-item of a list-shaped record (a shoot on a shoot list,
// a feedback entry on a critique).
type Item struct {
	ID            string         `json:"id" cbor:"id" msgpack:"id"`
	Completed     bool           `json:"completed" cbor:"completed" msgpack:"completed"`
	CompletedDate *Timestamp     `json:"completedDate,omitempty" cbor:"completedDate,omitempty" msgpack:"completedDate,omitempty"`
	Fields        map[string]any `json:"fields,omitempty" cbor:"fields,omitempty" msgpack:"fields,omitempty"`
}

// Provisional marks a record created locally and not yet confirmed by the
// server. It keeps the record alive through merges until a server record with
// the same id appears or the grace period runs out.
type Provisional struct {
	CreatedAt time.Time `json:"createdAt" cbor:"createdAt" msgpack:"createdAt"`
}

// Expired reports whether the grace period has run out. Expired provisionals
// are dropped even if unconfirmed; that is a leak-prevention boundary, not a
// correctness guarantee.
func (p *Provisional) Expired(now time.Time, grace time.Duration) bool {
	if p == nil {
		return false
	}
	return now.Sub(p.CreatedAt) > grace
}

func (r Record) IsProvisional() bool { return r.Provisional != nil }

// Clone deep-copies the record so snapshots and rollbacks never alias live
// state. Fields values are copied recursively for maps and slices.
func (r Record) Clone() Record {
	out := r
	out.Fields = cloneFields(r.Fields)
	if r.Items != nil {
		out.Items = make([]Item, len(r.Items))
		for i, it := range r.Items {
			out.Items[i] = it.Clone()
		}
	}
	if r.Provisional != nil {
		p := *r.Provisional
		out.Provisional = &p
	}
	return out
}

func (it Item) Clone() Item {
	out := it
	out.Fields = cloneFields(it.Fields)
	if it.CompletedDate != nil {
		d := *it.CompletedDate
		out.CompletedDate = &d
	}
	return out
}

// CloneRecords deep-copies a whole scope collection.
func CloneRecords(recs []Record) []Record {
	if recs == nil {
		return nil
	}
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}

func cloneFields(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return cloneFields(vv)
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
