package livecache

import "context"

// Remote is the consumed surface of the remote document store. The store
// itself (query planning, transport, persistence) is an external
// collaborator; livecache only needs this narrow contract.
//
// Implementations classify their failures by wrapping the package
// sentinels: ErrNotFound, ErrPermissionDenied, ErrRemoteUnavailable.
type Remote interface {
	// FetchOne returns a single record, or an error wrapping ErrNotFound.
	FetchOne(ctx context.Context, kind, id string) (Record, error)

	// QueryMany returns records matching q.
	QueryMany(ctx context.Context, kind string, q Query) ([]Record, error)

	// Subscribe opens a push stream for q. onNext receives snapshots until
	// the returned cancel func runs or the stream fails, after which onErr
	// fires once and no further snapshots arrive. Implementations deliver
	// snapshots for one subscription sequentially.
	Subscribe(ctx context.Context, kind string, q Query, onNext func([]Record), onErr func(error)) (CancelFunc, error)

	// Create persists a record (id supplied by the caller) and returns the
	// authoritative copy with the server timestamp.
	Create(ctx context.Context, kind string, rec Record) (Record, error)

	// Update applies a partial field update to one record.
	Update(ctx context.Context, kind, id string, partial map[string]any) error

	// Delete removes one record.
	Delete(ctx context.Context, kind, id string) error

	// BatchWrite applies a set of sub-item updates as one remote batch.
	// Partial-failure granularity is not observable from this API.
	BatchWrite(ctx context.Context, ops []WriteOp) error
}

// CancelFunc tears down a subscription. Must be idempotent.
type CancelFunc = func()

// Query scopes a fetch or subscription.
type Query struct {
	// Scope is the composite scope key (e.g. "<schoolID>_<schoolYear>").
	Scope string

	// UpdatedAfter, when non-zero, restricts the query to records updated
	// after the watermark. A watermarked subscription delivers partial
	// snapshots and is reconciled by incremental merge.
	UpdatedAfter Timestamp

	OrderBy string
	Desc    bool
}

// WriteOp is one element of a remote batch write.
type WriteOp struct {
	Kind    string
	ID      string // parent record
	ItemID  string // sub-item target, empty for record-level ops
	Partial map[string]any
}

// Loader fetches the authoritative collection for a scope on a cache miss.
type Loader func(ctx context.Context, scope string) ([]Record, error)
