package livecache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MutatorOptions configure a per-kind optimistic mutation coordinator.
type MutatorOptions struct {
	// Required
	Cache  *ResourceCache
	Remote Remote

	Logger Logger
	Hooks  Hooks
	Grace  time.Duration // provisional grace period; 0 => DefaultGracePeriod
	Now    func() time.Time

	// NewID generates client-side record ids for creates. The id is sent
	// with the remote create, so the server record comes back under the
	// same identity and the reconciler's merge can recognize and replace
	// the provisional. Defaults to uuid.NewString.
	NewID func() string

	// AssumeDeleteSuccess, when set, is consulted after a remote delete is
	// rejected on permissions. Returning true treats the delete as having
	// succeeded: the remote security layer may reject the read-back of a
	// delete's side effects while the delete itself went through, and some
	// elevated roles are known to be allowed by policy. Nil disables the
	// branch.
	AssumeDeleteSuccess func(err error) bool

	// ClearDependents invalidates sub-caches keyed by a deleted record's id
	// (e.g. feedback-for-critique). Called after a confirmed or assumed
	// delete.
	ClearDependents func(ctx context.Context, id string)

	// OnLocalChange observes every optimistic cache state the coordinator
	// produces, including rollbacks. Wired to the reconciler's local echo
	// by NewResource so live consumers see optimistic state before the
	// remote call resolves.
	OnLocalChange func(scope string, records []Record)
}

// Mutator applies local mutations immediately (cache + consumer echo),
// issues the remote write, and rolls back on failure. Creates are tagged
// provisional with a grace window so they survive being absent from the
// next server snapshot; see mergeSnapshot for the reconciliation side.
type Mutator struct {
	kind   string
	cache  *ResourceCache
	remote Remote
	log    Logger
	hooks  Hooks
	grace  time.Duration
	now    func() time.Time
	newID  func() string

	assumeDeleteSuccess func(err error) bool
	clearDependents     func(ctx context.Context, id string)
	onLocalChange       func(scope string, records []Record)
}

// NewMutator validates options and builds a coordinator for the cache's kind.
func NewMutator(opts MutatorOptions) (*Mutator, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("livecache: cache is required")
	}
	if opts.Remote == nil {
		return nil, fmt.Errorf("livecache: remote is required")
	}
	m := &Mutator{
		kind:                opts.Cache.Kind(),
		cache:               opts.Cache,
		remote:              opts.Remote,
		assumeDeleteSuccess: opts.AssumeDeleteSuccess,
		clearDependents:     opts.ClearDependents,
		onLocalChange:       opts.OnLocalChange,
	}
	m.log = coalesce[Logger](opts.Logger, NopLogger{})
	m.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	m.grace = coalesce[time.Duration](opts.Grace, DefaultGracePeriod)
	if opts.Now != nil {
		m.now = opts.Now
	} else {
		m.now = time.Now
	}
	if opts.NewID != nil {
		m.newID = opts.NewID
	} else {
		m.newID = uuid.NewString
	}
	return m, nil
}

// Create builds a provisional record, prepends it to the scope's cached
// collection, then issues the remote create. The provisional stays in cache
// after a successful return: the server push may arrive later, and the
// reconciler's merge replaces it by identity. If the push never comes, the
// grace period drops it. A failed remote create removes it immediately.
func (m *Mutator) Create(ctx context.Context, scope string, rec Record) (Record, error) {
	if scope == "" {
		return Record{}, fmt.Errorf("livecache: create %s: empty scope: %w", m.kind, ErrValidation)
	}
	if rec.ID != "" {
		return Record{}, fmt.Errorf("livecache: create %s: id must be empty: %w", m.kind, ErrValidation)
	}

	now := m.now()
	rec.ID = m.newID()
	rec.UpdatedAt = LocalTime(now)
	rec.Provisional = &Provisional{CreatedAt: now}

	cached := m.cache.snapshot(ctx, scope)
	updated := append([]Record{rec.Clone()}, cached...)
	m.applyLocal(ctx, scope, updated)

	send := rec.Clone()
	send.Provisional = nil // marker is local bookkeeping, never persisted remotely
	created, err := m.remote.Create(ctx, m.kind, send)
	if err != nil {
		m.rollbackCreate(ctx, scope, rec.ID)
		return Record{}, &WriteError{Op: "create", Kind: m.kind, Scope: scope, Err: err}
	}
	return created, nil
}

// Update snapshots the pre-mutation collection, applies the partial change
// to cache synchronously, then issues the remote update. On rejection the
// exact pre-mutation snapshot is restored (no flicker through intermediate
// states) and the error is surfaced. On success nothing further happens;
// the eventual push reconfirms identical or newer data.
func (m *Mutator) Update(ctx context.Context, scope, id string, partial map[string]any) error {
	if len(partial) == 0 {
		return fmt.Errorf("livecache: update %s %q: empty partial: %w", m.kind, id, ErrValidation)
	}

	cached := m.cache.snapshot(ctx, scope)
	idx := -1
	for i, r := range cached {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("livecache: update %s %q: %w", m.kind, id, ErrNotFound)
	}

	snap := CloneRecords(cached)
	updated := CloneRecords(cached)
	rec := &updated[idx]
	if rec.Fields == nil {
		rec.Fields = make(map[string]any, len(partial))
	}
	for k, v := range partial {
		rec.Fields[k] = cloneValue(v)
	}
	rec.UpdatedAt = LocalTime(m.now())
	m.applyLocal(ctx, scope, updated)

	if err := m.remote.Update(ctx, m.kind, id, partial); err != nil {
		m.applyLocal(ctx, scope, snap)
		return &WriteError{Op: "update", Kind: m.kind, Scope: scope, Err: err}
	}
	return nil
}

// Delete issues the remote delete first; deletion is not applied
// optimistically. One carve-out: a permission rejection may still be
// treated as success when the configured policy says the acting principal
// is allowed by role (the security layer can reject the read-back of a
// delete whose write went through). That path is logged apart from genuine
// failures. On confirmed or assumed success the record is purged from
// cache and dependent sub-caches are cleared.
func (m *Mutator) Delete(ctx context.Context, scope, id string) error {
	if err := m.remote.Delete(ctx, m.kind, id); err != nil {
		if IsPermissionDenied(err) && m.assumeDeleteSuccess != nil && m.assumeDeleteSuccess(err) {
			m.hooks.AssumedDeleteSuccess(m.kind, id)
			m.log.Warn("delete rejected on permissions, assumed successful by role policy", Fields{
				"kind": m.kind, "scope": scope, "id": id, "err": err,
			})
		} else {
			return &WriteError{Op: "delete", Kind: m.kind, Scope: scope, Err: err}
		}
	}

	cached := m.cache.snapshot(ctx, scope)
	updated := make([]Record, 0, len(cached))
	for _, r := range cached {
		if r.ID != id {
			updated = append(updated, r)
		}
	}
	m.applyLocal(ctx, scope, updated)

	if m.clearDependents != nil {
		m.clearDependents(ctx, id)
	}
	return nil
}

// BatchUpdateItems applies a batch of sub-item updates optimistically (the
// aggregate counter delta is computed in one pass with the item changes),
// then issues one remote batched write. On rejection it rolls back to the
// pre-batch snapshot and forces a full remote reload for the scope;
// partial-failure granularity is not observable from the batch API, so
// field-by-field rollback is not attempted.
func (m *Mutator) BatchUpdateItems(ctx context.Context, scope string, updates []ItemUpdate) error {
	if len(updates) == 0 {
		return fmt.Errorf("livecache: batch update %s: empty batch: %w", m.kind, ErrValidation)
	}
	for _, u := range updates {
		if u.ItemID == "" {
			return fmt.Errorf("livecache: batch update %s: item id missing: %w", m.kind, ErrValidation)
		}
	}

	cached := m.cache.snapshot(ctx, scope)
	if len(cached) == 0 {
		return fmt.Errorf("livecache: batch update %s (scope %q): %w", m.kind, scope, ErrNotFound)
	}
	snap := CloneRecords(cached)

	ops := m.batchOps(cached, updates)
	if len(ops) == 0 {
		return fmt.Errorf("livecache: batch update %s: no update matched an item: %w", m.kind, ErrNotFound)
	}

	if !m.cache.UpdateCachedItems(ctx, scope, updates) {
		return fmt.Errorf("livecache: batch update %s (scope %q): %w", m.kind, scope, ErrNotFound)
	}
	m.notify(scope, m.cache.snapshot(ctx, scope))

	if err := m.remote.BatchWrite(ctx, ops); err != nil {
		m.applyLocal(ctx, scope, snap)
		m.forceReload(ctx, scope)
		return &WriteError{Op: "batch", Kind: m.kind, Scope: scope, Err: err}
	}
	return nil
}

func (m *Mutator) batchOps(cached []Record, updates []ItemUpdate) []WriteOp {
	owner := make(map[string]string) // item id -> record id
	for _, r := range cached {
		for _, it := range r.Items {
			owner[it.ID] = r.ID
		}
	}

	ops := make([]WriteOp, 0, len(updates))
	for _, u := range updates {
		recID, ok := owner[u.ItemID]
		if !ok {
			continue
		}
		partial := make(map[string]any, len(u.Fields)+2)
		for k, v := range u.Fields {
			partial[k] = v
		}
		if u.Completed != nil {
			partial["completed"] = *u.Completed
		}
		if u.CompletedDate != nil {
			partial["completedDate"] = u.CompletedDate.ISO()
		}
		ops = append(ops, WriteOp{Kind: m.kind, ID: recID, ItemID: u.ItemID, Partial: partial})
	}
	return ops
}

func (m *Mutator) rollbackCreate(ctx context.Context, scope, id string) {
	cached := m.cache.snapshot(ctx, scope)
	updated := make([]Record, 0, len(cached))
	for _, r := range cached {
		if r.ID != id {
			updated = append(updated, r)
		}
	}
	m.applyLocal(ctx, scope, updated)
}

func (m *Mutator) forceReload(ctx context.Context, scope string) {
	m.cache.ClearScope(ctx, scope)
	if m.cache.loader == nil {
		return
	}
	if _, err := m.cache.GetOrLoad(ctx, scope); err != nil {
		m.log.Warn("forced reload after batch rollback failed", Fields{
			"kind": m.kind, "scope": scope, "err": err,
		})
	}
}

func (m *Mutator) applyLocal(ctx context.Context, scope string, records []Record) {
	m.cache.SetCached(ctx, scope, records)
	m.notify(scope, records)
}

func (m *Mutator) notify(scope string, records []Record) {
	if m.onLocalChange != nil {
		m.onLocalChange(scope, records)
	}
}
