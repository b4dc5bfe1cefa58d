package livecache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// subscription lifecycle per (kind, scope)
type subState uint8

const (
	stateUnsubscribed subState = iota
	stateSubscribing
	stateActive
	stateErrored
)

type liveSub struct {
	scope       string
	incremental bool
	onUpdate    func(records []Record, incremental bool)

	cancel CancelFunc

	// pushMu serializes merge+write+notify for this stream; the remote
	// delivers snapshots sequentially, but local echoes may interleave.
	pushMu sync.Mutex
	state  subState
}

// ReconcilerOptions configure a per-kind subscription reconciler.
type ReconcilerOptions struct {
	// Required
	Cache  *ResourceCache
	Remote Remote

	Logger Logger
	Hooks  Hooks
	Grace  time.Duration // provisional grace period; 0 => DefaultGracePeriod
	Now    func() time.Time
}

// Reconciler owns one active real-time subscription per scope. Every push
// is merged with any still-provisional local records, written to cache, and
// only then fanned out to the consumer, so cache and "latest known" never
// diverge. Stream failures surface through the error callback and end the
// subscription; retrying is the consumer's call (typically via cache or
// remote reload).
type Reconciler struct {
	kind   string
	cache  *ResourceCache
	remote Remote
	log    Logger
	hooks  Hooks
	grace  time.Duration
	now    func() time.Time

	mu   sync.Mutex
	subs map[string]*liveSub
}

// NewReconciler validates options and builds a reconciler for the cache's kind.
func NewReconciler(opts ReconcilerOptions) (*Reconciler, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("livecache: cache is required")
	}
	if opts.Remote == nil {
		return nil, fmt.Errorf("livecache: remote is required")
	}
	r := &Reconciler{
		kind:   opts.Cache.Kind(),
		cache:  opts.Cache,
		remote: opts.Remote,
		subs:   make(map[string]*liveSub),
	}
	r.log = coalesce[Logger](opts.Logger, NopLogger{})
	r.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	r.grace = coalesce[time.Duration](opts.Grace, DefaultGracePeriod)
	if opts.Now != nil {
		r.now = opts.Now
	} else {
		r.now = time.Now
	}
	return r, nil
}

// SubscribeLive opens (or replaces) the live subscription for a scope.
//
// A zero watermark is a cold start: pushes arrive as full snapshots and
// wholly replace cached state. A non-zero watermark scopes the remote query
// to records updated after it; pushes are then partial and deep-merged into
// the cached aggregate.
//
// If the scope already has a subscription, it is torn down first: exactly
// one handle per scope, no duplicate notifications. The returned
// unsubscribe func is idempotent.
func (r *Reconciler) SubscribeLive(ctx context.Context, scope string, watermark Timestamp, onUpdate func(records []Record, incremental bool), onErr func(error)) (CancelFunc, error) {
	if onUpdate == nil {
		return nil, fmt.Errorf("livecache: onUpdate is required: %w", ErrValidation)
	}

	sub := &liveSub{
		scope:       scope,
		incremental: !watermark.IsZero(),
		onUpdate:    onUpdate,
		state:       stateSubscribing,
	}

	r.mu.Lock()
	var oldCancel CancelFunc
	if old, ok := r.subs[scope]; ok {
		oldCancel = r.teardownLocked(old)
	}
	r.subs[scope] = sub
	r.mu.Unlock()
	if oldCancel != nil {
		oldCancel()
	}

	q := Query{Scope: scope, UpdatedAfter: watermark}
	cancel, err := r.remote.Subscribe(ctx, r.kind, q,
		func(records []Record) { r.handlePush(sub, records) },
		func(streamErr error) { r.handleStreamError(sub, streamErr, onErr) },
	)
	if err != nil {
		r.mu.Lock()
		if r.subs[scope] == sub {
			delete(r.subs, scope)
		}
		sub.state = stateUnsubscribed
		r.mu.Unlock()
		return nil, fmt.Errorf("livecache: subscribe %s (scope %q): %w", r.kind, scope, err)
	}

	r.mu.Lock()
	if r.subs[scope] != sub {
		// superseded while the remote call was in flight; undo ours
		r.mu.Unlock()
		cancel()
		return func() {}, nil
	}
	sub.cancel = cancel
	if sub.state == stateUnsubscribed {
		// torn down before the handle arrived
		r.mu.Unlock()
		cancel()
		return func() {}, nil
	}
	r.mu.Unlock()

	return func() { r.unsubscribe(scope, sub) }, nil
}

// Unsubscribe tears down the active subscription for a scope, if any.
// Safe to call repeatedly.
func (r *Reconciler) Unsubscribe(scope string) {
	r.mu.Lock()
	var cancel CancelFunc
	if sub, ok := r.subs[scope]; ok {
		cancel = r.teardownLocked(sub)
	}
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close tears down every active subscription.
func (r *Reconciler) Close() {
	r.mu.Lock()
	var cancels []CancelFunc
	for _, sub := range r.subs {
		if c := r.teardownLocked(sub); c != nil {
			cancels = append(cancels, c)
		}
	}
	r.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// publishLocal echoes an optimistic local collection to the scope's live
// consumer, if one is attached. Cache has already been written by the
// mutation coordinator; this is notification only.
func (r *Reconciler) publishLocal(scope string, records []Record) {
	r.mu.Lock()
	sub, ok := r.subs[scope]
	r.mu.Unlock()
	if !ok {
		return
	}
	sub.pushMu.Lock()
	defer sub.pushMu.Unlock()
	// state is guarded by r.mu; re-check under it, teardown may have run
	// concurrently on another goroutine
	r.mu.Lock()
	live := r.subs[scope] == sub && sub.state != stateUnsubscribed && sub.state != stateErrored
	r.mu.Unlock()
	if !live {
		return
	}
	sub.onUpdate(records, false)
}

func (r *Reconciler) unsubscribe(scope string, sub *liveSub) {
	r.mu.Lock()
	var cancel CancelFunc
	if r.subs[scope] == sub {
		cancel = r.teardownLocked(sub)
	}
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// teardownLocked is idempotent: a sub already unsubscribed is left alone.
// It only unlinks; the returned cancel func must be invoked after r.mu is
// released, since a remote's cancel may re-enter the stream callbacks
// synchronously.
func (r *Reconciler) teardownLocked(sub *liveSub) CancelFunc {
	if sub.state == stateUnsubscribed {
		return nil
	}
	sub.state = stateUnsubscribed
	if r.subs[sub.scope] == sub {
		delete(r.subs, sub.scope)
	}
	return sub.cancel
}

func (r *Reconciler) handlePush(sub *liveSub, records []Record) {
	r.mu.Lock()
	if r.subs[sub.scope] != sub || sub.state == stateUnsubscribed {
		r.mu.Unlock()
		return // stale push after teardown or replacement
	}
	if sub.state == stateSubscribing {
		sub.state = stateActive
	}
	r.mu.Unlock()

	sub.pushMu.Lock()
	defer sub.pushMu.Unlock()

	// Late-arriving pushes must still land in cache even if the initiating
	// consumer is gone by now; the cache is process-wide.
	ctx := context.Background()

	cached := r.cache.snapshot(ctx, sub.scope)
	merged, dropped := mergeSnapshot(cached, records, sub.incremental, r.now(), r.grace)
	r.cache.SetCached(ctx, sub.scope, merged)
	for _, id := range dropped {
		r.hooks.ProvisionalDropped(r.kind, id)
	}

	sub.onUpdate(merged, sub.incremental)
}

func (r *Reconciler) handleStreamError(sub *liveSub, streamErr error, onErr func(error)) {
	r.mu.Lock()
	current := r.subs[sub.scope] == sub && sub.state != stateUnsubscribed
	var cancel CancelFunc
	if current {
		sub.state = stateErrored
		cancel = r.teardownLocked(sub)
	}
	r.mu.Unlock()
	if !current {
		return
	}
	if cancel != nil {
		cancel()
	}

	r.log.Warn("subscription stream failed", Fields{
		"kind": r.kind, "scope": sub.scope, "err": streamErr,
	})
	if onErr != nil {
		onErr(streamErr)
	}
}
