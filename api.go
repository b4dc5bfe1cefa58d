package livecache

import (
	"context"
	"time"
)

// Options assemble one resource kind's full coherence stack.
// Kind, Store and Remote are required; everything else has defaults.
type Options struct {
	// Required
	Kind   KindConfig
	Store  *Store[[]Record]
	Remote Remote

	// Loader backs GetOrLoad on a cache miss. Nil => QueryMany on the scope.
	Loader Loader

	Logger Logger
	Hooks  Hooks
	Grace  time.Duration // provisional grace period; 0 => DefaultGracePeriod
	Now    func() time.Time
	NewID  func() string

	// See MutatorOptions for the delete policy and dependent-cache hooks.
	AssumeDeleteSuccess func(err error) bool
	ClearDependents     func(ctx context.Context, id string)
}

// Resource is the per-kind consumer surface: cache-first reads, one live
// subscription per scope, and optimistic mutations. The district, shoot
// list, critique and channel services are instances of this with
// different KindConfigs.
type Resource struct {
	cache  *ResourceCache
	live   *Reconciler
	mutate *Mutator
}

// NewResource wires a cache service, a subscription reconciler and a
// mutation coordinator together for one kind. The coordinator's optimistic
// states are echoed through the reconciler so live consumers see them
// before the remote write resolves.
func NewResource(opts Options) (*Resource, error) {
	loader := opts.Loader
	if loader == nil && opts.Remote != nil {
		kind := opts.Kind.Kind
		remote := opts.Remote
		loader = func(ctx context.Context, scope string) ([]Record, error) {
			return remote.QueryMany(ctx, kind, Query{Scope: scope})
		}
	}

	cache, err := NewResourceCache(CacheOptions{
		Config: opts.Kind,
		Store:  opts.Store,
		Loader: loader,
		Logger: opts.Logger,
		Hooks:  opts.Hooks,
		Grace:  opts.Grace,
		Now:    opts.Now,
	})
	if err != nil {
		return nil, err
	}

	live, err := NewReconciler(ReconcilerOptions{
		Cache:  cache,
		Remote: opts.Remote,
		Logger: opts.Logger,
		Hooks:  opts.Hooks,
		Grace:  opts.Grace,
		Now:    opts.Now,
	})
	if err != nil {
		return nil, err
	}

	mutate, err := NewMutator(MutatorOptions{
		Cache:               cache,
		Remote:              opts.Remote,
		Logger:              opts.Logger,
		Hooks:               opts.Hooks,
		Grace:               opts.Grace,
		Now:                 opts.Now,
		NewID:               opts.NewID,
		AssumeDeleteSuccess: opts.AssumeDeleteSuccess,
		ClearDependents:     opts.ClearDependents,
		OnLocalChange:       live.publishLocal,
	})
	if err != nil {
		return nil, err
	}

	return &Resource{cache: cache, live: live, mutate: mutate}, nil
}

// Cache exposes the per-kind cache service.
func (r *Resource) Cache() *ResourceCache { return r.cache }

// Live exposes the subscription reconciler.
func (r *Resource) Live() *Reconciler { return r.live }

// Mutate exposes the optimistic mutation coordinator.
func (r *Resource) Mutate() *Mutator { return r.mutate }

// GetOrLoad is cache-first with remote fallback and cache fill.
func (r *Resource) GetOrLoad(ctx context.Context, scope string) ([]Record, error) {
	return r.cache.GetOrLoad(ctx, scope)
}

// SubscribeLive opens (or replaces) the live subscription for a scope.
func (r *Resource) SubscribeLive(ctx context.Context, scope string, watermark Timestamp, onUpdate func(records []Record, incremental bool), onErr func(error)) (CancelFunc, error) {
	return r.live.SubscribeLive(ctx, scope, watermark, onUpdate, onErr)
}

// Close tears down every live subscription for this resource. The shared
// store is owned by the caller and stays open.
func (r *Resource) Close() {
	r.live.Close()
}
