package livecache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// CacheStatus qualifies a cache read. Miss means definitely absent (or
// expired); Unavailable means the cache layer itself failed and nothing can
// be said about the key. Callers treat both as "go to the remote", but the
// distinction matters for accounting and debugging.
type CacheStatus uint8

const (
	StatusMiss CacheStatus = iota
	StatusHit
	StatusUnavailable
)

// ItemUpdate is one partial update to a sub-item of a cached list.
type ItemUpdate struct {
	ItemID        string
	Completed     *bool
	CompletedDate *Timestamp
	Fields        map[string]any
}

// CacheOptions configure one per-kind resource cache.
type CacheOptions struct {
	// Required
	Config KindConfig
	Store  *Store[[]Record]

	// Loader backs GetOrLoad. Optional; without it GetOrLoad only serves hits.
	Loader Loader

	Logger Logger
	Hooks  Hooks
	Grace  time.Duration // provisional grace period; 0 => DefaultGracePeriod
	Now    func() time.Time
}

// ResourceCache is the per-kind cache façade: get/set/clear/update-in-place
// over the durable store, with the kind's size limits and key scheme. It
// never fetches remotely on its own; GetOrLoad is the one cache-first,
// remote-fallback entry point, and it delegates the fetch to the Loader.
//
// All cache failures are absorbed here: a broken cache degrades to misses,
// never to errors in the caller's flow.
type ResourceCache struct {
	cfg    KindConfig
	store  *Store[[]Record]
	loader Loader
	log    Logger
	hooks  Hooks
	grace  time.Duration
	now    func() time.Time
	sf     singleflight.Group
}

// NewResourceCache validates options and builds a per-kind cache service.
func NewResourceCache(opts CacheOptions) (*ResourceCache, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("livecache: store is required")
	}
	if opts.Config.Kind == "" {
		return nil, fmt.Errorf("livecache: kind is required")
	}

	c := &ResourceCache{
		cfg:    opts.Config,
		store:  opts.Store,
		loader: opts.Loader,
	}
	c.cfg.MaxAge = coalesce[time.Duration](c.cfg.MaxAge, DefaultMaxAge)
	c.cfg.MaxBytes = coalesce[int](c.cfg.MaxBytes, DefaultMaxBytes)
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.grace = coalesce[time.Duration](opts.Grace, DefaultGracePeriod)
	if opts.Now != nil {
		c.now = opts.Now
	} else {
		c.now = time.Now
	}
	return c, nil
}

// Kind returns the configured resource kind.
func (c *ResourceCache) Kind() string { return c.cfg.Kind }

// GetCached returns the live, valid collection for a scope, or nothing.
// Expired provisional records are pruned on the way out. Hit/miss
// accounting hooks fire on every call; they never block. Never fails.
func (c *ResourceCache) GetCached(ctx context.Context, scope string) ([]Record, CacheStatus) {
	recs, ok, err := c.store.Get(ctx, c.cfg.Kind, scope, c.cfg.MaxAge)
	if err != nil {
		c.log.Debug("cache unavailable, treating as miss", Fields{
			"kind": c.cfg.Kind, "scope": scope, "err": err,
		})
		c.hooks.CacheMiss(c.cfg.Kind)
		return nil, StatusUnavailable
	}
	if !ok {
		c.hooks.CacheMiss(c.cfg.Kind)
		return nil, StatusMiss
	}

	pruned, dropped := c.pruneExpiredProvisionals(recs)
	if len(dropped) > 0 {
		// keep the stored copy in step with what readers see
		c.SetCached(ctx, scope, pruned)
		for _, id := range dropped {
			c.hooks.ProvisionalDropped(c.cfg.Kind, id)
		}
	}

	c.hooks.CacheHit(c.cfg.Kind, hitCount(pruned))
	return pruned, StatusHit
}

// SetCached writes a collection through the durable store, truncating item
// arrays to the kind's ceiling first. Storage failures are logged and
// absorbed.
func (c *ResourceCache) SetCached(ctx context.Context, scope string, recs []Record) {
	if c.cfg.MaxItems > 0 {
		recs = c.truncateItems(scope, recs)
	}
	if err := c.store.Set(ctx, c.cfg.Kind, scope, recs, c.cfg.MaxAge, c.cfg.MaxBytes); err != nil {
		c.log.Debug("cache write failed", Fields{
			"kind": c.cfg.Kind, "scope": scope, "err": err,
		})
	}
}

// UpdateCachedItems applies a batch of partial sub-item updates to the
// cached collection in one pass. The aggregate completed count and the item
// changes land in a single cache write, so a reader can never observe them
// out of sync. Per update, a completed-flag transition adjusts the parent
// aggregate by ±1, floored at zero. Returns false when nothing was cached
// or no update matched an item.
func (c *ResourceCache) UpdateCachedItems(ctx context.Context, scope string, updates []ItemUpdate) bool {
	recs, ok, err := c.store.Get(ctx, c.cfg.Kind, scope, c.cfg.MaxAge)
	if err != nil || !ok || len(updates) == 0 {
		return false
	}

	out := CloneRecords(recs)
	touched := false
	now := LocalTime(c.now())

	for ri := range out {
		rec := &out[ri]
		if rec.Items == nil {
			continue
		}
		byID := make(map[string]int, len(rec.Items))
		for i, it := range rec.Items {
			byID[it.ID] = i
		}

		delta := 0
		recTouched := false
		for _, u := range updates {
			i, found := byID[u.ItemID]
			if !found {
				continue
			}
			item := &rec.Items[i]
			if u.Completed != nil && *u.Completed != item.Completed {
				if *u.Completed {
					delta++
				} else {
					delta--
				}
				item.Completed = *u.Completed
			}
			if u.CompletedDate != nil {
				d := *u.CompletedDate
				item.CompletedDate = &d
			}
			for k, v := range u.Fields {
				if item.Fields == nil {
					item.Fields = make(map[string]any, len(u.Fields))
				}
				item.Fields[k] = v
			}
			recTouched = true
		}
		if !recTouched {
			continue
		}
		rec.CompletedCount += delta
		if rec.CompletedCount < 0 {
			rec.CompletedCount = 0
		}
		rec.UpdatedAt = now
		touched = true
	}

	if !touched {
		return false
	}
	c.SetCached(ctx, scope, out)
	return true
}

// ClearScope drops the cached entry for one scope.
func (c *ResourceCache) ClearScope(ctx context.Context, scope string) {
	if err := c.store.Remove(ctx, c.cfg.Kind, scope); err != nil {
		c.log.Debug("cache clear failed", Fields{
			"kind": c.cfg.Kind, "scope": scope, "err": err,
		})
	}
}

// ClearOrg drops every cached entry of this kind whose scope key starts
// with the org id. Used after destructive remote operations and forced
// refreshes.
func (c *ResourceCache) ClearOrg(ctx context.Context, orgID string) {
	if err := c.store.ClearScopePrefix(ctx, c.cfg.Kind, orgID); err != nil {
		c.log.Debug("org cache clear failed", Fields{
			"kind": c.cfg.Kind, "org": orgID, "err": err,
		})
	}
}

// GetOrLoad is cache-first with remote fallback and cache fill. Concurrent
// misses for the same scope share one remote load.
func (c *ResourceCache) GetOrLoad(ctx context.Context, scope string) ([]Record, error) {
	if recs, st := c.GetCached(ctx, scope); st == StatusHit {
		return recs, nil
	}
	if c.loader == nil {
		return nil, fmt.Errorf("livecache: no loader configured for %s: %w", c.cfg.Kind, ErrRemoteUnavailable)
	}

	v, err, _ := c.sf.Do(scope, func() (any, error) {
		recs, err := c.loader(ctx, scope)
		if err != nil {
			return nil, err
		}
		c.SetCached(ctx, scope, recs)
		return recs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Record), nil
}

// snapshot reads the raw cached collection without touching hit/miss
// accounting or provisional pruning. Internal use by the reconciler and the
// mutation coordinator.
func (c *ResourceCache) snapshot(ctx context.Context, scope string) []Record {
	recs, ok, err := c.store.Get(ctx, c.cfg.Kind, scope, c.cfg.MaxAge)
	if err != nil || !ok {
		return nil
	}
	return recs
}

func (c *ResourceCache) pruneExpiredProvisionals(recs []Record) (kept []Record, dropped []string) {
	now := c.now()
	for _, r := range recs {
		if r.Provisional.Expired(now, c.grace) {
			dropped = append(dropped, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	if len(dropped) == 0 {
		return recs, nil
	}
	return kept, dropped
}

func (c *ResourceCache) truncateItems(scope string, recs []Record) []Record {
	out := recs
	copied := false
	for i, r := range recs {
		if len(r.Items) <= c.cfg.MaxItems {
			continue
		}
		if !copied {
			out = make([]Record, len(recs))
			copy(out, recs)
			copied = true
		}
		droppedN := len(r.Items) - c.cfg.MaxItems
		rr := r.Clone()
		rr.Items = rr.Items[:c.cfg.MaxItems]
		out[i] = rr
		c.hooks.ItemsTruncated(c.cfg.Kind, scope, droppedN)
		c.log.Warn("item list truncated for cache", Fields{
			"kind": c.cfg.Kind, "scope": scope, "record": r.ID,
			"max": c.cfg.MaxItems, "dropped": droppedN,
		})
	}
	return out
}

// hitCount is what the hit metric reports: the number of list items for a
// single-document list scope, otherwise the number of records.
func hitCount(recs []Record) int {
	if len(recs) == 1 && recs[0].Items != nil {
		return len(recs[0].Items)
	}
	return len(recs)
}
