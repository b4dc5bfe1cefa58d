package livecache

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/livecache/codec"
	"github.com/unkn0wn-root/livecache/internal/util"
	"github.com/unkn0wn-root/livecache/internal/wire"
	"github.com/unkn0wn-root/livecache/provider"
)

// CurrentSchema is the entry schema version. Bumping it orphans every
// existing entry: the version lives in the storage key, and Get also
// validates it inside the envelope before trusting the payload.
const CurrentSchema uint8 = 1

const (
	defaultSweep          = time.Hour
	defaultIndexRetention = 7 * 24 * time.Hour
)

// StoreOptions tune the durable cache store.
// Only Namespace, Provider and Codec are required.
type StoreOptions[V any] struct {
	// Required
	Namespace string // logical namespace, e.g. "studio:prod"
	Provider  provider.Provider
	Codec     codec.Codec[V]

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
	Schema uint8  // 0 => CurrentSchema

	CleanupInterval time.Duration // key-index sweep; 0 => 1h
	IndexRetention  time.Duration // 0 => 7d
	Now             func() time.Time
	Disabled        bool // default false (enabled)
}

// Store is the durable cache store: a namespaced, versioned, TTL-bound
// key/value wrapper over a Provider. It is best-effort by contract: a
// storage failure degrades to a cache miss for readers and a dropped write
// for writers, never an error that crashes the caller's flow. Reads report
// `(zero, false, nil)` for definite absence and a non-nil error only when
// the cache itself is unavailable, so callers can tell the two apart.
type Store[V any] struct {
	ns       string
	provider provider.Provider
	codec    codec.Codec[V]
	log      Logger
	hooks    Hooks
	schema   uint8
	enabled  bool
	now      func() time.Time
	index    *keyIndex
}

// NewStore validates options and builds a store.
func NewStore[V any](opts StoreOptions[V]) (*Store[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("livecache: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("livecache: codec is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("livecache: namespace is required")
	}

	s := &Store[V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		enabled:  !opts.Disabled,
	}

	// defaults
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.schema = coalesce[uint8](opts.Schema, CurrentSchema)
	if opts.Now != nil {
		s.now = opts.Now
	} else {
		s.now = time.Now
	}

	sweep := coalesce[time.Duration](opts.CleanupInterval, defaultSweep)
	retention := coalesce[time.Duration](opts.IndexRetention, defaultIndexRetention)
	if s.enabled {
		s.index = newKeyIndex(sweep, retention)
	}

	return s, nil
}

func (s *Store[V]) Enabled() bool { return s.enabled }

func (s *Store[V]) Close(ctx context.Context) error {
	if s.index != nil {
		s.index.close()
	}
	if s.provider != nil {
		return s.provider.Close(ctx)
	}
	return nil
}

// Get returns the cached value for (kind, scope) if it exists, carries the
// current schema and is younger than maxAge. Anything else is deleted on
// sight and reported as a miss (self-healing against stale schema and age).
func (s *Store[V]) Get(ctx context.Context, kind, scope string, maxAge time.Duration) (V, bool, error) {
	var zero V
	if !s.enabled || scope == "" {
		return zero, false, nil
	}
	k := s.entryKey(kind, scope)
	raw, ok, err := s.provider.Get(ctx, k)
	if err != nil || !ok {
		return zero, false, err
	}
	ent, err := wire.Decode(raw)
	if err != nil {
		s.heal(ctx, k, "corrupt")
		return zero, false, nil
	}
	if ent.Schema != s.schema {
		s.heal(ctx, k, "schema_mismatch")
		return zero, false, nil
	}
	if maxAge > 0 {
		age := s.now().Sub(time.UnixMilli(ent.WrittenAt))
		if age > maxAge {
			s.heal(ctx, k, "expired")
			return zero, false, nil
		}
	}
	v, err := s.codec.Decode(ent.Payload)
	if err != nil {
		s.heal(ctx, k, "payload_decode")
		return zero, false, nil
	}
	return v, true, nil
}

// Set writes the value for (kind, scope) with the kind's TTL and byte
// ceiling. Oversized entries are rejected (never truncated). On a provider
// failure it evicts entries of the kind older than maxAge and retries once;
// if the retry fails too, the write is dropped. The cache is best-effort,
// never a source of truth.
func (s *Store[V]) Set(ctx context.Context, kind, scope string, value V, maxAge time.Duration, maxBytes int) error {
	if !s.enabled {
		return nil
	}
	if scope == "" || len(scope) > 0xFFFF {
		// the envelope cannot frame it; reject before encoding
		return fmt.Errorf("livecache: set %s: invalid scope %q: %w", kind, scope, ErrValidation)
	}
	payload, err := s.codec.Encode(value)
	if err != nil {
		return err
	}
	if maxBytes > 0 && len(payload) > maxBytes {
		s.hooks.EntryTooLarge(kind, scope, len(payload), maxBytes)
		s.log.Warn("entry over byte ceiling, write rejected", Fields{
			"kind": kind, "scope": scope, "size": len(payload), "limit": maxBytes,
		})
		return &EntryTooLargeError{Kind: kind, Scope: scope, Size: len(payload), Limit: maxBytes}
	}

	now := s.now()
	k := s.entryKey(kind, scope)
	raw := wire.Encode(wire.Entry{
		Schema:    s.schema,
		WrittenAt: now.UnixMilli(),
		Scope:     scope,
		Payload:   payload,
	})

	ok, err := s.provider.Set(ctx, k, raw, int64(len(raw)), maxAge)
	if err == nil && ok {
		s.index.touch(k, now)
		return nil
	}

	// storage full or rejected: evict aged entries of this kind, retry once
	evicted := s.evictOlderThan(ctx, kind, maxAge)
	ok, retryErr := s.provider.Set(ctx, k, raw, int64(len(raw)), maxAge)
	s.hooks.EvictRetry(kind, evicted, retryErr == nil && ok)
	if retryErr == nil && ok {
		s.index.touch(k, now)
		return nil
	}
	s.log.Warn("cache write dropped after evict+retry", Fields{
		"kind": kind, "scope": scope, "evicted": evicted, "err": retryErr,
	})
	if retryErr != nil {
		return retryErr
	}
	return err
}

// Remove deletes the entry for (kind, scope).
func (s *Store[V]) Remove(ctx context.Context, kind, scope string) error {
	if !s.enabled {
		return nil
	}
	k := s.entryKey(kind, scope)
	s.index.forget(k)
	return s.provider.Del(ctx, k)
}

// ClearScopePrefix deletes every entry of the kind whose scope key starts
// with scopePrefix. Uses the provider's native prefix deletion when it has
// one, otherwise the key index.
func (s *Store[V]) ClearScopePrefix(ctx context.Context, kind, scopePrefix string) error {
	if !s.enabled {
		return nil
	}
	prefix := util.ScopePrefix(s.ns, kind, scopePrefix)
	if pd, ok := s.provider.(provider.PrefixDeleter); ok {
		s.index.forgetPrefix(prefix)
		return pd.DelPrefix(ctx, prefix)
	}
	keys := s.index.withPrefix(prefix)
	for _, k := range keys {
		if err := s.provider.Del(ctx, k); err != nil {
			return err
		}
		s.index.forget(k)
	}
	return nil
}

func (s *Store[V]) evictOlderThan(ctx context.Context, kind string, maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := s.now().Add(-maxAge)
	keys := s.index.olderThan(util.KindPrefix(s.ns, kind), cutoff)
	for _, k := range keys {
		_ = s.provider.Del(ctx, k)
		s.index.forget(k)
	}
	return len(keys)
}

func (s *Store[V]) heal(ctx context.Context, storageKey, reason string) {
	_ = s.provider.Del(ctx, storageKey)
	s.index.forget(storageKey)
	s.hooks.SelfHeal(storageKey, reason)
}

func (s *Store[V]) entryKey(kind, scope string) string {
	return util.EntryKey(s.ns, kind, scope, s.schema)
}
