package livecache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths; use hooks/async to fan out to anything
// slower than a counter bump.
type Hooks interface {
	// Read accounting pass-through. count is the number of items served on
	// a hit (list items for list-shaped kinds, records otherwise).
	CacheHit(kind string, count int)
	CacheMiss(kind string)

	// A cached entry was deleted on read.
	// reason is one of "corrupt", "schema_mismatch", "expired", "payload_decode".
	SelfHeal(storageKey, reason string)

	// A write was rejected because the encoded entry exceeded the kind's
	// byte ceiling. The write is dropped, never truncated.
	EntryTooLarge(kind, scope string, size, limit int)

	// A list payload was cut to the kind's item ceiling before caching.
	ItemsTruncated(kind, scope string, dropped int)

	// The store evicted aged entries and retried after a failed provider Set.
	EvictRetry(kind string, evicted int, ok bool)

	// A provisional record passed its grace period unconfirmed and was dropped.
	ProvisionalDropped(kind, id string)

	// A remote delete was rejected on permissions but treated as success by
	// the caller-supplied policy.
	AssumedDeleteSuccess(kind, id string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CacheHit(string, int)                   {}
func (NopHooks) CacheMiss(string)                       {}
func (NopHooks) SelfHeal(string, string)                {}
func (NopHooks) EntryTooLarge(string, string, int, int) {}
func (NopHooks) ItemsTruncated(string, string, int)     {}
func (NopHooks) EvictRetry(string, int, bool)           {}
func (NopHooks) ProvisionalDropped(string, string)      {}
func (NopHooks) AssumedDeleteSuccess(string, string)    {}
