package livecache

import "time"

// Empirically chosen defaults carried over from the observed behavior of the
// production console; configuration, not guaranteed-correct bounds.
const (
	// DefaultGracePeriod is how long an unconfirmed provisional record
	// survives merges and reads before being dropped.
	DefaultGracePeriod = 30 * time.Second

	// DefaultMaxAge bounds entry freshness when a kind does not set its own.
	DefaultMaxAge = 24 * time.Hour

	// DefaultMaxBytes is the encoded-entry ceiling when a kind does not set
	// its own (observed ~5 MB for district/org data).
	DefaultMaxBytes = 5 << 20
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
