package livecache

import "time"

// KindConfig describes one resource kind: its cache key namespace segment,
// freshness bound and size ceilings.
type KindConfig struct {
	Kind     string
	MaxAge   time.Duration // entry freshness bound; 0 => DefaultMaxAge
	MaxBytes int           // encoded-entry ceiling; 0 => DefaultMaxBytes
	MaxItems int           // per-record item ceiling; 0 => unlimited
}

// The resource kinds of the studio console. The limits mirror observed
// production values; all of them are overridable per KindConfig.
const (
	KindDistrict  = "district"
	KindShootList = "shootlist"
	KindCritique  = "critique"
	KindChannel   = "channel"
)

// DistrictKind covers district/organization data: large aggregates, long
// freshness window.
func DistrictKind() KindConfig {
	return KindConfig{Kind: KindDistrict, MaxAge: 24 * time.Hour, MaxBytes: 5 << 20}
}

// ShootListKind covers yearbook shoot lists: one list per school+year scope,
// capped at 200 items.
func ShootListKind() KindConfig {
	return KindConfig{Kind: KindShootList, MaxAge: 12 * time.Hour, MaxBytes: 1 << 20, MaxItems: 200}
}

// CritiqueKind covers photo critiques and their feedback items.
func CritiqueKind() KindConfig {
	return KindConfig{Kind: KindCritique, MaxAge: 6 * time.Hour, MaxBytes: 1 << 20}
}

// ChannelKind covers chat channel metadata: small and short-lived.
func ChannelKind() KindConfig {
	return KindConfig{Kind: KindChannel, MaxAge: time.Hour, MaxBytes: 256 << 10}
}
