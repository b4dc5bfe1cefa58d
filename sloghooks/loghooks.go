package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/livecache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all. Hit/miss accounting is the
	// hottest event by far and defaults to unsampled only if you ask for it.
	HitEvery      uint64
	MissEvery     uint64
	SelfHealEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr      atomic.Uint64
	missCtr     atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ livecache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) CacheHit(kind string, count int) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("livecache.hit", "kind", kind, "count", count)
}

func (h *Hooks) CacheMiss(kind string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("livecache.miss", "kind", kind)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("livecache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) EntryTooLarge(kind, scope string, size, limit int) {
	if h.l == nil {
		return
	}
	h.l.Warn("livecache.entry_too_large",
		"kind", kind, "scope", h.redact(scope), "size", size, "limit", limit)
}

func (h *Hooks) ItemsTruncated(kind, scope string, dropped int) {
	if h.l == nil {
		return
	}
	h.l.Warn("livecache.items_truncated",
		"kind", kind, "scope", h.redact(scope), "dropped", dropped)
}

func (h *Hooks) EvictRetry(kind string, evicted int, ok bool) {
	if h.l == nil {
		return
	}
	h.l.Info("livecache.evict_retry", "kind", kind, "evicted", evicted, "ok", ok)
}

func (h *Hooks) ProvisionalDropped(kind, id string) {
	if h.l == nil {
		return
	}
	h.l.Info("livecache.provisional_dropped", "kind", kind, "id", id)
}

func (h *Hooks) AssumedDeleteSuccess(kind, id string) {
	if h.l == nil {
		return
	}
	h.l.Warn("livecache.assumed_delete_success", "kind", kind, "id", id)
}
