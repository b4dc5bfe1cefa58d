// Package asynchook decouples hook consumers from the hot path. Events are
// queued to a small worker pool and dropped on overflow; instrumentation must
// never block a cache read or a mutation.
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/livecache"
)

type Hooks struct {
	inner livecache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ livecache.Hooks = (*Hooks)(nil)

func New(inner livecache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) CacheHit(kind string, n int)  { h.try(func() { h.inner.CacheHit(kind, n) }) }
func (h *Hooks) CacheMiss(kind string)        { h.try(func() { h.inner.CacheMiss(kind) }) }
func (h *Hooks) SelfHeal(k, reason string)    { h.try(func() { h.inner.SelfHeal(k, reason) }) }
func (h *Hooks) EvictRetry(kind string, n int, ok bool) {
	h.try(func() { h.inner.EvictRetry(kind, n, ok) })
}
func (h *Hooks) EntryTooLarge(kind, scope string, size, limit int) {
	h.try(func() { h.inner.EntryTooLarge(kind, scope, size, limit) })
}
func (h *Hooks) ItemsTruncated(kind, scope string, dropped int) {
	h.try(func() { h.inner.ItemsTruncated(kind, scope, dropped) })
}
func (h *Hooks) ProvisionalDropped(kind, id string) {
	h.try(func() { h.inner.ProvisionalDropped(kind, id) })
}
func (h *Hooks) AssumedDeleteSuccess(kind, id string) {
	h.try(func() { h.inner.AssumedDeleteSuccess(kind, id) })
}
