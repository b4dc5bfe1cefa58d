package livecache

import (
	"strings"
	"sync"
	"time"
)

// keyIndex tracks which storage keys this process has written and when.
// Providers cannot generally enumerate their keyspace or report entry ages,
// so the index serves two store paths: age-based eviction when a write fails
// under pressure, and prefix clears on providers without native support.
// Entries are pruned by a background sweep after the retention window.
type keyIndex struct {
	mu     sync.RWMutex
	keys   map[string]time.Time // storage key -> last write time
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup

	retention time.Duration
}

func newKeyIndex(sweepInterval, retention time.Duration) *keyIndex {
	idx := &keyIndex{
		keys:      make(map[string]time.Time),
		retention: retention,
	}
	if sweepInterval > 0 && retention > 0 {
		idx.ticker = time.NewTicker(sweepInterval)
		idx.stopCh = make(chan struct{})
		idx.wg.Add(1)
		go func() {
			defer idx.wg.Done()
			for {
				select {
				case <-idx.ticker.C:
					idx.cleanup(retention)
				case <-idx.stopCh:
					return
				}
			}
		}()
	}
	return idx
}

func (idx *keyIndex) touch(k string, at time.Time) {
	idx.mu.Lock()
	idx.keys[k] = at
	idx.mu.Unlock()
}

func (idx *keyIndex) forget(k string) {
	idx.mu.Lock()
	delete(idx.keys, k)
	idx.mu.Unlock()
}

// olderThan returns keys under prefix last written before cutoff.
func (idx *keyIndex) olderThan(prefix string, cutoff time.Time) []string {
	var out []string
	idx.mu.RLock()
	for k, at := range idx.keys {
		if strings.HasPrefix(k, prefix) && at.Before(cutoff) {
			out = append(out, k)
		}
	}
	idx.mu.RUnlock()
	return out
}

// withPrefix returns every tracked key under prefix.
func (idx *keyIndex) withPrefix(prefix string) []string {
	var out []string
	idx.mu.RLock()
	for k := range idx.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	idx.mu.RUnlock()
	return out
}

func (idx *keyIndex) forgetPrefix(prefix string) {
	idx.mu.Lock()
	for k := range idx.keys {
		if strings.HasPrefix(k, prefix) {
			delete(idx.keys, k)
		}
	}
	idx.mu.Unlock()
}

func (idx *keyIndex) cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	idx.mu.Lock()
	for k, at := range idx.keys {
		if at.Before(cutoff) {
			delete(idx.keys, k)
		}
	}
	idx.mu.Unlock()
}

func (idx *keyIndex) close() {
	if idx.stopCh != nil {
		close(idx.stopCh)
		if idx.ticker != nil {
			idx.ticker.Stop() // stop ticker before waiting
		}
		idx.wg.Wait()
		idx.stopCh = nil
	}
}
