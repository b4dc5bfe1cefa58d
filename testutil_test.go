package livecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/livecache/codec"
	pr "github.com/unkn0wn-root/livecache/provider"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

// memProvider is an in-memory Provider with injectable Set failures.
type memProvider struct {
	mu       sync.Mutex
	m        map[string]memEntry
	failSets int // fail the next N Set calls
	getErr   error
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, false, p.getErr
	}
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSets > 0 {
		p.failSets--
		return false, errors.New("provider full")
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.m[key] = memEntry{v: value, exp: exp}
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

func (p *memProvider) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// recordingHooks captures events in arrival order.
type recordingHooks struct {
	mu     sync.Mutex
	events []string
}

var _ Hooks = (*recordingHooks)(nil)

func (h *recordingHooks) add(e string) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *recordingHooks) CacheHit(kind string, n int) { h.add(fmt.Sprintf("hit:%s:%d", kind, n)) }
func (h *recordingHooks) CacheMiss(kind string)       { h.add("miss:" + kind) }
func (h *recordingHooks) SelfHeal(_, reason string)   { h.add("heal:" + reason) }
func (h *recordingHooks) EntryTooLarge(kind, _ string, _, _ int) {
	h.add("too_large:" + kind)
}
func (h *recordingHooks) ItemsTruncated(kind, _ string, dropped int) {
	h.add(fmt.Sprintf("truncated:%s:%d", kind, dropped))
}
func (h *recordingHooks) EvictRetry(kind string, evicted int, ok bool) {
	h.add(fmt.Sprintf("evict:%s:%d:%v", kind, evicted, ok))
}
func (h *recordingHooks) ProvisionalDropped(kind, id string) {
	h.add("prov_dropped:" + kind + ":" + id)
}
func (h *recordingHooks) AssumedDeleteSuccess(kind, id string) {
	h.add("assumed_delete:" + kind + ":" + id)
}

func (h *recordingHooks) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	copy(out, h.events)
	return out
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeStream is one live subscription handed out by fakeRemote.
type fakeStream struct {
	q         Query
	onNext    func([]Record)
	onErr     func(error)
	cancelled int
}

// fakeRemote implements Remote with scripted responses.
type fakeRemote struct {
	mu sync.Mutex

	queryResult  []Record
	queryErr     error
	createErr    error
	updateErr    error
	deleteErr    error
	batchErr     error
	subscribeErr error

	queries int
	created []Record
	updated []map[string]any
	deleted []string
	batches [][]WriteOp
	streams []*fakeStream
}

var _ Remote = (*fakeRemote)(nil)

func (r *fakeRemote) FetchOne(_ context.Context, _, id string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.queryResult {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, fmt.Errorf("fetch %q: %w", id, ErrNotFound)
}

func (r *fakeRemote) QueryMany(_ context.Context, _ string, _ Query) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries++
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	return CloneRecords(r.queryResult), nil
}

func (r *fakeRemote) Subscribe(_ context.Context, _ string, q Query, onNext func([]Record), onErr func(error)) (CancelFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subscribeErr != nil {
		return nil, r.subscribeErr
	}
	s := &fakeStream{q: q, onNext: onNext, onErr: onErr}
	r.streams = append(r.streams, s)
	return func() {
		r.mu.Lock()
		s.cancelled++
		r.mu.Unlock()
	}, nil
}

func (r *fakeRemote) Create(_ context.Context, _ string, rec Record) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return Record{}, r.createErr
	}
	out := rec.Clone()
	out.UpdatedAt = ServerTime(time.Date(2025, 3, 10, 12, 0, 1, 0, time.UTC))
	r.created = append(r.created, out)
	return out, nil
}

func (r *fakeRemote) Update(_ context.Context, _, id string, partial map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	cp := map[string]any{"_id": id}
	for k, v := range partial {
		cp[k] = v
	}
	r.updated = append(r.updated, cp)
	return nil
}

func (r *fakeRemote) Delete(_ context.Context, _, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeRemote) BatchWrite(_ context.Context, ops []WriteOp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.batchErr != nil {
		return r.batchErr
	}
	r.batches = append(r.batches, ops)
	return nil
}

// push delivers a snapshot to every live (non-cancelled) stream.
func (r *fakeRemote) push(records []Record) {
	r.mu.Lock()
	streams := make([]*fakeStream, 0, len(r.streams))
	for _, s := range r.streams {
		if s.cancelled == 0 {
			streams = append(streams, s)
		}
	}
	r.mu.Unlock()
	for _, s := range streams {
		s.onNext(records)
	}
}

func (r *fakeRemote) liveStreams() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.streams {
		if s.cancelled == 0 {
			n++
		}
	}
	return n
}

func newTestStore(t *testing.T, mp pr.Provider, clock *fakeClock, hooks Hooks) *Store[[]Record] {
	t.Helper()
	opts := StoreOptions[[]Record]{
		Namespace: "studio:test",
		Provider:  mp,
		Codec:     codec.JSON[[]Record]{},
	}
	if clock != nil {
		opts.Now = clock.Now
	}
	if hooks != nil {
		opts.Hooks = hooks
	}
	s, err := NewStore[[]Record](opts)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func newTestCacheService(t *testing.T, cfg KindConfig, store *Store[[]Record], clock *fakeClock, hooks Hooks, loader Loader) *ResourceCache {
	t.Helper()
	opts := CacheOptions{Config: cfg, Store: store, Loader: loader}
	if clock != nil {
		opts.Now = clock.Now
	}
	if hooks != nil {
		opts.Hooks = hooks
	}
	c, err := NewResourceCache(opts)
	if err != nil {
		t.Fatalf("NewResourceCache: %v", err)
	}
	return c
}
