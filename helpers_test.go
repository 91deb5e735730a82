package pagecache

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeFetcher serves "img:<url>" for every url unless told otherwise.
type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	order []string
	fail  map[string]error
	gates map[string]chan struct{}
	body  func(url string) []byte
}

var _ Fetcher = (*fakeFetcher)(nil)

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls: make(map[string]int),
		fail:  make(map[string]error),
		gates: make(map[string]chan struct{}),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	f.order = append(f.order, url)
	gate := f.gates[url]
	err := f.fail[url]
	body := f.body
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if body != nil {
		return body(url), nil
	}
	return []byte("img:" + url), nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

// block makes fetches of url wait until the returned channel is closed.
func (f *fakeFetcher) block(url string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[url] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeFetcher) failWith(url string, err error) {
	f.mu.Lock()
	f.fail[url] = err
	f.mu.Unlock()
}

// recHooks records the events tests assert on.
type recHooks struct {
	NopHooks

	mu        sync.Mutex
	failed    []int
	discarded []int
	evicted   map[string][]int
	byteEvict map[string][]string
	rejected  []string
	lowFailed []string
	onLowFail func()
}

func newRecHooks() *recHooks {
	return &recHooks{
		evicted:   make(map[string][]int),
		byteEvict: make(map[string][]string),
	}
}

func (h *recHooks) PrefetchFailed(page int, _ error) {
	h.mu.Lock()
	h.failed = append(h.failed, page)
	h.mu.Unlock()
}

func (h *recHooks) PrefetchDiscarded(page int) {
	h.mu.Lock()
	h.discarded = append(h.discarded, page)
	h.mu.Unlock()
}

func (h *recHooks) PageEvicted(page int, reason string) {
	h.mu.Lock()
	h.evicted[reason] = append(h.evicted[reason], page)
	h.mu.Unlock()
}

func (h *recHooks) ByteEvicted(url string, _ int64, reason string) {
	h.mu.Lock()
	h.byteEvict[reason] = append(h.byteEvict[reason], url)
	h.mu.Unlock()
}

func (h *recHooks) AdmissionRejected(url string, _ int64) {
	h.mu.Lock()
	h.rejected = append(h.rejected, url)
	h.mu.Unlock()
}

func (h *recHooks) LowQualityFailed(url string, _ error) {
	h.mu.Lock()
	h.lowFailed = append(h.lowFailed, url)
	fn := h.onLowFail
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *recHooks) snapshot() (failed, discarded []int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.failed...), append([]int(nil), h.discarded...)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitIdle(t *testing.T, p Preloader) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
