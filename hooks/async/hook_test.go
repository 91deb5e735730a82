package asynchook

import (
	"errors"
	"sync"
	"testing"

	"github.com/unkn0wn-root/pagecache"
)

type countingHooks struct {
	pagecache.NopHooks

	mu     sync.Mutex
	events []string
	block  chan struct{}
}

func (c *countingHooks) record(s string) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.events = append(c.events, s)
	c.mu.Unlock()
}

func (c *countingHooks) PrefetchFailed(int, error)               { c.record("prefetch_failed") }
func (c *countingHooks) PageEvicted(_ int, reason string)        { c.record("page_evicted:" + reason) }
func (c *countingHooks) ByteEvicted(_ string, _ int64, r string) { c.record("byte_evicted:" + r) }
func (c *countingHooks) LowQualityFailed(string, error)          { c.record("low_failed") }

func (c *countingHooks) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestEventsDeliveredBeforeClose(t *testing.T) {
	inner := &countingHooks{}
	h := New(inner, 2, 16)

	h.PrefetchFailed(1, errors.New("x"))
	h.PageEvicted(2, "range")
	h.ByteEvicted("u", 3, "lru")
	h.LowQualityFailed("u", errors.New("y"))
	h.ByteCacheHit("u") // NopHooks on the inner side
	h.Close()

	if inner.count() != 4 {
		t.Fatalf("delivered %d events, want 4", inner.count())
	}
	if h.Dropped() != 0 {
		t.Fatalf("dropped %d events", h.Dropped())
	}
}

func TestFullQueueDrops(t *testing.T) {
	inner := &countingHooks{block: make(chan struct{})}
	h := New(inner, 1, 1)

	// one event held by the worker, one queued, the rest dropped
	for i := 0; i < 10; i++ {
		h.PageEvicted(i, "stale")
	}
	close(inner.block)
	h.Close()

	if got := uint64(inner.count()) + h.Dropped(); got != 10 {
		t.Fatalf("delivered+dropped = %d, want 10", got)
	}
	if h.Dropped() < 8 {
		t.Fatalf("dropped %d, want at least 8", h.Dropped())
	}
}

func TestAfterCloseIsDropped(t *testing.T) {
	h := New(nil, 0, 0)
	h.Close()
	h.Close()
	h.PrefetchStarted(1)
	if h.Dropped() != 1 {
		t.Fatalf("dropped %d, want 1", h.Dropped())
	}
}
