// Package asynchook moves hook delivery off the caller's goroutine.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{PrefetchFailEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	pre, _ := pagecache.NewPreloader(pagecache.PreloadOptions{
//	    Fetcher: api,
//	    PageURL: api.PageImageURL,
//	    Hooks:   hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/pagecache"
)

// Hooks forwards events to inner through a bounded queue. Events that do not
// fit are dropped; events raised after Close are dropped too.
type Hooks struct {
	inner pagecache.Hooks
	q     chan func()
	wg    sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ pagecache.Hooks = (*Hooks)(nil)

func New(inner pagecache.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = pagecache.NopHooks{}
	}
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

// Close drains queued events and stops the workers.
func (h *Hooks) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.q)
	h.mu.Unlock()
	h.wg.Wait()
}

// Dropped is the number of events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) PrefetchStarted(page int) { h.try(func() { h.inner.PrefetchStarted(page) }) }
func (h *Hooks) PrefetchFailed(page int, err error) {
	h.try(func() { h.inner.PrefetchFailed(page, err) })
}
func (h *Hooks) PrefetchDiscarded(page int) { h.try(func() { h.inner.PrefetchDiscarded(page) }) }
func (h *Hooks) PageEvicted(page int, reason string) {
	h.try(func() { h.inner.PageEvicted(page, reason) })
}
func (h *Hooks) ByteCacheHit(url string)  { h.try(func() { h.inner.ByteCacheHit(url) }) }
func (h *Hooks) ByteCacheMiss(url string) { h.try(func() { h.inner.ByteCacheMiss(url) }) }
func (h *Hooks) ByteEvicted(url string, size int64, reason string) {
	h.try(func() { h.inner.ByteEvicted(url, size, reason) })
}
func (h *Hooks) AdmissionRejected(url string, size int64) {
	h.try(func() { h.inner.AdmissionRejected(url, size) })
}
func (h *Hooks) LowQualityFailed(url string, err error) {
	h.try(func() { h.inner.LowQualityFailed(url, err) })
}
