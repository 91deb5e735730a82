package pagecache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/unkn0wn-root/pagecache/handle"
)

var docPage = PageImageURL("http://doc")

func newTestPreloader(t *testing.T, f Fetcher, optsOpt func(*PreloadOptions)) Preloader {
	t.Helper()
	opts := PreloadOptions{
		Fetcher: f,
		PageURL: docPage,
		Config:  PreloadConfig{PreloadDelay: time.Millisecond},
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	p, err := NewPreloader(opts)
	if err != nil {
		t.Fatalf("NewPreloader: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func mustImpl(t *testing.T, p Preloader) *preloader {
	t.Helper()
	impl, ok := p.(*preloader)
	if !ok {
		t.Fatalf("unexpected concrete type for Preloader")
	}
	return impl
}

func seedPage(t *testing.T, p Preloader, page int, at time.Time) {
	t.Helper()
	impl := mustImpl(t, p)
	impl.mu.Lock()
	impl.pages[page] = &cachedPage{
		page:      page,
		sourceURL: impl.pageURL(page),
		data:      []byte(fmt.Sprintf("page-%d", page)),
		fetchedAt: at,
		handles:   make(map[*handle.Handle]struct{}),
	}
	impl.mu.Unlock()
}

func preloadedPages(p Preloader, from, to int) []int {
	var out []int
	for pg := from; pg <= to; pg++ {
		if p.IsPreloaded(pg) {
			out = append(out, pg)
		}
	}
	return out
}

// ==============================
// Window tests
// ==============================

func TestWindowFor(t *testing.T) {
	cases := []struct {
		name                     string
		current, total, adjacent int
		want                     []int
	}{
		{"middle", 10, 100, 2, []int{9, 11, 8, 12}},
		{"first page", 1, 100, 2, []int{2, 3}},
		{"last page", 100, 100, 2, []int{99, 98}},
		{"unknown total", 3, 0, 2, []int{2, 4, 1, 5}},
		{"short document", 2, 2, 3, []int{1}},
		{"no adjacency", 5, 10, 0, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := WindowFor(tc.current, tc.total, tc.adjacent)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("WindowFor(%d,%d,%d) = %v, want %v", tc.current, tc.total, tc.adjacent, got, tc.want)
			}
		})
	}
}

// ==============================
// Scheduling tests
// ==============================

func TestSchedulePrefetchesWholeWindow(t *testing.T) {
	f := newFakeFetcher()
	p := newTestPreloader(t, f, func(o *PreloadOptions) { o.Config.MaxConcurrentLoads = 4 })

	p.Schedule(10, 100)
	waitIdle(t, p)

	if got := preloadedPages(p, 1, 100); !reflect.DeepEqual(got, []int{8, 9, 11, 12}) {
		t.Fatalf("preloaded %v, want [8 9 11 12]", got)
	}
	if p.IsPreloaded(10) {
		t.Fatalf("current page must not be prefetched")
	}
}

func TestScheduleCapsNearestFirst(t *testing.T) {
	f := newFakeFetcher()
	p := newTestPreloader(t, f, nil) // default MaxConcurrentLoads = 3

	p.Schedule(10, 100)
	waitIdle(t, p)

	if got := preloadedPages(p, 1, 100); !reflect.DeepEqual(got, []int{8, 9, 11}) {
		t.Fatalf("preloaded %v, want [8 9 11]", got)
	}
	if n := f.count(docPage(12)); n != 0 {
		t.Fatalf("distance-2 page beyond the cap was fetched %d times", n)
	}
}

func TestScheduleSkipsCachedPages(t *testing.T) {
	f := newFakeFetcher()
	p := newTestPreloader(t, f, func(o *PreloadOptions) { o.Config.MaxConcurrentLoads = 4 })

	p.Schedule(10, 100)
	waitIdle(t, p)
	p.Schedule(10, 100)
	waitIdle(t, p)

	if f.total() != 4 {
		t.Fatalf("expected 4 fetches across both passes, got %d", f.total())
	}
}

func TestNoDuplicateFetchWhileInFlight(t *testing.T) {
	f := newFakeFetcher()
	gate := f.block(docPage(9))
	p := newTestPreloader(t, f, func(o *PreloadOptions) { o.Config.MaxConcurrentLoads = 4 })

	p.Schedule(10, 100)
	eventually(t, "first pass to settle", func() bool {
		return f.count(docPage(9)) == 1 && p.IsPreloaded(8) && p.IsPreloaded(11) && p.IsPreloaded(12)
	})

	// both windows cover page 9 while it is still in flight
	p.Schedule(10, 100)
	time.Sleep(10 * time.Millisecond)
	p.Schedule(11, 100)
	time.Sleep(10 * time.Millisecond)

	close(gate)
	waitIdle(t, p)

	if n := f.count(docPage(9)); n != 1 {
		t.Fatalf("page 9 fetched %d times, want 1", n)
	}
	if !p.IsPreloaded(9) {
		t.Fatalf("page 9 should be cached once its fetch completed")
	}
}

func TestDebounceLastCallWins(t *testing.T) {
	f := newFakeFetcher()
	p := newTestPreloader(t, f, func(o *PreloadOptions) { o.Config.PreloadDelay = 30 * time.Millisecond })

	p.Schedule(5, 100)
	p.Schedule(6, 100)
	waitIdle(t, p)

	if n := f.count(docPage(3)); n != 0 {
		t.Fatalf("page 3 belongs only to the superseded window, fetched %d times", n)
	}
	if got := preloadedPages(p, 1, 100); !reflect.DeepEqual(got, []int{4, 5, 7}) {
		t.Fatalf("preloaded %v, want page-6 window [4 5 7]", got)
	}
}

func TestPrefetchFailureIsSwallowedAndRetriedLater(t *testing.T) {
	f := newFakeFetcher()
	f.failWith(docPage(9), &FetchError{URL: docPage(9), StatusCode: http.StatusNotFound})
	hooks := newRecHooks()
	p := newTestPreloader(t, f, func(o *PreloadOptions) { o.Hooks = hooks })

	p.Schedule(10, 100)
	waitIdle(t, p)

	if p.IsPreloaded(9) {
		t.Fatalf("failed page must not be cached")
	}
	if st := p.Stats(); st.LoadingCount != 0 {
		t.Fatalf("failed page left in flight: %+v", st)
	}
	if failed, _ := hooks.snapshot(); !reflect.DeepEqual(failed, []int{9}) {
		t.Fatalf("PrefetchFailed pages = %v, want [9]", failed)
	}

	f.failWith(docPage(9), nil)
	p.Schedule(10, 100)
	waitIdle(t, p)
	if !p.IsPreloaded(9) {
		t.Fatalf("page 9 should be fetched again on the next pass")
	}
	if n := f.count(docPage(9)); n != 2 {
		t.Fatalf("page 9 fetched %d times, want 2", n)
	}
}

func TestFetchTimeoutBoundsHungPrefetch(t *testing.T) {
	f := newFakeFetcher()
	f.block(docPage(9)) // never released
	hooks := newRecHooks()
	p := newTestPreloader(t, f, func(o *PreloadOptions) {
		o.Config.MaxConcurrentLoads = 1
		o.FetchTimeout = 20 * time.Millisecond
		o.Hooks = hooks
	})

	p.Schedule(10, 100)
	waitIdle(t, p)

	if p.Stats().LoadingCount != 0 {
		t.Fatalf("timed-out fetch still counted as loading")
	}
	if failed, _ := hooks.snapshot(); len(failed) != 1 || failed[0] != 9 {
		t.Fatalf("expected timeout reported for page 9, got %v", failed)
	}
}

// ==============================
// Handle tests
// ==============================

func TestPreloadedHandleIsRepeatable(t *testing.T) {
	store := handle.NewStore()
	p := newTestPreloader(t, newFakeFetcher(), func(o *PreloadOptions) { o.Handles = store })
	seedPage(t, p, 4, time.Now())

	h1, ok1 := p.PreloadedHandle(4)
	h2, ok2 := p.PreloadedHandle(4)
	if !ok1 || !ok2 {
		t.Fatalf("PreloadedHandle should succeed twice")
	}
	if h1.URL() == h2.URL() {
		t.Fatalf("each call should materialize a distinct handle")
	}
	if string(h1.Bytes()) != "page-4" || string(h2.Bytes()) != "page-4" {
		t.Fatalf("handles do not resolve to the cached bytes")
	}
	if !p.IsPreloaded(4) {
		t.Fatalf("materializing handles must not consume the entry")
	}

	h1.Release()
	h2.Release()
	if store.Outstanding() != 0 {
		t.Fatalf("outstanding handles = %d, want 0", store.Outstanding())
	}
	if _, ok := p.PreloadedHandle(5); ok {
		t.Fatalf("uncached page must not yield a handle")
	}
}

func TestEvictionRevokesMaterializedHandles(t *testing.T) {
	store := handle.NewStore()
	p := newTestPreloader(t, newFakeFetcher(), func(o *PreloadOptions) { o.Handles = store })
	seedPage(t, p, 30, time.Now())

	h, _ := p.PreloadedHandle(30)
	if n := p.Cleanup(1, 5); n != 1 {
		t.Fatalf("Cleanup evicted %d, want 1", n)
	}
	if !h.Released() {
		t.Fatalf("eviction should revoke handles of the evicted page")
	}
	if h.Release() {
		t.Fatalf("owner Release after eviction must be a no-op")
	}
	if store.Outstanding() != 0 {
		t.Fatalf("outstanding handles = %d, want 0", store.Outstanding())
	}
}

// ==============================
// Cleanup tests
// ==============================

func TestCleanupByRange(t *testing.T) {
	hooks := newRecHooks()
	p := newTestPreloader(t, newFakeFetcher(), func(o *PreloadOptions) { o.Hooks = hooks })
	now := time.Now()
	for pg := 5; pg <= 15; pg++ {
		seedPage(t, p, pg, now)
	}

	if n := p.Cleanup(10, 2); n != 6 {
		t.Fatalf("Cleanup evicted %d, want 6", n)
	}
	if got := preloadedPages(p, 1, 20); !reflect.DeepEqual(got, []int{8, 9, 10, 11, 12}) {
		t.Fatalf("remaining %v, want [8 9 10 11 12]", got)
	}

	hooks.mu.Lock()
	byRange := append([]int(nil), hooks.evicted["range"]...)
	hooks.mu.Unlock()
	sort.Ints(byRange)
	if !reflect.DeepEqual(byRange, []int{5, 6, 7, 13, 14, 15}) {
		t.Fatalf("range evictions %v", byRange)
	}
}

func TestCleanupByAge(t *testing.T) {
	clock := newFakeClock()
	p := newTestPreloader(t, newFakeFetcher(), func(o *PreloadOptions) { o.Now = clock.Now })

	seedPage(t, p, 10, clock.Now())
	clock.Advance(2 * time.Minute)
	seedPage(t, p, 11, clock.Now())
	clock.Advance(4 * time.Minute) // page 10 is 6m old, page 11 is 4m old

	if n := p.Cleanup(10, DefaultKeepRange); n != 1 {
		t.Fatalf("Cleanup evicted %d, want 1", n)
	}
	if p.IsPreloaded(10) {
		t.Fatalf("page older than %v should be evicted even within range", PageStaleAfter)
	}
	if !p.IsPreloaded(11) {
		t.Fatalf("fresh page within range should stay")
	}
}

func TestCleanupNegativeKeepRangeUsesDefault(t *testing.T) {
	p := newTestPreloader(t, newFakeFetcher(), nil)
	seedPage(t, p, 15, time.Now())
	seedPage(t, p, 16, time.Now())

	p.Cleanup(10, -1)
	if !p.IsPreloaded(15) || p.IsPreloaded(16) {
		t.Fatalf("expected keepRange %d around page 10", DefaultKeepRange)
	}
}

// ==============================
// Stats / ClearAll tests
// ==============================

func TestStatsReportMemoryUsage(t *testing.T) {
	p := newTestPreloader(t, newFakeFetcher(), nil)
	seedPage(t, p, 1, time.Now()) // "page-1"
	seedPage(t, p, 2, time.Now()) // "page-2"

	st := p.Stats()
	if st.PreloadedCount != 2 || st.LoadingCount != 0 || st.MemoryUsageBytes != 12 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestClearAllClearsStatsAndDropsLateResults(t *testing.T) {
	f := newFakeFetcher()
	gate := f.block(docPage(9))
	hooks := newRecHooks()
	p := newTestPreloader(t, f, func(o *PreloadOptions) {
		o.Config.MaxConcurrentLoads = 1
		o.Hooks = hooks
	})
	seedPage(t, p, 20, time.Now())

	p.Schedule(10, 100)
	eventually(t, "page 9 in flight", func() bool { return p.Stats().LoadingCount == 1 })

	p.ClearAll()
	if st := p.Stats(); st != (PreloadStats{}) {
		t.Fatalf("stats after ClearAll = %+v, want zero", st)
	}

	close(gate)
	waitIdle(t, p)
	if p.IsPreloaded(9) {
		t.Fatalf("a response arriving after ClearAll must not repopulate the cache")
	}
	if _, discarded := hooks.snapshot(); !reflect.DeepEqual(discarded, []int{9}) {
		t.Fatalf("discarded = %v, want [9]", discarded)
	}
	if st := p.Stats(); st != (PreloadStats{}) {
		t.Fatalf("stats after late result = %+v, want zero", st)
	}
}

func TestClearAllCancelsPendingTimer(t *testing.T) {
	f := newFakeFetcher()
	p := newTestPreloader(t, f, func(o *PreloadOptions) { o.Config.PreloadDelay = 20 * time.Millisecond })

	p.Schedule(10, 100)
	p.ClearAll()
	waitIdle(t, p)
	time.Sleep(40 * time.Millisecond)

	if f.total() != 0 {
		t.Fatalf("cancelled timer still fetched %d pages", f.total())
	}
}

// ==============================
// Config / lifecycle tests
// ==============================

func TestUpdateConfigAppliesToNextPass(t *testing.T) {
	f := newFakeFetcher()
	p := newTestPreloader(t, f, nil)

	cfg := p.UpdateConfig(PreloadConfigPatch{AdjacentPages: Int(1)})
	if cfg.AdjacentPages != 1 || cfg.MaxConcurrentLoads != DefaultMaxConcurrentLoads {
		t.Fatalf("unexpected merged config %+v", cfg)
	}
	if p.Config() != cfg {
		t.Fatalf("Config() = %+v, want %+v", p.Config(), cfg)
	}

	p.Schedule(10, 100)
	waitIdle(t, p)
	if got := preloadedPages(p, 1, 100); !reflect.DeepEqual(got, []int{9, 11}) {
		t.Fatalf("preloaded %v, want [9 11]", got)
	}
}

func TestCloseStopsScheduling(t *testing.T) {
	f := newFakeFetcher()
	p := newTestPreloader(t, f, nil)
	seedPage(t, p, 3, time.Now())

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p.IsPreloaded(3) {
		t.Fatalf("Close should release cached pages")
	}
	p.Schedule(10, 100)
	waitIdle(t, p)
	if f.total() != 0 {
		t.Fatalf("Schedule after Close fetched %d pages", f.total())
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNewPreloaderValidatesOptions(t *testing.T) {
	if _, err := NewPreloader(PreloadOptions{PageURL: docPage}); err == nil {
		t.Fatalf("expected error without fetcher")
	}
	if _, err := NewPreloader(PreloadOptions{Fetcher: newFakeFetcher()}); err == nil {
		t.Fatalf("expected error without page url func")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	f := newFakeFetcher()
	gate := f.block(docPage(9))
	defer close(gate)
	p := newTestPreloader(t, f, func(o *PreloadOptions) { o.Config.MaxConcurrentLoads = 1 })

	p.Schedule(10, 100)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}
}
