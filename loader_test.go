package pagecache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/unkn0wn-root/pagecache/handle"
)

type loaderFixture struct {
	fetcher *fakeFetcher
	store   *handle.Store
	cache   ByteCache
	hooks   *recHooks
	loader  Loader
}

func newLoaderFixture(t *testing.T) *loaderFixture {
	t.Helper()
	fx := &loaderFixture{
		fetcher: newFakeFetcher(),
		store:   handle.NewStore(),
		hooks:   newRecHooks(),
	}
	fx.cache = newTestByteCache(t, fx.fetcher, func(o *ByteCacheOptions) { o.Handles = fx.store })
	l, err := NewLoader(LoaderOptions{Cache: fx.cache, Hooks: fx.hooks})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	fx.loader = l
	return fx
}

// events is an append-only, goroutine-safe log of callback names.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	e.log = append(e.log, s)
	e.mu.Unlock()
}

func (e *events) get() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

func TestLoadBothTiersInOrder(t *testing.T) {
	fx := newLoaderFixture(t)
	highGate := fx.fetcher.block("high")
	var ev events

	res, err := fx.loader.Load(context.Background(), LoadRequest{
		LowQualityURL:  "low",
		HighQualityURL: "high",
		OnLowQualityLoad: func(h *handle.Handle) {
			ev.add("low:" + string(h.Bytes()))
			close(highGate)
		},
		OnHighQualityLoad: func(h *handle.Handle) { ev.add("high:" + string(h.Bytes())) },
		OnError:           func(err error) { ev.add("error") },
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := ev.get(); !reflect.DeepEqual(got, []string{"low:img:low", "high:img:high"}) {
		t.Fatalf("callbacks = %v", got)
	}
	if res.LowQuality == nil || res.HighQuality == nil {
		t.Fatalf("result should hold both tiers: %+v", res)
	}

	res.Release()
	res.Release()
	if fx.store.Outstanding() != 0 {
		t.Fatalf("outstanding handles = %d after Release", fx.store.Outstanding())
	}
}

func TestLoadHighOnly(t *testing.T) {
	fx := newLoaderFixture(t)
	calls := 0

	res, err := fx.loader.Load(context.Background(), LoadRequest{
		HighQualityURL:    "high",
		OnHighQualityLoad: func(*handle.Handle) { calls++ },
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if calls != 1 || res.LowQuality != nil || string(res.HighQuality.Bytes()) != "img:high" {
		t.Fatalf("unexpected result %+v (calls=%d)", res, calls)
	}
	if fx.fetcher.total() != 1 {
		t.Fatalf("fetches = %d, want 1", fx.fetcher.total())
	}
}

func TestLoadHighFailurePropagates(t *testing.T) {
	fx := newLoaderFixture(t)
	highGate := fx.fetcher.block("high")
	boom := errors.New("boom")
	fx.fetcher.failWith("high", boom)
	var ev events
	var reported error

	res, err := fx.loader.Load(context.Background(), LoadRequest{
		LowQualityURL:  "low",
		HighQualityURL: "high",
		OnLowQualityLoad: func(*handle.Handle) {
			ev.add("low")
			close(highGate)
		},
		OnHighQualityLoad: func(*handle.Handle) { ev.add("high") },
		OnError: func(err error) {
			ev.add("error")
			reported = err
		},
	})
	if res != nil {
		t.Fatalf("expected nil result on failure")
	}
	if !errors.Is(err, boom) || !errors.Is(reported, boom) {
		t.Fatalf("Load error = %v, OnError got %v", err, reported)
	}
	if got := ev.get(); !reflect.DeepEqual(got, []string{"low", "error"}) {
		t.Fatalf("callbacks = %v", got)
	}
	if fx.store.Outstanding() != 0 {
		t.Fatalf("low tier handle leaked: outstanding = %d", fx.store.Outstanding())
	}
}

func TestLoadLowFailureIsSuppressed(t *testing.T) {
	fx := newLoaderFixture(t)
	highGate := fx.fetcher.block("high")
	fx.fetcher.failWith("low", errors.New("no preview"))
	fx.hooks.onLowFail = func() { close(highGate) }
	var ev events

	res, err := fx.loader.Load(context.Background(), LoadRequest{
		LowQualityURL:     "low",
		HighQualityURL:    "high",
		OnLowQualityLoad:  func(*handle.Handle) { ev.add("low") },
		OnHighQualityLoad: func(*handle.Handle) { ev.add("high") },
		OnError:           func(error) { ev.add("error") },
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := ev.get(); !reflect.DeepEqual(got, []string{"high"}) {
		t.Fatalf("callbacks = %v", got)
	}
	if res.LowQuality != nil {
		t.Fatalf("failed low tier must not appear in the result")
	}
	fx.hooks.mu.Lock()
	lowFailed := append([]string(nil), fx.hooks.lowFailed...)
	fx.hooks.mu.Unlock()
	if !reflect.DeepEqual(lowFailed, []string{"low"}) {
		t.Fatalf("LowQualityFailed = %v", lowFailed)
	}
}

func TestLoadLateLowTierFiresThenReleases(t *testing.T) {
	fx := newLoaderFixture(t)
	lowGate := fx.fetcher.block("low")
	var ev events

	res, err := fx.loader.Load(context.Background(), LoadRequest{
		LowQualityURL:  "low",
		HighQualityURL: "high",
		OnLowQualityLoad: func(h *handle.Handle) {
			if h.Released() {
				ev.add("low:released")
				return
			}
			ev.add("low:" + string(h.Bytes()))
		},
		OnHighQualityLoad: func(*handle.Handle) { ev.add("high") },
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.LowQuality != nil {
		t.Fatalf("low tier still in flight must not be in the result")
	}

	close(lowGate)
	eventually(t, "late low tier to be released", func() bool {
		issued, revoked := fx.store.Counters()
		return issued == 2 && revoked == 1
	})
	if got := ev.get(); !reflect.DeepEqual(got, []string{"high", "low:img:low"}) {
		t.Fatalf("callbacks = %v", got)
	}
	if fx.store.Outstanding() != 1 {
		t.Fatalf("outstanding = %d, want only the high tier", fx.store.Outstanding())
	}
	if !fx.cache.Contains("low") {
		t.Fatalf("late low tier should still warm the byte cache")
	}
}

// A low tier landing after a failed high tier is still reported.
func TestLoadLateLowTierAfterHighFailure(t *testing.T) {
	fx := newLoaderFixture(t)
	lowGate := fx.fetcher.block("low")
	fx.fetcher.failWith("high", errors.New("boom"))
	var ev events

	if _, err := fx.loader.Load(context.Background(), LoadRequest{
		LowQualityURL:    "low",
		HighQualityURL:   "high",
		OnLowQualityLoad: func(*handle.Handle) { ev.add("low") },
		OnError:          func(error) { ev.add("error") },
	}); err == nil {
		t.Fatalf("expected high tier error")
	}

	close(lowGate)
	eventually(t, "late low tier callback", func() bool { return len(ev.get()) == 2 })
	if got := ev.get(); !reflect.DeepEqual(got, []string{"error", "low"}) {
		t.Fatalf("callbacks = %v", got)
	}
	eventually(t, "no outstanding handles", func() bool { return fx.store.Outstanding() == 0 })
}

func TestLoadRequiresHighQualityURL(t *testing.T) {
	fx := newLoaderFixture(t)
	if _, err := fx.loader.Load(context.Background(), LoadRequest{LowQualityURL: "low"}); !errors.Is(err, ErrNoHighQualityURL) {
		t.Fatalf("expected ErrNoHighQualityURL, got %v", err)
	}
	if fx.fetcher.total() != 0 {
		t.Fatalf("usage error must not fetch anything")
	}
	if _, err := NewLoader(LoaderOptions{}); err == nil {
		t.Fatalf("expected error without cache")
	}
}
