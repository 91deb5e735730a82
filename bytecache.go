package pagecache

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/pagecache/handle"
	"github.com/unkn0wn-root/pagecache/internal/util"
	"github.com/unkn0wn-root/pagecache/internal/wire"
	pr "github.com/unkn0wn-root/pagecache/provider"
	"github.com/unkn0wn-root/pagecache/provider/gocache"
)

// byteEntry is the index record of a cached URL. The payload lives in the
// provider under storageKey.
type byteEntry struct {
	url            string
	storageKey     string
	size           int64
	cachedAt       time.Time
	accessCount    uint64
	lastAccessedAt time.Time
}

type byteCache struct {
	ns       string
	provider pr.Provider
	fetcher  Fetcher
	handles  *handle.Store
	log      Logger
	hooks    Hooks
	now      func() time.Time
	maxSize  int64
	maxAge   time.Duration
	timeout  time.Duration

	// shared fetches outlive the caller that started them; baseCtx ends them on Close
	baseCtx context.Context
	cancel  context.CancelFunc
	flights singleflight.Group

	// index orders entries by recency; its own size bound is never reached,
	// eviction is driven by used against maxSize.
	mu    sync.Mutex
	index *simplelru.LRU
	used  int64

	closed    atomic.Bool
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

func newByteCache(opts ByteCacheOptions) (*byteCache, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("pagecache: fetcher is required")
	}
	if opts.MaxSizeBytes < 0 {
		return nil, errors.New("pagecache: max cache size must not be negative")
	}
	index, err := simplelru.NewLRU(math.MaxInt32, nil)
	if err != nil {
		return nil, err
	}

	c := &byteCache{
		ns:       coalesce(opts.Namespace, "img"),
		provider: opts.Provider,
		fetcher:  opts.Fetcher,
		handles:  opts.Handles,
		log:      newComponentLogger(opts.Logger, "bytecache"),
		hooks:    coalesceHooks(opts.Hooks),
		now:      opts.Now,
		maxSize:  coalesce(opts.MaxSizeBytes, DefaultMaxCacheSizeBytes),
		maxAge:   coalesce(opts.MaxAge, DefaultMaxCacheAge),
		timeout:  opts.FetchTimeout,
		index:    index,
	}
	c.baseCtx, c.cancel = context.WithCancel(context.Background())
	if c.provider == nil {
		c.provider = gocache.New(gocache.Config{})
	}
	if c.handles == nil {
		c.handles = handle.NewStore()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

func (c *byteCache) GetOrFetch(ctx context.Context, url string) (*handle.Handle, error) {
	data, err := c.getOrFetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return c.handles.Create(data), nil
}

// Fetch makes the cache usable wherever a Fetcher is expected, e.g. as the
// Preloader's fetcher so both share one URL-keyed store.
func (c *byteCache) Fetch(ctx context.Context, url string) ([]byte, error) {
	return c.getOrFetch(ctx, url)
}

func (c *byteCache) getOrFetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if data, ok := c.lookup(ctx, url); ok {
		c.hits.Add(1)
		c.hooks.ByteCacheHit(url)
		return data, nil
	}
	c.misses.Add(1)
	c.hooks.ByteCacheMiss(url)

	// concurrent misses on one url share a single fetch, detached from any
	// one caller; each caller stops waiting when its own ctx ends
	ch := c.flights.DoChan(url, func() (any, error) {
		fctx, cancel := c.fetchContext(ctx)
		defer cancel()
		data, err := c.fetcher.Fetch(fctx, url)
		if err != nil {
			return nil, err
		}
		c.admit(fctx, url, data)
		return data, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			c.log.Debug("fetch failed", Fields{"url": url, "err": r.Err})
			return nil, r.Err
		}
		return r.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetchContext keeps the values of ctx but not its cancellation. The result
// ends on Close or after the fetch timeout.
func (c *byteCache) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.baseCtx, cancel)
	if c.timeout > 0 {
		var cancelTimeout context.CancelFunc
		fctx, cancelTimeout = context.WithTimeout(fctx, c.timeout)
		return fctx, func() { cancelTimeout(); stop(); cancel() }
	}
	return fctx, func() { stop(); cancel() }
}

// lookup serves url from the index and provider. Stale, missing and corrupt
// entries are dropped on the way. An index miss still consults the provider,
// which may be shared with other processes; a fresh entry found there is
// adopted into the index.
func (c *byteCache) lookup(ctx context.Context, url string) ([]byte, bool) {
	now := c.now()
	key := util.StorageKey("bytes:"+c.ns, url)

	c.mu.Lock()
	var indexed *byteEntry
	if v, ok := c.index.Get(url); ok {
		e := v.(*byteEntry)
		if now.Sub(e.cachedAt) >= c.maxAge {
			c.removeLocked(e)
			c.mu.Unlock()
			c.dropStored(ctx, e, "expired")
			return nil, false
		}
		e.accessCount++
		e.lastAccessedAt = now
		indexed = e
	}
	c.mu.Unlock()

	raw, ok, err := c.provider.Get(ctx, key)
	if err != nil {
		c.log.Warn("provider get failed", Fields{"url": url, "err": err})
		return nil, false
	}
	if !ok {
		if indexed != nil {
			// provider dropped it on its own; forget the index record
			c.forget(indexed, "missing")
		}
		return nil, false
	}

	ent, err := wire.DecodeEntry(raw)
	if err != nil || ent.URL != url {
		_ = c.provider.Del(ctx, key) // self-heal corrupt
		if indexed != nil {
			c.forget(indexed, "corrupt")
		}
		return nil, false
	}
	if indexed != nil {
		return ent.Payload, true
	}

	if now.Sub(ent.CachedAt) >= c.maxAge {
		_ = c.provider.Del(ctx, key)
		return nil, false
	}
	if !c.record(ctx, url, key, ent.CachedAt, int64(len(ent.Payload))) {
		return nil, false
	}
	return ent.Payload, true
}

// admit stores a fetched payload. Oversized payloads and provider refusals are
// not cached; the caller still gets the bytes.
func (c *byteCache) admit(ctx context.Context, url string, data []byte) {
	size := int64(len(data))
	if size > c.maxSize {
		c.log.Warn("payload larger than cache ceiling; serving uncached", Fields{"url": url, "size": size, "max": c.maxSize})
		c.hooks.AdmissionRejected(url, size)
		return
	}

	now := c.now()
	key := util.StorageKey("bytes:"+c.ns, url)
	framed, err := wire.EncodeEntry(now, url, data)
	if err != nil {
		c.log.Warn("cannot frame entry; serving uncached", Fields{"url": url, "err": err})
		c.hooks.AdmissionRejected(url, size)
		return
	}
	ok, err := c.provider.Set(ctx, key, framed, size, c.maxAge)
	if err != nil || !ok {
		c.log.Debug("provider refused entry; serving uncached", Fields{"url": url, "size": size, "err": err})
		c.hooks.AdmissionRejected(url, size)
		return
	}
	c.record(ctx, url, key, now, size)
}

// record indexes url as the most recent entry, evicting least recently used
// entries until it fits. Returns false if it can never fit.
func (c *byteCache) record(ctx context.Context, url, key string, cachedAt time.Time, size int64) bool {
	if size > c.maxSize {
		return false
	}
	now := c.now()

	c.mu.Lock()
	if v, ok := c.index.Peek(url); ok {
		// replaced in place; the provider value was already overwritten
		c.removeLocked(v.(*byteEntry))
	}
	var evicted []*byteEntry
	for c.used+size > c.maxSize && c.index.Len() > 0 {
		_, v, _ := c.index.RemoveOldest()
		e := v.(*byteEntry)
		c.used -= e.size
		evicted = append(evicted, e)
	}
	c.index.Add(url, &byteEntry{
		url:            url,
		storageKey:     key,
		size:           size,
		cachedAt:       cachedAt,
		lastAccessedAt: now,
	})
	c.used += size
	c.mu.Unlock()

	// an evicted url re-admitted meanwhile loses its provider copy here and
	// self-heals as "missing" on the next lookup
	for _, e := range evicted {
		c.dropStored(ctx, e, "lru")
	}
	return true
}

func (c *byteCache) EvictExpired(ctx context.Context) int {
	now := c.now()

	c.mu.Lock()
	var expired []*byteEntry
	for _, k := range c.index.Keys() {
		v, ok := c.index.Peek(k)
		if !ok {
			continue
		}
		e := v.(*byteEntry)
		if now.Sub(e.cachedAt) >= c.maxAge {
			c.removeLocked(e)
			expired = append(expired, e)
		}
	}
	c.mu.Unlock()

	for _, e := range expired {
		c.dropStored(ctx, e, "expired")
	}
	if len(expired) > 0 {
		c.log.Debug("expired entries evicted", Fields{"evicted": len(expired)})
	}
	return len(expired)
}

func (c *byteCache) Contains(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Contains(url)
}

func (c *byteCache) Inspect(url string) (ByteEntryInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.index.Peek(url)
	if !ok {
		return ByteEntryInfo{}, false
	}
	e := v.(*byteEntry)
	return ByteEntryInfo{
		URL:            e.url,
		SizeBytes:      e.size,
		CachedAt:       e.cachedAt,
		AccessCount:    e.accessCount,
		LastAccessedAt: e.lastAccessedAt,
	}, true
}

func (c *byteCache) Stats() ByteCacheStats {
	c.mu.Lock()
	entries, used := c.index.Len(), c.used
	c.mu.Unlock()
	return ByteCacheStats{
		Entries:      entries,
		SizeBytes:    used,
		MaxSizeBytes: c.maxSize,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Evictions:    c.evictions.Load(),
	}
}

func (c *byteCache) Clear(ctx context.Context) {
	c.mu.Lock()
	all := make([]*byteEntry, 0, c.index.Len())
	for _, k := range c.index.Keys() {
		if v, ok := c.index.Peek(k); ok {
			all = append(all, v.(*byteEntry))
		}
	}
	c.index.Purge()
	c.used = 0
	c.mu.Unlock()

	for _, e := range all {
		c.dropStored(ctx, e, "clear")
	}
}

func (c *byteCache) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	c.Clear(ctx)
	return c.provider.Close(ctx)
}

// removeLocked drops e from the index if it is still the current record for
// its url. Caller must hold c.mu.
func (c *byteCache) removeLocked(e *byteEntry) bool {
	v, ok := c.index.Peek(e.url)
	if !ok || v.(*byteEntry) != e {
		return false
	}
	c.index.Remove(e.url)
	c.used -= e.size
	return true
}

func (c *byteCache) forget(e *byteEntry, reason string) {
	c.mu.Lock()
	removed := c.removeLocked(e)
	c.mu.Unlock()
	if removed {
		c.evictions.Add(1)
		c.hooks.ByteEvicted(e.url, e.size, reason)
	}
}

// dropStored releases the provider copy of an entry already removed from the index.
func (c *byteCache) dropStored(ctx context.Context, e *byteEntry, reason string) {
	if err := c.provider.Del(ctx, e.storageKey); err != nil {
		c.log.Warn("provider delete failed", Fields{"url": e.url, "err": err})
	}
	if reason != "clear" {
		c.evictions.Add(1)
	}
	c.hooks.ByteEvicted(e.url, e.size, reason)
}
