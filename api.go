package pagecache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/pagecache/handle"
	pr "github.com/unkn0wn-root/pagecache/provider"
)

// Preloader speculatively warms a page-number keyed cache around the page
// currently on screen. All methods are safe for concurrent use.
type Preloader interface {
	// Schedule re-arms the debounce timer; when it fires, the window around
	// currentPage is prefetched. totalPages <= 0 means the page count is unknown.
	Schedule(currentPage, totalPages int)

	IsPreloaded(page int) bool
	// PreloadedHandle materializes a fresh handle for a cached page. The caller
	// owns the handle. The entry stays cached.
	PreloadedHandle(page int) (*handle.Handle, bool)

	// Cleanup evicts pages farther than keepRange from currentPage and pages
	// older than the staleness threshold. It returns the number evicted.
	Cleanup(currentPage, keepRange int) int
	Stats() PreloadStats
	ClearAll()

	Config() PreloadConfig
	UpdateConfig(patch PreloadConfigPatch) PreloadConfig

	// Wait blocks until no timer is armed and no prefetch is running.
	Wait(ctx context.Context) error
	Close() error
}

// ByteCache is a URL-keyed byte cache bounded by total size and entry age.
type ByteCache interface {
	Fetcher

	// GetOrFetch returns a new caller-owned handle for url, fetching on miss.
	GetOrFetch(ctx context.Context, url string) (*handle.Handle, error)
	// EvictExpired drops entries older than MaxAge and returns how many.
	EvictExpired(ctx context.Context) int
	Contains(url string) bool
	// Inspect reports the index record of url without touching its recency.
	Inspect(url string) (ByteEntryInfo, bool)
	Stats() ByteCacheStats
	Clear(ctx context.Context)
	Close(ctx context.Context) error
}

// Loader renders an image progressively: an optional low quality tier first,
// then the mandatory high quality tier.
type Loader interface {
	Load(ctx context.Context, req LoadRequest) (*LoadResult, error)
}

// PreloadStats is a point-in-time snapshot of a Preloader.
type PreloadStats struct {
	PreloadedCount   int
	LoadingCount     int
	MemoryUsageBytes int64
}

// ByteCacheStats is a point-in-time snapshot of a ByteCache.
type ByteCacheStats struct {
	Entries      int
	SizeBytes    int64
	MaxSizeBytes int64
	Hits         uint64
	Misses       uint64
	Evictions    uint64
}

// ByteEntryInfo describes one cached URL.
type ByteEntryInfo struct {
	URL            string
	SizeBytes      int64
	CachedAt       time.Time
	AccessCount    uint64 // hits since admission
	LastAccessedAt time.Time
}

// PreloadOptions configure NewPreloader.
// Fetcher and PageURL are required; others have sensible defaults.
type PreloadOptions struct {
	// Required
	Fetcher Fetcher
	PageURL PageURLFunc // e.g. PageImageURL("https://host/api/docs/42")

	Config       PreloadConfig // zero fields => DefaultPreloadConfig values
	Handles      *handle.Store // nil => private store
	Logger       Logger        // nil => NopLogger
	Hooks        Hooks         // nil => NopHooks
	FetchTimeout time.Duration // per prefetch; 0 => no timeout
	StaleAfter   time.Duration // 0 => PageStaleAfter
	Now          func() time.Time
}

// ByteCacheOptions configure NewByteCache. Only Fetcher is required.
type ByteCacheOptions struct {
	Fetcher Fetcher

	Namespace    string        // storage key prefix; "" => "img"
	Provider     pr.Provider   // nil => in-process go-cache provider
	MaxSizeBytes int64         // 0 => 100 MiB
	MaxAge       time.Duration // 0 => 24h
	FetchTimeout time.Duration // per shared fetch; 0 => no timeout
	Handles      *handle.Store // nil => private store
	Logger       Logger
	Hooks        Hooks
	Now          func() time.Time
}

// LoaderOptions configure NewLoader. Cache is required.
type LoaderOptions struct {
	Cache  ByteCache
	Logger Logger
	Hooks  Hooks
}

// LoadRequest describes one progressive load. Callbacks run on the goroutine
// that completed the tier and must not block for long. Handles passed to
// callbacks belong to the eventual LoadResult; do not release them directly.
// A low quality tier landing after the high quality tier settled still fires
// OnLowQualityLoad, with a handle that is released once the callback returns.
type LoadRequest struct {
	LowQualityURL  string // optional
	HighQualityURL string // required

	OnLowQualityLoad  func(h *handle.Handle)
	OnHighQualityLoad func(h *handle.Handle)
	OnError           func(err error)
}

// LoadResult is owned by the caller of Load.
type LoadResult struct {
	LowQuality  *handle.Handle // nil unless the low tier arrived first
	HighQuality *handle.Handle
}

// Release revokes both handles. Safe to call more than once.
func (r *LoadResult) Release() {
	if r == nil {
		return
	}
	r.LowQuality.Release()
	r.HighQuality.Release()
}

func NewPreloader(opts PreloadOptions) (Preloader, error) {
	return newPreloader(opts)
}

func NewByteCache(opts ByteCacheOptions) (ByteCache, error) {
	return newByteCache(opts)
}

func NewLoader(opts LoaderOptions) (Loader, error) {
	return newLoader(opts)
}
