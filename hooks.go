package pagecache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; they are called on fetch
// completion paths. Wrap slow sinks with hooks/async.
type Hooks interface {
	// A prefetch for page was issued.
	PrefetchStarted(page int)
	// A prefetch failed. The page stays eligible for the next window.
	PrefetchFailed(page int, err error)
	// A prefetch completed after ClearAll/Close and its result was dropped.
	PrefetchDiscarded(page int)
	// A preloaded page left the cache.
	// reason ∈ {"range", "stale", "clear"}
	PageEvicted(page int, reason string)

	// Byte cache lookups.
	ByteCacheHit(url string)
	ByteCacheMiss(url string)
	// A URL entry left the byte cache.
	// reason ∈ {"lru", "expired", "missing", "corrupt", "clear"}
	ByteEvicted(url string, size int64, reason string)
	// A fetched payload was served uncached (larger than the ceiling, or the
	// provider refused the write).
	AdmissionRejected(url string, size int64)

	// The optional low quality tier of a progressive load failed.
	LowQualityFailed(url string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) PrefetchStarted(int)               {}
func (NopHooks) PrefetchFailed(int, error)         {}
func (NopHooks) PrefetchDiscarded(int)             {}
func (NopHooks) PageEvicted(int, string)           {}
func (NopHooks) ByteCacheHit(string)               {}
func (NopHooks) ByteCacheMiss(string)              {}
func (NopHooks) ByteEvicted(string, int64, string) {}
func (NopHooks) AdmissionRejected(string, int64)   {}
func (NopHooks) LowQualityFailed(string, error)    {}

// MultiHooks delivers every event to each non-nil hook in order.
func MultiHooks(hs ...Hooks) Hooks {
	out := make(multiHooks, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			out = append(out, h)
		}
	}
	switch len(out) {
	case 0:
		return NopHooks{}
	case 1:
		return out[0]
	}
	return out
}

type multiHooks []Hooks

func (m multiHooks) PrefetchStarted(page int) {
	for _, h := range m {
		h.PrefetchStarted(page)
	}
}

func (m multiHooks) PrefetchFailed(page int, err error) {
	for _, h := range m {
		h.PrefetchFailed(page, err)
	}
}

func (m multiHooks) PrefetchDiscarded(page int) {
	for _, h := range m {
		h.PrefetchDiscarded(page)
	}
}

func (m multiHooks) PageEvicted(page int, reason string) {
	for _, h := range m {
		h.PageEvicted(page, reason)
	}
}

func (m multiHooks) ByteCacheHit(url string) {
	for _, h := range m {
		h.ByteCacheHit(url)
	}
}

func (m multiHooks) ByteCacheMiss(url string) {
	for _, h := range m {
		h.ByteCacheMiss(url)
	}
}

func (m multiHooks) ByteEvicted(url string, size int64, reason string) {
	for _, h := range m {
		h.ByteEvicted(url, size, reason)
	}
}

func (m multiHooks) AdmissionRejected(url string, size int64) {
	for _, h := range m {
		h.AdmissionRejected(url, size)
	}
}

func (m multiHooks) LowQualityFailed(url string, err error) {
	for _, h := range m {
		h.LowQualityFailed(url, err)
	}
}

func coalesceHooks(h Hooks) Hooks {
	if h == nil {
		return NopHooks{}
	}
	return h
}

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
