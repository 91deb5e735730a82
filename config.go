package pagecache

import "time"

const (
	DefaultAdjacentPages      = 2
	DefaultMaxConcurrentLoads = 3
	DefaultPreloadDelay       = 500 * time.Millisecond

	// DefaultKeepRange is the conventional keepRange argument of Cleanup.
	DefaultKeepRange = 5
	// PageStaleAfter is the age past which Cleanup drops a preloaded page.
	PageStaleAfter = 5 * time.Minute

	DefaultMaxCacheSizeBytes int64 = 100 << 20
	DefaultMaxCacheAge             = 24 * time.Hour
)

// PreloadConfig is an immutable scheduler configuration value.
type PreloadConfig struct {
	AdjacentPages      int           // pages prefetched on each side of the current page
	MaxConcurrentLoads int           // fetches started by one scheduling pass
	PreloadDelay       time.Duration // debounce before a pass starts
}

// PreloadConfigPatch carries optional overrides; nil fields keep the current value.
type PreloadConfigPatch struct {
	AdjacentPages      *int
	MaxConcurrentLoads *int
	PreloadDelay       *time.Duration
}

func DefaultPreloadConfig() PreloadConfig {
	return PreloadConfig{
		AdjacentPages:      DefaultAdjacentPages,
		MaxConcurrentLoads: DefaultMaxConcurrentLoads,
		PreloadDelay:       DefaultPreloadDelay,
	}
}

// Merge returns a new config with the patch applied. The receiver is not
// modified. Out-of-range values are clamped: AdjacentPages and PreloadDelay
// to >= 0, MaxConcurrentLoads to >= 1.
func (c PreloadConfig) Merge(p PreloadConfigPatch) PreloadConfig {
	out := c
	if p.AdjacentPages != nil {
		out.AdjacentPages = *p.AdjacentPages
	}
	if p.MaxConcurrentLoads != nil {
		out.MaxConcurrentLoads = *p.MaxConcurrentLoads
	}
	if p.PreloadDelay != nil {
		out.PreloadDelay = *p.PreloadDelay
	}
	return out.clamp()
}

// withDefaults fills zero fields from DefaultPreloadConfig. Used for the
// Options value, where zero means "unset".
func (c PreloadConfig) withDefaults() PreloadConfig {
	d := DefaultPreloadConfig()
	c.AdjacentPages = coalesce(c.AdjacentPages, d.AdjacentPages)
	c.MaxConcurrentLoads = coalesce(c.MaxConcurrentLoads, d.MaxConcurrentLoads)
	c.PreloadDelay = coalesce(c.PreloadDelay, d.PreloadDelay)
	return c.clamp()
}

func (c PreloadConfig) clamp() PreloadConfig {
	if c.AdjacentPages < 0 {
		c.AdjacentPages = 0
	}
	if c.MaxConcurrentLoads < 1 {
		c.MaxConcurrentLoads = 1
	}
	if c.PreloadDelay < 0 {
		c.PreloadDelay = 0
	}
	return c
}

// Int and Duration build patch fields inline:
//
//	p.UpdateConfig(PreloadConfigPatch{AdjacentPages: pagecache.Int(4)})
func Int(v int) *int                          { return &v }
func Duration(v time.Duration) *time.Duration { return &v }
