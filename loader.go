package pagecache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/pagecache/handle"
)

type loader struct {
	cache ByteCache
	log   Logger
	hooks Hooks
}

func newLoader(opts LoaderOptions) (*loader, error) {
	if opts.Cache == nil {
		return nil, errors.New("pagecache: byte cache is required")
	}
	return &loader{
		cache: opts.Cache,
		log:   newComponentLogger(opts.Logger, "loader"),
		hooks: coalesceHooks(opts.Hooks),
	}, nil
}

// Load starts both tiers at once and returns when the high quality tier
// settles. A low quality tier still in flight at that point is not awaited.
// When it lands, OnLowQualityLoad still fires, but the handle is kept out of
// the LoadResult: it is valid only until the callback returns, after which
// Load releases it.
func (l *loader) Load(ctx context.Context, req LoadRequest) (*LoadResult, error) {
	if req.HighQualityURL == "" {
		return nil, ErrNoHighQualityURL
	}

	var (
		mu      sync.Mutex
		settled bool
		low     *handle.Handle
	)

	if req.LowQualityURL != "" {
		go func() {
			h, err := l.cache.GetOrFetch(ctx, req.LowQualityURL)
			if err != nil {
				l.log.Warn("low quality tier failed", Fields{"url": req.LowQualityURL, "err": err})
				l.hooks.LowQualityFailed(req.LowQualityURL, err)
				return
			}

			mu.Lock()
			if settled {
				mu.Unlock()
				l.log.Debug("low quality tier arrived late", Fields{"url": req.LowQualityURL})
				if req.OnLowQualityLoad != nil {
					req.OnLowQualityLoad(h)
				}
				h.Release()
				return
			}
			defer mu.Unlock()
			low = h
			// under mu so the callback completes before the high tier settles
			if req.OnLowQualityLoad != nil {
				req.OnLowQualityLoad(h)
			}
		}()
	}

	high, err := l.cache.GetOrFetch(ctx, req.HighQualityURL)

	mu.Lock()
	settled = true
	lowH := low
	mu.Unlock()

	if err != nil {
		lowH.Release()
		l.log.Warn("high quality tier failed", Fields{"url": req.HighQualityURL, "err": err})
		if req.OnError != nil {
			req.OnError(err)
		}
		return nil, fmt.Errorf("pagecache: load %q: %w", req.HighQualityURL, err)
	}

	if req.OnHighQualityLoad != nil {
		req.OnHighQualityLoad(high)
	}
	return &LoadResult{LowQuality: lowH, HighQuality: high}, nil
}
