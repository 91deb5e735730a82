// Package gocache is the default in-process provider, backed by
// patrickmn/go-cache.
package gocache

import (
	"context"
	"time"

	gc "github.com/patrickmn/go-cache"

	pr "github.com/unkn0wn-root/pagecache/provider"
)

type Provider struct {
	c *gc.Cache
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	// CleanupInterval is how often expired items are purged; 0 => 10m.
	CleanupInterval time.Duration
}

func New(cfg Config) *Provider {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Provider{c: gc.New(gc.NoExpiration, interval)}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		p.c.Delete(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = gc.NoExpiration
	}
	p.c.Set(key, value, ttl)
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Delete(key)
	return nil
}

// Close flushes all items. go-cache's janitor goroutine stops once the
// cache becomes unreachable.
func (p *Provider) Close(_ context.Context) error {
	p.c.Flush()
	return nil
}

// Len is the number of stored items, including expired ones not yet purged.
func (p *Provider) Len() int { return p.c.ItemCount() }
