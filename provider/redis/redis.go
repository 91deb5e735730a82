// Package redis stores ByteCache entries in Redis so several reader processes
// share fetched page images. Entries carry their own cachedAt (see
// internal/wire), so a ByteCache adopts them after a restart without
// refetching.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/pagecache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// DefaultMaxValueBytes is Redis' own string limit.
const DefaultMaxValueBytes = 512 << 20

type Config struct {
	Client goredis.UniversalClient
	// Prefix is prepended to every key, e.g. "reader:" to keep several
	// deployments apart on one server.
	Prefix string
	// MaxValueBytes makes Set refuse larger values; the cache then serves the
	// payload uncached. 0 => DefaultMaxValueBytes.
	MaxValueBytes int
	CloseClient   bool // set true only if this provider exclusively owns the client
}

type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	maxValue    int
	closeClient bool
}

var _ pr.Provider = (*Redis)(nil)

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	maxValue := cfg.MaxValueBytes
	if maxValue <= 0 {
		maxValue = DefaultMaxValueBytes
	}
	return &Redis{
		rdb:         cfg.Client,
		prefix:      cfg.Prefix,
		maxValue:    maxValue,
		closeClient: cfg.CloseClient,
	}, nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, p.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if len(value) > p.maxValue {
		return false, nil
	}
	// go-redis reads a ttl of -1 as KEEPTTL, which would let a replaced entry
	// inherit the old expiry; every negative ttl means "no expiry" here.
	if ttl < 0 {
		ttl = 0
	}
	if err := p.rdb.Set(ctx, p.prefix+key, value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, p.prefix+key).Err()
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
