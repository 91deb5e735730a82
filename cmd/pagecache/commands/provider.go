package commands

import (
	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/pagecache/provider"
	"github.com/unkn0wn-root/pagecache/provider/bigcache"
	"github.com/unkn0wn-root/pagecache/provider/gocache"
	"github.com/unkn0wn-root/pagecache/provider/redis"
	"github.com/unkn0wn-root/pagecache/provider/ristretto"
)

// newProvider builds the byte store named by config.Provider.
func newProvider(config *Config) (pr.Provider, error) {
	switch config.Provider {
	case ProviderBigCache:
		mb := int(config.CacheSizeMax >> 20)
		if mb < 1 {
			mb = 1
		}
		p, err := bigcache.New(bigcache.Config{
			LifeWindow:         config.CacheMaxAge,
			HardMaxCacheSizeMB: mb,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	case ProviderRistretto:
		p, err := ristretto.New(ristretto.Config{
			NumCounters: 1e5,
			MaxCost:     config.CacheSizeMax,
			BufferItems: 64,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	case ProviderRedis:
		p, err := redis.New(redis.Config{
			Client:      goredis.NewClient(&goredis.Options{Addr: config.RedisAddr}),
			Prefix:      "pagecache:",
			CloseClient: true,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return gocache.New(gocache.Config{}), nil
}
