package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/unkn0wn-root/pagecache"
)

func TestNewConfigFromYAML(t *testing.T) {
	config, err := NewConfigFromYAML([]byte(`
base_url: https://reader.example/api/documents/42
logger: zap
provider: ristretto
cache_size_max: 1048576
cache_max_age: 2h
adjacent_pages: 4
preload_delay: 250ms
fetch_timeout: 10s
`))
	if err != nil {
		t.Fatalf("NewConfigFromYAML: %v", err)
	}
	if config.Logger != LoggerZap || config.Provider != ProviderRistretto {
		t.Fatalf("unexpected backends %q/%q", config.Logger, config.Provider)
	}
	if config.CacheSizeMax != 1<<20 || config.CacheMaxAge != 2*time.Hour {
		t.Fatalf("unexpected cache settings %+v", config)
	}
	if config.PreloadDelay != 250*time.Millisecond || config.FetchTimeout != 10*time.Second {
		t.Fatalf("durations not parsed: %+v", config)
	}
	// untouched keys keep their defaults
	if config.MaxConcurrentLoads != pagecache.DefaultMaxConcurrentLoads || config.KeepRange != pagecache.DefaultKeepRange {
		t.Fatalf("defaults lost: %+v", config)
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestNewConfigFromYAMLRejectsUnknownKeys(t *testing.T) {
	if _, err := NewConfigFromYAML([]byte("base_url: http://x\nadjacent: 3\n")); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestEmptyYAMLIsDefaults(t *testing.T) {
	config, err := NewConfigFromYAML([]byte("  \n"))
	if err != nil {
		t.Fatalf("NewConfigFromYAML: %v", err)
	}
	if *config != *NewDefaultConfig() {
		t.Fatalf("empty yaml should yield defaults, got %+v", config)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := NewDefaultConfig()
		c.BaseURL = "http://localhost/doc"
		return c
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing base url", func(c *Config) { c.BaseURL = "" }, "base URL"},
		{"bad scheme", func(c *Config) { c.BaseURL = "ftp://x" }, "http or https"},
		{"bad logger", func(c *Config) { c.Logger = "glog" }, "unknown logger"},
		{"bad provider", func(c *Config) { c.Provider = "memcached" }, "unknown provider"},
		{"redis without addr", func(c *Config) { c.Provider = ProviderRedis }, "redis_addr"},
		{"zero cache size", func(c *Config) { c.CacheSizeMax = 0 }, "cache size"},
		{"negative keep range", func(c *Config) { c.KeepRange = -1 }, "keep range"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate = %v, want error containing %q", err, tc.want)
			}
		})
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagecache.yaml")
	yaml := "base_url: http://from-file/doc\nadjacent_pages: 4\nprovider: bigcache\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := NewRootCmd()
	if err := cmd.ParseFlags([]string{"--config", path, "--adjacent", "0", "--logger", "slog"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	config, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if config.BaseURL != "http://from-file/doc" || config.Provider != ProviderBigCache {
		t.Fatalf("file values lost: %+v", config)
	}
	if config.AdjacentPages != 0 || config.Logger != LoggerSlog {
		t.Fatalf("flags did not override: %+v", config)
	}

	patch := config.PreloadPatch()
	if got := pagecache.DefaultPreloadConfig().Merge(patch); got.AdjacentPages != 0 {
		t.Fatalf("explicit zero lost in patch: %+v", got)
	}
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{ProviderGoCache, ProviderBigCache, ProviderRistretto, ProviderRedis} {
		t.Run(name, func(t *testing.T) {
			c := NewDefaultConfig()
			c.Provider = name
			c.RedisAddr = "127.0.0.1:1"
			p, err := newProvider(c)
			if err != nil {
				t.Fatalf("newProvider(%s): %v", name, err)
			}
			if err := p.Close(context.Background()); err != nil {
				t.Fatalf("Close: %v", err)
			}
		})
	}
}
