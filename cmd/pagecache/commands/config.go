package commands

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/pagecache"
)

const (
	LoggerLogrus = "logrus"
	LoggerZap    = "zap"
	LoggerSlog   = "slog"

	ProviderGoCache   = "gocache"
	ProviderBigCache  = "bigcache"
	ProviderRistretto = "ristretto"
	ProviderRedis     = "redis"

	JanitorIntervalDefault = time.Minute
)

// Config holds the parameters list which can be configured
type Config struct {
	BaseURL string `yaml:"base_url"`

	LogPath  string `yaml:"log_path,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`
	Logger   string `yaml:"logger,omitempty"`

	Provider     string        `yaml:"provider,omitempty"`
	RedisAddr    string        `yaml:"redis_addr,omitempty"`
	CacheSizeMax int64         `yaml:"cache_size_max,omitempty"`
	CacheMaxAge  time.Duration `yaml:"cache_max_age,omitempty"`

	AdjacentPages      int           `yaml:"adjacent_pages,omitempty"`
	MaxConcurrentLoads int           `yaml:"max_concurrent_loads,omitempty"`
	PreloadDelay       time.Duration `yaml:"preload_delay,omitempty"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout,omitempty"`
	KeepRange          int           `yaml:"keep_range,omitempty"`
	JanitorInterval    time.Duration `yaml:"janitor_interval,omitempty"`

	PrometheusAddr string `yaml:"prometheus_addr,omitempty"`
	TraceEvents    bool   `yaml:"trace_events,omitempty"`
}

// NewDefaultConfig creates DefaultConfig
func NewDefaultConfig() *Config {
	return &Config{
		LogLevel:           "info",
		Logger:             LoggerLogrus,
		Provider:           ProviderGoCache,
		CacheSizeMax:       pagecache.DefaultMaxCacheSizeBytes,
		CacheMaxAge:        pagecache.DefaultMaxCacheAge,
		AdjacentPages:      pagecache.DefaultAdjacentPages,
		MaxConcurrentLoads: pagecache.DefaultMaxConcurrentLoads,
		PreloadDelay:       pagecache.DefaultPreloadDelay,
		KeepRange:          pagecache.DefaultKeepRange,
		JanitorInterval:    JanitorIntervalDefault,
	}
}

// NewConfigFromYAML overlays yamlBytes on the defaults. Unknown keys are
// rejected.
func NewConfigFromYAML(yamlBytes []byte) (*Config, error) {
	config := NewDefaultConfig()
	if len(bytes.TrimSpace(yamlBytes)) == 0 {
		return config, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(yamlBytes))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml into config: %w", err)
	}
	return config, nil
}

// LoadConfigFile reads a YAML config file. An empty path yields the defaults.
func LoadConfigFile(path string) (*Config, error) {
	if path == "" {
		return NewDefaultConfig(), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	yamlBytes, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("could not read the config file %s: %w", abs, err)
	}
	return NewConfigFromYAML(yamlBytes)
}

// PreloadPatch is the scheduler configuration described by c.
func (c *Config) PreloadPatch() pagecache.PreloadConfigPatch {
	return pagecache.PreloadConfigPatch{
		AdjacentPages:      pagecache.Int(c.AdjacentPages),
		MaxConcurrentLoads: pagecache.Int(c.MaxConcurrentLoads),
		PreloadDelay:       pagecache.Duration(c.PreloadDelay),
	}
}

// Validate validates configuration
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base URL is not given")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL %q must be http or https", c.BaseURL)
	}

	switch c.Logger {
	case LoggerLogrus, LoggerZap, LoggerSlog:
	default:
		return fmt.Errorf("unknown logger %q", c.Logger)
	}

	switch c.Provider {
	case ProviderGoCache, ProviderBigCache, ProviderRistretto:
	case ProviderRedis:
		if c.RedisAddr == "" {
			return errors.New("redis provider needs redis_addr")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	if c.CacheSizeMax <= 0 {
		return errors.New("cache size max must be positive")
	}
	if c.CacheMaxAge <= 0 {
		return errors.New("cache max age must be positive")
	}
	if c.KeepRange < 0 {
		return errors.New("keep range must not be negative")
	}
	if c.FetchTimeout < 0 {
		return errors.New("fetch timeout must not be negative")
	}
	return nil
}
