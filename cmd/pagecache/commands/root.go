// Package commands implements the pagecache CLI: it warms and inspects the
// page caches of one document served by the page API.
package commands

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// NewRootCmd builds the command tree. Each call returns an independent tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pagecache",
		Short: "Warm and inspect the page caches of a document",
		Long: `pagecache drives the page preloader and the progressive image loader
against a document served by the page API:

  GET <base-url>/document          document metadata
  GET <base-url>/pages/{n}/image   page images

Settings come from the YAML file given by --config; flags override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	setCommonFlags(root.PersistentFlags())

	root.AddCommand(newDocCmd())
	root.AddCommand(newWarmCmd())
	root.AddCommand(newLoadCmd())
	return root
}

func setCommonFlags(fs *pflag.FlagSet) {
	d := NewDefaultConfig()
	fs.String("config", "", "Set config file (yaml)")
	fs.String("base-url", "", "Document base URL, e.g. https://host/api/documents/42")

	fs.String("log-path", "", "Write logs to this file too (rotated)")
	fs.String("log-level", d.LogLevel, "Log level: debug, info, warn, error")
	fs.String("logger", d.Logger, "Logger backend: logrus, zap, slog")

	fs.String("provider", d.Provider, "Byte store: gocache, bigcache, ristretto, redis")
	fs.String("redis-addr", "", "Redis address for the redis provider")
	fs.Int64("cache-size-max", d.CacheSizeMax, "Byte cache ceiling in bytes")
	fs.Duration("cache-max-age", d.CacheMaxAge, "Byte cache entry lifetime")

	fs.Int("adjacent", d.AdjacentPages, "Pages prefetched on each side of the current page")
	fs.Int("max-concurrent", d.MaxConcurrentLoads, "Prefetches started by one pass")
	fs.Duration("preload-delay", d.PreloadDelay, "Debounce before a prefetch pass")
	fs.Duration("fetch-timeout", 0, "Timeout of each page fetch, prefetch or cache fill (0 = none)")
	fs.Int("keep-range", d.KeepRange, "Cleanup keeps pages within this distance")
	fs.Duration("janitor-interval", d.JanitorInterval, "Interval of background eviction (0 = off)")

	fs.String("prometheus-addr", "", "Serve /metrics on this address, e.g. :9100")
	fs.Bool("trace-events", false, "Log every cache event")
}

// loadConfig reads the config file named by --config and applies every flag
// the user set explicitly on top of it.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	fs := cmd.Flags()
	path, _ := fs.GetString("config")
	config, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}

	str := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if fs.Changed(name) {
			*dst, _ = fs.GetInt(name)
		}
	}
	dur := func(name string, dst *time.Duration) {
		if fs.Changed(name) {
			*dst, _ = fs.GetDuration(name)
		}
	}

	str("base-url", &config.BaseURL)
	str("log-path", &config.LogPath)
	str("log-level", &config.LogLevel)
	str("logger", &config.Logger)
	str("provider", &config.Provider)
	str("redis-addr", &config.RedisAddr)
	if fs.Changed("cache-size-max") {
		config.CacheSizeMax, _ = fs.GetInt64("cache-size-max")
	}
	dur("cache-max-age", &config.CacheMaxAge)
	num("adjacent", &config.AdjacentPages)
	num("max-concurrent", &config.MaxConcurrentLoads)
	dur("preload-delay", &config.PreloadDelay)
	dur("fetch-timeout", &config.FetchTimeout)
	num("keep-range", &config.KeepRange)
	dur("janitor-interval", &config.JanitorInterval)
	str("prometheus-addr", &config.PrometheusAddr)
	if fs.Changed("trace-events") {
		config.TraceEvents, _ = fs.GetBool("trace-events")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// setup loads the configuration and builds the command environment.
func setup(cmd *cobra.Command) (*env, error) {
	config, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newEnv(config, cmd.ErrOrStderr())
}
