package commands

import (
	"context"
	"errors"
	"io"
	stdslog "log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unkn0wn-root/pagecache"
	asynchook "github.com/unkn0wn-root/pagecache/hooks/async"
	"github.com/unkn0wn-root/pagecache/hooks/prom"
	"github.com/unkn0wn-root/pagecache/pageapi"
	"github.com/unkn0wn-root/pagecache/sloghooks"
)

// env is everything a command needs, built from the final Config.
type env struct {
	config  *Config
	log     pagecache.Logger
	api     *pageapi.Client
	hooks   pagecache.Hooks
	metrics *prometheus.Registry

	closers []func() error
}

func newEnv(config *Config, stderr io.Writer) (*env, error) {
	log, slogger, closeLog, err := newLogger(config, stderr)
	if err != nil {
		return nil, err
	}
	e := &env{
		config:  config,
		log:     log,
		api:     pageapi.New(config.BaseURL, nil),
		closers: []func() error{closeLog},
	}

	var hooks []pagecache.Hooks
	if config.PrometheusAddr != "" {
		e.metrics = prometheus.NewRegistry()
		hooks = append(hooks, prom.New(e.metrics))
		if err := e.serveMetrics(config.PrometheusAddr); err != nil {
			_ = e.Close()
			return nil, err
		}
	}
	if config.TraceEvents {
		if slogger == nil {
			slogger = stdslog.New(stdslog.NewTextHandler(stderr, &stdslog.HandlerOptions{Level: stdslog.LevelDebug}))
		}
		events := asynchook.New(sloghooks.New(slogger, sloghooks.Options{LogLookups: true}), 1, 1024)
		e.closers = append(e.closers, func() error { events.Close(); return nil })
		hooks = append(hooks, events)
	}
	e.hooks = pagecache.MultiHooks(hooks...)
	return e, nil
}

func (e *env) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.metrics, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("metrics server stopped", pagecache.Fields{"err": err})
		}
	}()
	e.log.Info("serving metrics", pagecache.Fields{"addr": ln.Addr().String()})
	e.closers = append(e.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return nil
}

// newByteCache builds the byte cache over the configured provider.
func (e *env) newByteCache() (pagecache.ByteCache, error) {
	provider, err := newProvider(e.config)
	if err != nil {
		return nil, err
	}
	cache, err := pagecache.NewByteCache(pagecache.ByteCacheOptions{
		Fetcher:      e.api,
		Provider:     provider,
		MaxSizeBytes: e.config.CacheSizeMax,
		MaxAge:       e.config.CacheMaxAge,
		FetchTimeout: e.config.FetchTimeout,
		Logger:       e.log,
		Hooks:        e.hooks,
	})
	if err != nil {
		_ = provider.Close(context.Background())
		return nil, err
	}
	if e.metrics != nil {
		if err := prom.RegisterByteCacheStats(e.metrics, cache); err != nil {
			e.log.Warn("byte cache stats not exported", pagecache.Fields{"err": err})
		}
	}
	e.closers = append(e.closers, func() error { return cache.Close(context.Background()) })
	return cache, nil
}

// newPreloader builds a preloader reading through fetcher.
func (e *env) newPreloader(fetcher pagecache.Fetcher) (pagecache.Preloader, error) {
	pre, err := pagecache.NewPreloader(pagecache.PreloadOptions{
		Fetcher:      fetcher,
		PageURL:      e.api.PageImageURL,
		Logger:       e.log,
		Hooks:        e.hooks,
		FetchTimeout: e.config.FetchTimeout,
	})
	if err != nil {
		return nil, err
	}
	// Options treat zero fields as unset; the patch applies configured zeros too
	pre.UpdateConfig(e.config.PreloadPatch())
	if e.metrics != nil {
		if err := prom.RegisterPreloaderStats(e.metrics, pre); err != nil {
			e.log.Warn("preloader stats not exported", pagecache.Fields{"err": err})
		}
	}
	e.closers = append(e.closers, pre.Close)
	return pre, nil
}

// Close releases everything in reverse order of creation.
func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
