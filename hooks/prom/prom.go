// Package prom exports pagecache events and statistics as Prometheus metrics.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/pagecache"
)

const namespace = "pagecache"

// ============================================================================
// Event counters
// ============================================================================

// Hooks counts pagecache events. All methods are nil-safe: calls on a nil
// *Hooks are no-ops.
type Hooks struct {
	// PrefetchesTotal counts prefetches by outcome.
	// Label values: "started", "failed", "discarded".
	PrefetchesTotal *prometheus.CounterVec

	// PageEvictionsTotal counts preloaded pages leaving the cache.
	// Label values: "range", "stale", "clear".
	PageEvictionsTotal *prometheus.CounterVec

	// LookupsTotal counts byte cache lookups. Label values: "hit", "miss".
	LookupsTotal *prometheus.CounterVec

	// ByteEvictionsTotal and ByteEvictedBytes are labelled by reason:
	// "lru", "expired", "missing", "corrupt", "clear".
	ByteEvictionsTotal *prometheus.CounterVec
	ByteEvictedBytes   *prometheus.CounterVec

	// AdmissionRejectedTotal counts payloads served without being cached.
	AdmissionRejectedTotal prometheus.Counter

	// LowQualityFailuresTotal counts failed low quality tiers.
	LowQualityFailuresTotal prometheus.Counter
}

var _ pagecache.Hooks = (*Hooks)(nil)

// New creates the counters and registers them with reg. If reg is nil the
// counters are created but not registered.
func New(reg prometheus.Registerer) *Hooks {
	h := &Hooks{
		PrefetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preload",
			Name:      "prefetches_total",
			Help:      "Page prefetches by outcome",
		}, []string{"outcome"}),
		PageEvictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preload",
			Name:      "evictions_total",
			Help:      "Preloaded pages evicted, by reason",
		}, []string{"reason"}),
		LookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bytes",
			Name:      "lookups_total",
			Help:      "Byte cache lookups by result",
		}, []string{"result"}),
		ByteEvictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bytes",
			Name:      "evictions_total",
			Help:      "Byte cache entries evicted, by reason",
		}, []string{"reason"}),
		ByteEvictedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bytes",
			Name:      "evicted_bytes_total",
			Help:      "Payload bytes evicted from the byte cache, by reason",
		}, []string{"reason"}),
		AdmissionRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bytes",
			Name:      "admission_rejected_total",
			Help:      "Fetched payloads served without being cached",
		}),
		LowQualityFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "low_quality_failures_total",
			Help:      "Failed low quality tiers of progressive loads",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			h.PrefetchesTotal,
			h.PageEvictionsTotal,
			h.LookupsTotal,
			h.ByteEvictionsTotal,
			h.ByteEvictedBytes,
			h.AdmissionRejectedTotal,
			h.LowQualityFailuresTotal,
		)
	}
	return h
}

func (h *Hooks) PrefetchStarted(int) {
	if h == nil {
		return
	}
	h.PrefetchesTotal.WithLabelValues("started").Inc()
}

func (h *Hooks) PrefetchFailed(int, error) {
	if h == nil {
		return
	}
	h.PrefetchesTotal.WithLabelValues("failed").Inc()
}

func (h *Hooks) PrefetchDiscarded(int) {
	if h == nil {
		return
	}
	h.PrefetchesTotal.WithLabelValues("discarded").Inc()
}

func (h *Hooks) PageEvicted(_ int, reason string) {
	if h == nil {
		return
	}
	h.PageEvictionsTotal.WithLabelValues(reason).Inc()
}

func (h *Hooks) ByteCacheHit(string) {
	if h == nil {
		return
	}
	h.LookupsTotal.WithLabelValues("hit").Inc()
}

func (h *Hooks) ByteCacheMiss(string) {
	if h == nil {
		return
	}
	h.LookupsTotal.WithLabelValues("miss").Inc()
}

func (h *Hooks) ByteEvicted(_ string, size int64, reason string) {
	if h == nil {
		return
	}
	h.ByteEvictionsTotal.WithLabelValues(reason).Inc()
	h.ByteEvictedBytes.WithLabelValues(reason).Add(float64(size))
}

func (h *Hooks) AdmissionRejected(string, int64) {
	if h == nil {
		return
	}
	h.AdmissionRejectedTotal.Inc()
}

func (h *Hooks) LowQualityFailed(string, error) {
	if h == nil {
		return
	}
	h.LowQualityFailuresTotal.Inc()
}

// ============================================================================
// Stats gauges
// ============================================================================

// RegisterPreloaderStats exposes p.Stats() as gauges read at scrape time.
func RegisterPreloaderStats(reg prometheus.Registerer, p pagecache.Preloader) error {
	return registerAll(reg,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "preload",
			Name:      "pages",
			Help:      "Pages currently preloaded",
		}, func() float64 { return float64(p.Stats().PreloadedCount) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "preload",
			Name:      "loading",
			Help:      "Prefetches currently in flight",
		}, func() float64 { return float64(p.Stats().LoadingCount) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "preload",
			Name:      "memory_bytes",
			Help:      "Bytes held by preloaded pages",
		}, func() float64 { return float64(p.Stats().MemoryUsageBytes) }),
	)
}

// RegisterByteCacheStats exposes c.Stats() as gauges read at scrape time.
func RegisterByteCacheStats(reg prometheus.Registerer, c pagecache.ByteCache) error {
	return registerAll(reg,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bytes",
			Name:      "entries",
			Help:      "Entries in the byte cache",
		}, func() float64 { return float64(c.Stats().Entries) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bytes",
			Name:      "size_bytes",
			Help:      "Payload bytes held by the byte cache",
		}, func() float64 { return float64(c.Stats().SizeBytes) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bytes",
			Name:      "max_size_bytes",
			Help:      "Byte cache size ceiling",
		}, func() float64 { return float64(c.Stats().MaxSizeBytes) }),
	)
}

func registerAll(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
