// Package sloghooks logs pagecache events through log/slog.
package sloghooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/pagecache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	PrefetchFailEvery uint64
	ByteEvictEvery    uint64
	// LogLookups logs every byte cache hit and miss at debug level.
	LogLookups bool
	// Optional URL redactor. Defaults to SHA-256 prefix; URLs may carry
	// document ids or signed query strings.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	prefetchFailCtr atomic.Uint64
	byteEvictCtr    atomic.Uint64
}

var _ pagecache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(u string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(u)
	}
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) PrefetchStarted(page int) {
	if h.l == nil {
		return
	}
	h.l.Debug("pagecache.prefetch_started", "page", page)
}

func (h *Hooks) PrefetchFailed(page int, err error) {
	if h.l == nil || !sample(h.opts.PrefetchFailEvery, &h.prefetchFailCtr) {
		return
	}
	h.l.Warn("pagecache.prefetch_failed",
		"page", page,
		"not_found", pagecache.IsNotFound(err),
		"err", err)
}

func (h *Hooks) PrefetchDiscarded(page int) {
	if h.l == nil {
		return
	}
	h.l.Debug("pagecache.prefetch_discarded", "page", page)
}

func (h *Hooks) PageEvicted(page int, reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("pagecache.page_evicted",
		"page", page,
		"reason", reason)
}

func (h *Hooks) ByteCacheHit(url string) {
	if h.l == nil || !h.opts.LogLookups {
		return
	}
	h.l.Debug("pagecache.byte_hit", "url", h.redact(url))
}

func (h *Hooks) ByteCacheMiss(url string) {
	if h.l == nil || !h.opts.LogLookups {
		return
	}
	h.l.Debug("pagecache.byte_miss", "url", h.redact(url))
}

func (h *Hooks) ByteEvicted(url string, size int64, reason string) {
	if h.l == nil || !sample(h.opts.ByteEvictEvery, &h.byteEvictCtr) {
		return
	}
	level := slog.LevelDebug
	if reason == "corrupt" {
		level = slog.LevelWarn
	}
	h.l.Log(context.Background(), level, "pagecache.byte_evicted",
		"url", h.redact(url),
		"size", size,
		"reason", reason)
}

func (h *Hooks) AdmissionRejected(url string, size int64) {
	if h.l == nil {
		return
	}
	h.l.Info("pagecache.admission_rejected",
		"url", h.redact(url),
		"size", size)
}

func (h *Hooks) LowQualityFailed(url string, err error) {
	if h.l == nil {
		return
	}
	h.l.Info("pagecache.low_quality_failed",
		"url", h.redact(url),
		"err", err)
}
