package pagecache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unkn0wn-root/pagecache/handle"
)

type cachedPage struct {
	page      int
	sourceURL string
	data      []byte
	fetchedAt time.Time // set once on insert

	// handles materialized from this entry and not yet released by their owner
	handles map[*handle.Handle]struct{}
}

type preloader struct {
	fetcher      Fetcher
	pageURL      PageURLFunc
	handles      *handle.Store
	log          Logger
	hooks        Hooks
	now          func() time.Time
	fetchTimeout time.Duration
	staleAfter   time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	timer   debouncer

	mu       sync.Mutex
	cfg      PreloadConfig
	pages    map[int]*cachedPage
	inflight map[int]struct{}
	closed   bool

	// seq identifies the latest Schedule call; a timer callback carrying an
	// older seq does nothing.
	seq uint64
	// epoch moves on ClearAll/Close; fetches started under an older epoch
	// drop their results.
	epoch uint64

	// busy counts armed timers plus running prefetch goroutines. idle is
	// closed whenever busy == 0.
	busy int
	idle chan struct{}
}

func newPreloader(opts PreloadOptions) (*preloader, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("pagecache: fetcher is required")
	}
	if opts.PageURL == nil {
		return nil, errors.New("pagecache: page url func is required")
	}

	p := &preloader{
		fetcher:      opts.Fetcher,
		pageURL:      opts.PageURL,
		handles:      opts.Handles,
		log:          newComponentLogger(opts.Logger, "preloader"),
		hooks:        coalesceHooks(opts.Hooks),
		now:          opts.Now,
		fetchTimeout: opts.FetchTimeout,
		staleAfter:   coalesce(opts.StaleAfter, PageStaleAfter),
		cfg:          opts.Config.withDefaults(),
		pages:        make(map[int]*cachedPage),
		inflight:     make(map[int]struct{}),
		idle:         make(chan struct{}),
	}
	close(p.idle)
	if p.handles == nil {
		p.handles = handle.NewStore()
	}
	if p.now == nil {
		p.now = time.Now
	}
	p.baseCtx, p.cancel = context.WithCancel(context.Background())
	return p, nil
}

// WindowFor returns the prefetch window around current, nearest pages first:
// current-1, current+1, current-2, current+2, ... Pages below 1 are skipped,
// and so are pages above total when total > 0.
func WindowFor(current, total, adjacent int) []int {
	if adjacent <= 0 {
		return nil
	}
	out := make([]int, 0, 2*adjacent)
	for d := 1; d <= adjacent; d++ {
		for _, pg := range [2]int{current - d, current + d} {
			if pg < 1 || (total > 0 && pg > total) {
				continue
			}
			out = append(out, pg)
		}
	}
	return out
}

func (p *preloader) Schedule(currentPage, totalPages int) {
	if currentPage < 1 {
		p.log.Debug("schedule ignored (invalid page)", Fields{"page": currentPage})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.seq++
	seq := p.seq
	fire := func() { p.fire(seq, currentPage, totalPages) }
	if !p.timer.Arm(p.cfg.PreloadDelay, fire) {
		// no pending arm was taken over; this one is new work
		p.busyInc()
	}
}

func (p *preloader) fire(seq uint64, currentPage, totalPages int) {
	p.mu.Lock()
	if seq != p.seq || p.closed {
		p.busyDec()
		p.mu.Unlock()
		return
	}

	cfg := p.cfg
	picked := make([]int, 0, cfg.MaxConcurrentLoads)
	for _, pg := range WindowFor(currentPage, totalPages, cfg.AdjacentPages) {
		if len(picked) == cfg.MaxConcurrentLoads {
			break
		}
		if _, ok := p.pages[pg]; ok {
			continue
		}
		if _, ok := p.inflight[pg]; ok {
			continue
		}
		picked = append(picked, pg)
	}
	epoch := p.epoch
	for _, pg := range picked {
		p.inflight[pg] = struct{}{}
		p.busyInc()
	}
	p.busyDec() // the timer itself
	p.mu.Unlock()

	if len(picked) > 0 {
		p.log.Debug("prefetch pass", Fields{"page": currentPage, "total": totalPages, "pages": picked})
	}
	for _, pg := range picked {
		p.hooks.PrefetchStarted(pg)
		go p.prefetch(epoch, pg, p.pageURL(pg))
	}
}

func (p *preloader) prefetch(epoch uint64, page int, url string) {
	ctx := p.baseCtx
	if p.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
	}

	data, err := p.fetcher.Fetch(ctx, url)

	p.mu.Lock()
	stale := epoch != p.epoch
	if !stale {
		// after a clear the in-flight set belongs to newer passes
		delete(p.inflight, page)
		if err == nil {
			p.pages[page] = &cachedPage{
				page:      page,
				sourceURL: url,
				data:      data,
				fetchedAt: p.now(),
				handles:   make(map[*handle.Handle]struct{}),
			}
		}
	}
	p.busyDec()
	p.mu.Unlock()

	switch {
	case stale:
		p.log.Debug("prefetch result dropped (cleared meanwhile)", Fields{"page": page})
		p.hooks.PrefetchDiscarded(page)
	case err != nil:
		p.log.Warn("prefetch failed", Fields{"page": page, "url": url, "err": err})
		p.hooks.PrefetchFailed(page, err)
	default:
		p.log.Debug("page preloaded", Fields{"page": page, "bytes": len(data)})
	}
}

func (p *preloader) IsPreloaded(page int) bool {
	p.mu.Lock()
	_, ok := p.pages[page]
	p.mu.Unlock()
	return ok
}

func (p *preloader) PreloadedHandle(page int) (*handle.Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.pages[page]
	if !ok {
		return nil, false
	}
	var h *handle.Handle
	h = p.handles.CreateWithRelease(e.data, func() {
		p.mu.Lock()
		delete(e.handles, h)
		p.mu.Unlock()
	})
	e.handles[h] = struct{}{}
	return h, true
}

func (p *preloader) Cleanup(currentPage, keepRange int) int {
	if keepRange < 0 {
		keepRange = DefaultKeepRange
	}
	now := p.now()

	type victim struct {
		page    int
		reason  string
		handles []*handle.Handle
	}
	var victims []victim

	p.mu.Lock()
	for pg, e := range p.pages {
		var reason string
		switch {
		case abs(pg-currentPage) > keepRange:
			reason = "range"
		case now.Sub(e.fetchedAt) > p.staleAfter:
			reason = "stale"
		default:
			continue
		}
		victims = append(victims, victim{page: pg, reason: reason, handles: p.detachLocked(pg, e)})
	}
	p.mu.Unlock()

	for _, v := range victims {
		releaseAll(v.handles)
		p.hooks.PageEvicted(v.page, v.reason)
	}
	if len(victims) > 0 {
		p.log.Debug("cleanup evicted pages", Fields{"current": currentPage, "keep": keepRange, "evicted": len(victims)})
	}
	return len(victims)
}

func (p *preloader) Stats() PreloadStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := PreloadStats{
		PreloadedCount: len(p.pages),
		LoadingCount:   len(p.inflight),
	}
	for _, e := range p.pages {
		st.MemoryUsageBytes += int64(len(e.data))
	}
	return st
}

func (p *preloader) ClearAll() {
	pages, handles := p.reset()
	releaseAll(handles)
	for _, pg := range pages {
		p.hooks.PageEvicted(pg, "clear")
	}
	if len(pages) > 0 {
		p.log.Debug("cleared preloaded pages", Fields{"evicted": len(pages)})
	}
}

// reset empties both maps, cancels the pending timer and starts a new epoch.
// It returns the evicted page numbers and their outstanding handles.
func (p *preloader) reset() ([]int, []*handle.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer.Stop() {
		p.busyDec()
	}
	p.seq++
	p.epoch++

	pages := make([]int, 0, len(p.pages))
	var handles []*handle.Handle
	for pg, e := range p.pages {
		pages = append(pages, pg)
		handles = append(handles, p.detachLocked(pg, e)...)
	}
	p.inflight = make(map[int]struct{})
	return pages, handles
}

func (p *preloader) Config() PreloadConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// UpdateConfig applies patch and returns the resulting config. An armed timer
// keeps its original delay; the new window settings apply when it fires.
func (p *preloader) UpdateConfig(patch PreloadConfigPatch) PreloadConfig {
	p.mu.Lock()
	p.cfg = p.cfg.Merge(patch)
	cfg := p.cfg
	p.mu.Unlock()
	p.log.Info("preload config updated", Fields{
		"adjacent": cfg.AdjacentPages,
		"max":      cfg.MaxConcurrentLoads,
		"delay":    cfg.PreloadDelay.String(),
	})
	return cfg
}

func (p *preloader) Wait(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the pending timer and the context of running prefetches, and
// releases every cached page. Later Schedule calls are ignored.
func (p *preloader) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.ClearAll()
	p.cancel()
	return nil
}

// detachLocked removes page from the cache and returns the handles that were
// materialized from it. Caller must hold p.mu and release the handles after
// unlocking (Release re-enters p.mu).
func (p *preloader) detachLocked(page int, e *cachedPage) []*handle.Handle {
	delete(p.pages, page)
	hs := make([]*handle.Handle, 0, len(e.handles))
	for h := range e.handles {
		hs = append(hs, h)
	}
	e.data = nil
	return hs
}

func (p *preloader) busyInc() {
	if p.busy == 0 {
		p.idle = make(chan struct{})
	}
	p.busy++
}

func (p *preloader) busyDec() {
	p.busy--
	if p.busy == 0 {
		close(p.idle)
	}
}

func releaseAll(hs []*handle.Handle) {
	for _, h := range hs {
		h.Release()
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
