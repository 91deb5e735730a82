package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/pagecache"
)

func newWarmCmd() *cobra.Command {
	var (
		page         int
		total        int
		throughCache bool
		hold         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Prefetch the pages around a page and report cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if page < 1 {
				return fmt.Errorf("--page must be >= 1, got %d", page)
			}
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()
			ctx := cmd.Context()

			if total == 0 {
				doc, err := e.api.Document(ctx)
				if err != nil {
					return fmt.Errorf("read document: %w", err)
				}
				total = doc.TotalPages
			}

			cache, err := e.newByteCache()
			if err != nil {
				return err
			}
			var fetcher pagecache.Fetcher = e.api
			if throughCache {
				fetcher = cache
			}
			pre, err := e.newPreloader(fetcher)
			if err != nil {
				return err
			}

			janitor := pagecache.NewJanitor(e.config.JanitorInterval,
				pagecache.ExpireTask(cache),
				pagecache.CleanupTask(pre, func() int { return page }, e.config.KeepRange),
			)
			defer janitor.Close()

			started := time.Now()
			pre.Schedule(page, total)
			if err := pre.Wait(ctx); err != nil {
				return err
			}
			evicted := pre.Cleanup(page, e.config.KeepRange)
			e.log.Info("warm pass finished", pagecache.Fields{
				"page":    page,
				"total":   total,
				"evicted": evicted,
				"took":    time.Since(started).String(),
			})

			printStats(cmd.OutOrStdout(), pre, cache, page, total)

			if hold > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(hold):
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Current page")
	cmd.Flags().IntVar(&total, "total", 0, "Total pages (0 = read from the document, -1 = unknown)")
	cmd.Flags().BoolVar(&throughCache, "through-cache", false, "Prefetch through the byte cache")
	cmd.Flags().DurationVar(&hold, "hold", 0, "Keep running after the pass, e.g. to scrape metrics")
	return cmd
}

func printStats(w io.Writer, pre pagecache.Preloader, cache pagecache.ByteCache, page, total int) {
	var preloaded []int
	for _, pg := range pagecache.WindowFor(page, total, pre.Config().AdjacentPages) {
		if pre.IsPreloaded(pg) {
			preloaded = append(preloaded, pg)
		}
	}
	ps, bs := pre.Stats(), cache.Stats()
	fmt.Fprintf(w, "preloaded pages: %v\n", preloaded)
	fmt.Fprintf(w, "preloader:  %d pages, %d loading, %d bytes\n", ps.PreloadedCount, ps.LoadingCount, ps.MemoryUsageBytes)
	fmt.Fprintf(w, "byte cache: %d entries, %d/%d bytes, %d hits, %d misses, %d evictions\n",
		bs.Entries, bs.SizeBytes, bs.MaxSizeBytes, bs.Hits, bs.Misses, bs.Evictions)
}
