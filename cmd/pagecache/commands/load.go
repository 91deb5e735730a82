package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/pagecache"
	"github.com/unkn0wn-root/pagecache/handle"
)

func newLoadCmd() *cobra.Command {
	var (
		page   int
		lowURL string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a page image progressively through the byte cache",
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

			cache, err := e.newByteCache()
			if err != nil {
				return err
			}
			ld, err := pagecache.NewLoader(pagecache.LoaderOptions{Cache: cache, Logger: e.log, Hooks: e.hooks})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			res, err := ld.Load(cmd.Context(), pagecache.LoadRequest{
				LowQualityURL:  lowURL,
				HighQualityURL: e.api.PageImageURL(page),
				OnLowQualityLoad: func(h *handle.Handle) {
					fmt.Fprintf(w, "low quality:  %d bytes (%s)\n", h.Size(), h.URL())
				},
				OnHighQualityLoad: func(h *handle.Handle) {
					fmt.Fprintf(w, "high quality: %d bytes (%s)\n", h.Size(), h.URL())
				},
			})
			if err != nil {
				return err
			}
			defer res.Release()

			if info, ok := cache.Inspect(e.api.PageImageURL(page)); ok {
				fmt.Fprintf(w, "cached:       %d bytes, %d hits since %s\n", info.SizeBytes, info.AccessCount, info.CachedAt.Format(time.RFC3339))
			}

			if out != "" {
				if err := os.WriteFile(out, res.HighQuality.Bytes(), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page to load")
	cmd.Flags().StringVar(&lowURL, "low-quality-url", "", "Optional preview image URL shown first")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the high quality image to this file")
	return cmd
}
