// Package pagecache keeps the pages of a document reader ahead of the user.
//
// Components:
//   - Preloader: after each page change (debounced), prefetches the pages
//     around the current one with bounded concurrency and keeps their bytes
//     keyed by page number. Entries leave by distance from the current page,
//     by age, or on ClearAll.
//   - ByteCache: URL-keyed byte cache shared by renderers. LRU eviction under a
//     byte ceiling, plus an age ceiling enforced by EvictExpired. Bytes live in
//     a pluggable provider (go-cache by default; BigCache, Ristretto or Redis).
//   - Loader: progressive image load through a ByteCache, low quality tier
//     first when available, high quality tier always.
//   - Janitor: periodic EvictExpired/Cleanup.
//
// Payloads are handed out as handle.Handle values, revocable references whose
// receiver owns the Release call. Preloader evictions also revoke the handles
// materialized from the evicted page.
//
// Typical wiring:
//
//	api := pageapi.New("https://reader.example/api/documents/42", nil)
//	pre, _ := pagecache.NewPreloader(pagecache.PreloadOptions{
//	    Fetcher: api,
//	    PageURL: api.PageImageURL,
//	})
//	imgs, _ := pagecache.NewByteCache(pagecache.ByteCacheOptions{Fetcher: api})
//	ld, _ := pagecache.NewLoader(pagecache.LoaderOptions{Cache: imgs})
//
//	pre.Schedule(page, total) // on every page change
//	res, err := ld.Load(ctx, pagecache.LoadRequest{HighQualityURL: api.PageImageURL(page)})
package pagecache
