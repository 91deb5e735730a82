package pagecache

import (
	"context"
	"strconv"
	"strings"
)

// Fetcher retrieves the raw bytes behind a URL. Any failure, including a
// non-2xx HTTP status, is an error. pageapi.Client is the HTTP implementation.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// PageURLFunc resolves the image URL of a page number.
type PageURLFunc func(page int) string

// PageImageURL returns a PageURLFunc producing <base>/pages/{n}/image.
func PageImageURL(base string) PageURLFunc {
	base = strings.TrimRight(base, "/")
	return func(page int) string {
		return base + "/pages/" + strconv.Itoa(page) + "/image"
	}
}
