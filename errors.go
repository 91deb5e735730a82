package pagecache

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoHighQualityURL = errors.New("pagecache: high quality url is required")
	ErrEmptyURL         = errors.New("pagecache: empty url")
	ErrClosed           = errors.New("pagecache: closed")
)

// FetchError reports a failed fetch. StatusCode is zero for transport errors.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %q: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %q: status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		return fmt.Sprintf("fetch %q: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %q: unknown error", e.URL)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a FetchError carrying HTTP 404.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.StatusCode == http.StatusNotFound
}
