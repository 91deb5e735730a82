// Package pageapi is the HTTP client of the document page service:
//
//	GET <base>/pages/{n}/image   page image bytes
//	GET <base>/document          document metadata (JSON, msgpack or CBOR)
package pageapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/unkn0wn-root/pagecache"
	"github.com/unkn0wn-root/pagecache/codec"
)

const (
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodyBytes bounds a single response body.
	DefaultMaxBodyBytes int64 = 64 << 20
	maxDocumentBytes          = 1 << 20
	maxErrorSnippet           = 256
)

// Document is the metadata of the document being read.
type Document struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	TotalPages int    `json:"totalPages"`
}

// Client talks to one document. It implements pagecache.Fetcher.
type Client struct {
	baseURL    string
	httpClient *http.Client
	codecs     *codec.Set[Document]

	// MaxBodyBytes bounds every response body; larger bodies fail the fetch.
	MaxBodyBytes int64
	UserAgent    string
}

var _ pagecache.Fetcher = (*Client)(nil)

// New creates a client for the document rooted at baseURL. A nil httpClient
// gets one with DefaultTimeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		codecs: codec.NewSet[Document](
			codec.Limit[Document]{Inner: codec.JSON[Document]{}, MaxDecode: maxDocumentBytes},
			codec.Limit[Document]{Inner: codec.Msgpack[Document]{}, MaxDecode: maxDocumentBytes},
			codec.Limit[Document]{Inner: codec.MustCBOR[Document](false), MaxDecode: maxDocumentBytes},
			codec.Limit[Document]{Inner: codec.Protobuf[Document]{}, MaxDecode: maxDocumentBytes},
		),
		MaxBodyBytes: DefaultMaxBodyBytes,
		UserAgent:    "pagecache",
	}
}

// BaseURL returns the document root the client was created with.
func (c *Client) BaseURL() string { return c.baseURL }

// PageImageURL returns the image URL of page. It has the signature of
// pagecache.PageURLFunc.
func (c *Client) PageImageURL(page int) string {
	return pagecache.PageImageURL(c.baseURL)(page)
}

// Fetch GETs url and returns the body. Transport failures and non-2xx
// statuses are reported as *pagecache.FetchError.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, _, err := c.get(ctx, url, "")
	return body, err
}

// Document reads the document metadata. The body is decoded according to the
// response Content-Type; a missing Content-Type is treated as JSON.
func (c *Client) Document(ctx context.Context) (Document, error) {
	url := c.baseURL + "/document"
	body, contentType, err := c.get(ctx, url, c.codecs.Accept())
	if err != nil {
		return Document{}, err
	}
	cd, ok := c.codecs.For(contentType)
	if !ok {
		return Document{}, &pagecache.FetchError{
			URL: url,
			Err: fmt.Errorf("unsupported content type %q", contentType),
		}
	}
	doc, err := cd.Decode(body)
	if err != nil {
		return Document{}, fmt.Errorf("pageapi: decode document (%s): %w", cd.ContentType(), err)
	}
	if doc.TotalPages < 0 {
		return Document{}, fmt.Errorf("pageapi: document %q reports %d pages", doc.ID, doc.TotalPages)
	}
	return doc, nil
}

func (c *Client) get(ctx context.Context, url, accept string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &pagecache.FetchError{URL: url, Err: err}
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &pagecache.FetchError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorSnippet))
		fe := &pagecache.FetchError{URL: url, StatusCode: resp.StatusCode}
		if msg := strings.TrimSpace(string(snippet)); msg != "" {
			fe.Err = errors.New(msg)
		}
		return nil, "", fe
	}

	body, err := readLimited(resp.Body, c.MaxBodyBytes)
	if err != nil {
		return nil, "", &pagecache.FetchError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// ErrBodyTooLarge is wrapped by a FetchError for bodies above MaxBodyBytes.
var ErrBodyTooLarge = errors.New("pageapi: response body too large")

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, ErrBodyTooLarge
	}
	return b, nil
}
