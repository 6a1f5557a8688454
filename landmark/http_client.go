package landmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultFetchTimeout bounds a single map request.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of attempts per fetch.
	DefaultMaxRetries = 3

	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes caps decoded and downloaded map payloads at 50 MB.
	maxResponseBytes = 50 << 20
)

// ErrNotModified is returned by MapFetcher.Fetch when the server reports the
// map unchanged since the last map the fetcher decoded.
var ErrNotModified = errors.New("map not modified")

// FetchOption configures a MapFetcher.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.timeout = d }
}

// WithMaxRetries sets how many attempts a fetch makes before giving up.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) { c.maxRetries = n }
}

// WithBaseBackoff sets the delay before the second attempt; it doubles after that.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.baseBackoff = d }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) { c.client = client }
}

// MapFetcher polls one map URL. It remembers the ETag and Last-Modified of
// the last map it decoded and sends them back, so an unchanged map costs a
// 304 instead of a download, decode and re-extraction.
type MapFetcher struct {
	url string
	cfg fetchConfig

	mu           sync.Mutex
	etag         string
	lastModified string
}

// NewMapFetcher returns a fetcher for apiURL with no cached validators.
func NewMapFetcher(apiURL string, opts ...FetchOption) *MapFetcher {
	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.client == nil {
		cfg.client = &http.Client{Timeout: cfg.timeout}
	}
	if cfg.maxRetries < 1 {
		cfg.maxRetries = 1
	}
	return &MapFetcher{url: apiURL, cfg: cfg}
}

// statusError is a non-200, non-304 response.
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP GET %s: status %d", e.url, e.code)
}

// retryable reports whether another attempt might succeed. Undecodable
// payloads and client errors other than 408 and 429 will not change on retry.
func retryable(err error) bool {
	var de *decodeError
	if errors.As(err, &de) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests || se.code == http.StatusRequestTimeout
	}
	return true
}

// Fetch downloads and decodes the map, retrying transient failures with
// exponential backoff. It returns ErrNotModified when the server confirms the
// previously decoded map is current. Decode errors are returned immediately.
func (f *MapFetcher) Fetch(ctx context.Context) (*Map, error) {
	if f.url == "" {
		return nil, fmt.Errorf("fetch map: API URL is empty")
	}

	var lastErr error
	for attempt := range f.cfg.maxRetries {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch map: %w", ctx.Err())
			case <-time.After(f.cfg.baseBackoff << (attempt - 1)):
			}
		}

		m, err := f.fetchOnce(ctx)
		if err == nil || errors.Is(err, ErrNotModified) {
			return m, err
		}
		if ctx.Err() != nil || !retryable(err) {
			return nil, fmt.Errorf("fetch map: %w", err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("fetch map: all %d attempts failed: %w", f.cfg.maxRetries, lastErr)
}

func (f *MapFetcher) fetchOnce(ctx context.Context) (*Map, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/gzip, application/octet-stream")

	f.mu.Lock()
	if f.etag != "" {
		req.Header.Set("If-None-Match", f.etag)
	}
	if f.lastModified != "" {
		req.Header.Set("If-Modified-Since", f.lastModified)
	}
	f.mu.Unlock()

	resp, err := f.cfg.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", f.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		return nil, ErrNotModified
	default:
		return nil, &statusError{url: f.url, code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", f.url, err)
	}

	m, err := DecodeMapData(body)
	if err != nil {
		return nil, &decodeError{err: err}
	}

	f.mu.Lock()
	f.etag = resp.Header.Get("ETag")
	f.lastModified = resp.Header.Get("Last-Modified")
	f.mu.Unlock()
	return m, nil
}

// decodeError marks a payload that arrived but could not be decoded.
type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// FetchMapFromAPI fetches and decodes a map once, without conditional headers.
// The apiURL should be a full URL, e.g. "https://maps.local/api/v1/maps/depot".
func FetchMapFromAPI(apiURL string, opts ...FetchOption) (*Map, error) {
	return NewMapFetcher(apiURL, opts...).Fetch(context.Background())
}

// FetchMapFromAPIWithContext is FetchMapFromAPI with cancellation.
func FetchMapFromAPIWithContext(ctx context.Context, apiURL string, opts ...FetchOption) (*Map, error) {
	return NewMapFetcher(apiURL, opts...).Fetch(ctx)
}
