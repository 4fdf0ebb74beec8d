package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"
)

// Compile-time interface check.
var _ Fetcher = (*HTTPClient)(nil)

// Status classifies the outcome of a fetch.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not found"
	default:
		return "failed"
	}
}

// Response is the result of retrieving a named text resource.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Status classifies the HTTP status code.
func (r *Response) Status() Status {
	switch r.StatusCode {
	case http.StatusOK:
		return StatusOK
	case http.StatusNotFound:
		return StatusNotFound
	default:
		return StatusFailed
	}
}

// Fetcher retrieves resources by URL. A non-2xx response is not an error;
// errors are reserved for requests that produced no response at all.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// maxBodySize bounds how much of a response body is read. Larger bodies
// are rejected rather than truncated.
var maxBodySize int64 = 8 << 20

// HTTPClient implements Fetcher over HTTP.
type HTTPClient struct {
	http      *http.Client
	userAgent string
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *HTTPClient) {
		c.userAgent = ua
	}
}

// NewHTTPClient creates a fetcher backed by a non-shared cleanhttp client.
func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	hc := cleanhttp.DefaultClient()
	hc.Timeout = 30 * time.Second
	c := &HTTPClient{http: hc, userAgent: "prepare-build"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch issues a GET for url and returns the status and body.
func (c *HTTPClient) Fetch(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch: create request")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch: GET %s", url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, errors.Wrapf(err, "fetch: read body of %s", url)
	}
	if int64(len(body)) > maxBodySize {
		return nil, errors.Errorf("fetch: body of %s exceeds %d bytes", url, maxBodySize)
	}
	return &Response{URL: url, StatusCode: resp.StatusCode, Body: body}, nil
}
