// Package httpclient wraps the outbound HTTP client behind a small
// interface so adapters, the enricher, and the extractor share one
// configured transport and tests can substitute fakes.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client issues outbound GET requests with per-request headers. The
// context bounds the whole exchange including redirects.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}

// Response is the subset of the HTTP response the pipeline reads.
// *resty.Response satisfies it directly.
type Response interface {
	StatusCode() int
	Body() []byte
	Header() http.Header
}

// restyClient adapts a resty client to the Client interface.
type restyClient struct {
	rc *resty.Client
}

// NewRestyClient builds the default outbound client: one shared
// transport, bounded timeout, a few redirects, no automatic retries
// (the scheduler owns retry policy).
func NewRestyClient(timeout time.Duration) Client {
	rc := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &restyClient{rc: rc}
}

// Get performs the request and returns the response even for non-2xx
// statuses; status handling is the caller's concern.
func (c *restyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	return resp, nil
}
