package publishers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// httpPublisher delivers events to a plain HTTP endpoint.
type httpPublisher struct {
	id      string
	typ     string
	url     string
	method  string
	headers map[string]string
	client  *resty.Client
	log     Logger
}

// newHTTPPublisher creates an HTTP publisher from the config entry.
func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}

	client := resty.New().
		SetTimeout(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &httpPublisher{
		id:      cfg.ID,
		typ:     cfg.Type,
		url:     cfg.HTTP.URL,
		method:  cfg.HTTP.Method,
		headers: cfg.HTTP.Headers,
		client:  client,
		log:     ensureLogger(log),
	}, nil
}

func (p *httpPublisher) ID() string   { return p.id }
func (p *httpPublisher) Type() string { return p.typ }

// Publish sends the JSON-encoded event to the configured endpoint.
// Custom headers from the config can override the content type.
func (p *httpPublisher) Publish(ctx context.Context, evt Event) error {
	req := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(p.headers).
		SetBody(evt)

	resp, err := req.Execute(p.method, p.url)
	if err != nil {
		p.log.ErrorObj("http publisher send failed", "publisher_http_error", map[string]any{
			"cycle": evt.Cycle,
			"url":   p.url,
			"error": err.Error(),
		})
		return fmt.Errorf("send event to %s: %w", p.url, err)
	}
	if resp.IsError() {
		snippet := strings.TrimSpace(resp.String())
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		p.log.ErrorObj("http publisher rejected event", "publisher_http_status", map[string]any{
			"cycle":  evt.Cycle,
			"url":    p.url,
			"status": resp.StatusCode(),
		})
		return fmt.Errorf("endpoint %s returned status %d: %s", p.url, resp.StatusCode(), snippet)
	}

	p.log.DebugObj("http publisher delivered event", "publisher_http_delivery", map[string]any{
		"cycle":  evt.Cycle,
		"url":    p.url,
		"status": resp.StatusCode(),
	})
	return nil
}
