// Package extract converts a single article page into reader-mode
// Markdown. It validates the requested URL against an allowlist,
// fetches the page, picks the main content container, strips player
// controls and publication metadata, and renders what remains with
// images and captions preserved in document order.
package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jwnews/jw-news-reader-api/internal/logger"
	"github.com/jwnews/jw-news-reader-api/pkg/httpclient"
	"github.com/jwnews/jw-news-reader-api/pkg/sources"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 1 << 20 // 1 MiB
)

// defaultAllowedHosts applies when the configuration lists none.
var defaultAllowedHosts = []string{"jw.org"}

// Kind classifies extraction failures so the HTTP layer can map each
// one to a status code.
type Kind string

const (
	KindInvalidURL Kind = "invalid_url"
	KindNotHTML    Kind = "not_html"
	KindUpstream   Kind = "upstream"
	KindRequest    Kind = "request"
)

// Error is the failure type returned by Extract. Msg is safe to expose
// to API clients.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("extract: %s", e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Image is one image found in the extracted content. Alt and Caption
// are nil when the page provides none.
type Image struct {
	URL     string  `json:"url"`
	Alt     *string `json:"alt"`
	Caption *string `json:"caption"`
}

// Result is the reader-mode rendition of one page.
type Result struct {
	Markdown  string  `json:"markdown"`
	Title     string  `json:"title"`
	SourceURL string  `json:"source_url"`
	Images    []Image `json:"images"`
}

// Options bound a single extraction.
type Options struct {
	// AllowedHosts lists hosts (and implicitly their subdomains) the
	// extractor will fetch from.
	AllowedHosts []string
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int
}

// Extractor fetches and converts article pages.
type Extractor struct {
	client httpclient.Client
	log    logger.Logger
	opts   Options
}

func New(client httpclient.Client, log logger.Logger, opts Options) *Extractor {
	if client == nil {
		client = sources.DefaultHTTPClient()
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if len(opts.AllowedHosts) == 0 {
		opts.AllowedHosts = defaultAllowedHosts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = sources.DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Extractor{client: client, log: log, opts: opts}
}

// Extract validates rawURL, fetches the page, and converts it to
// Markdown. All failures are *Error values.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (Result, error) {
	if err := e.validateURL(rawURL); err != nil {
		return Result{}, err
	}

	page, err := e.fetch(ctx, rawURL)
	if err != nil {
		return Result{}, err
	}

	return FromHTML(page, rawURL), nil
}

// validateURL enforces https and the configured host allowlist.
func (e *Extractor) validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return &Error{Kind: KindInvalidURL, Msg: "invalid URL", Err: err}
	}
	if parsed.Scheme != "https" {
		return &Error{Kind: KindInvalidURL, Msg: "only https URLs are allowed"}
	}

	host := strings.ToLower(parsed.Hostname())
	for _, allowed := range e.opts.AllowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return &Error{
		Kind: KindInvalidURL,
		Msg:  fmt.Sprintf("only %s URLs are allowed", strings.Join(e.opts.AllowedHosts, ", ")),
	}
}

// fetch retrieves the page body, enforcing the status, content-type,
// and size limits.
func (e *Extractor) fetch(ctx context.Context, rawURL string) (string, error) {
	headers := map[string]string{
		"User-Agent":      e.opts.UserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	resp, err := e.client.Get(reqCtx, rawURL, headers)
	if err != nil {
		e.log.WarnObj("article page fetch failed", "extract_fetch_error", map[string]any{
			"url":   rawURL,
			"error": err.Error(),
		})
		return "", &Error{Kind: KindRequest, Msg: "upstream request failed", Err: err}
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return "", &Error{Kind: KindUpstream, Msg: fmt.Sprintf("upstream returned status %d", status)}
	}

	contentType := strings.ToLower(resp.Header().Get("Content-Type"))
	if !strings.Contains(contentType, "text/html") {
		return "", &Error{Kind: KindNotHTML, Msg: "URL did not return HTML"}
	}

	body := resp.Body()
	if len(body) > e.opts.MaxBodyBytes {
		e.log.InfoObj("html body truncated", "truncation", map[string]any{
			"url":      rawURL,
			"original": len(body),
			"kept":     e.opts.MaxBodyBytes,
		})
		body = body[:e.opts.MaxBodyBytes]
	}

	return string(body), nil
}
