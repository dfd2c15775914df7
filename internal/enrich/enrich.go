// Package enrich fills missing article metadata by fetching the
// article page and reading its meta tags. It only fills gaps: content
// already present is never replaced.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jwnews/jw-news-reader-api/internal/domain"
	"github.com/jwnews/jw-news-reader-api/internal/logger"
	"github.com/jwnews/jw-news-reader-api/pkg/httpclient"
	"github.com/jwnews/jw-news-reader-api/pkg/sources"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxHTMLBodyBytes = 1 << 20 // 1 MiB
	defaultWorkers   = 4
)

// Options bound one enrichment pass.
type Options struct {
	Workers      int
	Timeout      time.Duration
	RequestDelay time.Duration
	MaxPerCycle  int
	UserAgent    string
}

// Enricher scrapes article pages for Open Graph metadata.
type Enricher struct {
	client httpclient.Client
	log    logger.Logger
	opts   Options
}

func New(client httpclient.Client, log logger.Logger, opts Options) *Enricher {
	if client == nil {
		client = sources.DefaultHTTPClient()
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.UserAgent == "" {
		opts.UserAgent = sources.DefaultUserAgent
	}
	return &Enricher{client: client, log: log, opts: opts}
}

// Enrich returns a copy of articles with empty summaries and image
// URLs filled from each article's page where possible. Articles that
// need nothing are passed through without a fetch.
func (e *Enricher) Enrich(ctx context.Context, articles []domain.Article) []domain.Article {
	out := make([]domain.Article, len(articles))
	copy(out, articles) // default to originals so partial results are returned on cancel

	jobs := make([]int, 0, len(articles))
	for idx, art := range articles {
		if needsEnrichment(art) {
			jobs = append(jobs, idx)
		}
	}
	if e.opts.MaxPerCycle > 0 && len(jobs) > e.opts.MaxPerCycle {
		jobs = jobs[:e.opts.MaxPerCycle]
	}
	if len(jobs) == 0 {
		return out
	}

	workerCount := min(len(jobs), e.opts.Workers)

	var limiter <-chan time.Time
	var ticker *time.Ticker
	if e.opts.RequestDelay > 0 {
		ticker = time.NewTicker(e.opts.RequestDelay)
		limiter = ticker.C
		defer ticker.Stop()
	}

	jobCh := make(chan int)
	var wg sync.WaitGroup

	for workerID := 0; workerID < workerCount; workerID++ {
		wg.Add(1)
		go e.articleWorker(ctx, articles, limiter, jobCh, out, &wg, workerID)
	}

	for _, idx := range jobs {
		if ctx.Err() != nil {
			break
		}
		jobCh <- idx
	}
	close(jobCh)

	wg.Wait()

	return out
}

// articleWorker processes articles from the job channel, respecting the rate limiter.
func (e *Enricher) articleWorker(
	ctx context.Context,
	articles []domain.Article,
	limiter <-chan time.Time,
	jobCh <-chan int,
	out []domain.Article,
	wg *sync.WaitGroup,
	workerID int,
) {
	defer wg.Done()

	for idx := range jobCh {
		if ctx.Err() != nil {
			return
		}

		if limiter != nil {
			select {
			case <-ctx.Done():
				return
			case <-limiter:
			}
		}

		art := articles[idx]
		if enriched, err := e.fetchAndFill(ctx, art, workerID); err != nil {
			e.log.WarnObj("article page enrichment failed", "enrich_error", map[string]any{
				"worker_id":  workerID,
				"article_id": art.ID,
				"url":        art.CanonicalURL,
				"error":      err.Error(),
			})
			out[idx] = art
		} else {
			out[idx] = enriched
		}
	}
}

// fetchAndFill fetches the article page and fills the empty metadata fields.
func (e *Enricher) fetchAndFill(ctx context.Context, art domain.Article, workerID int) (domain.Article, error) {
	headers := map[string]string{
		"User-Agent": e.opts.UserAgent,
		"Accept":     "text/html,application/xhtml+xml",
	}

	e.log.DebugObj("fetching article page", "enrich_start", map[string]any{
		"worker_id":  workerID,
		"article_id": art.ID,
		"url":        art.CanonicalURL,
	})

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	resp, err := e.client.Get(ctx, art.CanonicalURL, headers)
	if err != nil {
		return art, fmt.Errorf("http fetch: %w", err)
	}

	if resp.StatusCode() != 200 {
		snippet := strings.TrimSpace(string(resp.Body()))
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return art, fmt.Errorf("status %d body: %s", resp.StatusCode(), snippet)
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		e.log.InfoObj("html body truncated", "truncation", map[string]any{
			"worker_id":  workerID,
			"article_id": art.ID,
			"url":        art.CanonicalURL,
			"original":   len(body),
			"kept":       maxHTMLBodyBytes,
		})
		body = body[:maxHTMLBodyBytes]
	}

	meta, err := parseMeta(body)
	if err != nil {
		return art, err
	}
	updated := art
	if updated.Summary == "" && meta.Description != "" {
		updated.Summary = meta.Description
	}
	if updated.ImageURL == "" && meta.ImageURL != "" {
		updated.ImageURL = resolveURL(meta.ImageURL, art.CanonicalURL)
	}

	return updated, nil
}

// needsEnrichment reports whether the article has a fetchable page and
// a gap worth filling.
func needsEnrichment(art domain.Article) bool {
	return art.CanonicalURL != "" && (art.Summary == "" || art.ImageURL == "")
}

// parseMeta extracts page metadata from the HTML body.
func parseMeta(body []byte) (pageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageMeta{}, fmt.Errorf("parse html: %w", err)
	}

	pm := pageMeta{}

	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	pm.Description = firstNonEmpty(
		extract(`meta[property="og:description"]`),
		extract(`meta[name="description"]`),
	)
	pm.ImageURL = extract(`meta[property="og:image"]`)

	return pm, nil
}

// pageMeta holds metadata extracted from an HTML page.
type pageMeta struct {
	Description string
	ImageURL    string
}

// firstNonEmpty returns the first non-empty string from the given values.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(raw, base string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if parsed.IsAbs() {
		return parsed.String()
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return raw
	}

	return baseURL.ResolveReference(parsed).String()
}
