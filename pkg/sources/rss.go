package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/jwnews/jw-news-reader-api/internal/domain"
	"github.com/jwnews/jw-news-reader-api/pkg/httpclient"
)

// rssAdapter implements Adapter for RSS and Atom feeds.
type rssAdapter struct {
	client httpclient.Client
}

// NewRSSAdapter builds the feed adapter.
func NewRSSAdapter(client httpclient.Client) Adapter {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &rssAdapter{client: client}
}

// Kind returns the adapter kind for feed sources.
func (a *rssAdapter) Kind() string {
	return KindRSS
}

// Fetch retrieves and parses one feed. The fetch goes through the
// shared HTTP client rather than gofeed's own so per-source headers
// and the context deadline apply.
func (a *rssAdapter) Fetch(ctx context.Context, src Source) (Result, error) {
	if !strings.EqualFold(src.Kind, KindRSS) {
		return Result{}, fmt.Errorf("rss adapter received incompatible source kind %q", src.Kind)
	}
	if strings.TrimSpace(src.URL) == "" {
		return Result{}, fmt.Errorf("source %q url is empty", src.ID)
	}

	resp, err := a.client.Get(ctx, src.URL, src.RequestHeaders())
	if err != nil {
		return Result{}, domain.ClassifyFetchError(src.ID, err)
	}
	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return Result{}, domain.NewFetchError(domain.FetchUnreachable, src.ID,
			fmt.Errorf("feed returned status %d body: %s", resp.StatusCode(), responseSnippet(body)))
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return Result{}, domain.NewFetchError(domain.FetchMalformedResponse, src.ID,
			fmt.Errorf("parse feed: %w", err))
	}

	var out Result
	for _, item := range feed.Items {
		if item == nil {
			out.SkippedMalformed++
			continue
		}
		link := strings.TrimSpace(item.Link)
		title := strings.TrimSpace(item.Title)
		if link == "" && title == "" {
			out.SkippedMalformed++
			continue
		}

		raw := domain.RawItem{
			SourceID:     src.ID,
			NativeID:     strings.TrimSpace(item.GUID),
			Title:        title,
			Body:         firstNonEmpty(item.Description, item.Content),
			PublishedRaw: firstNonEmpty(item.Published, item.Updated),
			URL:          link,
		}
		if item.Image != nil {
			raw.ImageURL = strings.TrimSpace(item.Image.URL)
		}
		if len(item.Categories) > 0 {
			raw.Keywords = cleanKeywords(item.Categories)
		}
		out.Items = append(out.Items, raw)
	}

	if len(out.Items) == 0 && out.SkippedMalformed == 0 {
		return Result{}, domain.NewFetchError(domain.FetchMalformedResponse, src.ID,
			fmt.Errorf("feed %q contains no items", src.URL))
	}

	return out, nil
}

// cleanKeywords trims category values and drops empties.
func cleanKeywords(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		if kw := strings.TrimSpace(k); kw != "" {
			out = append(out, kw)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
