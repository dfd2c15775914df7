package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jwnews/jw-news-reader-api/internal/domain"
	"github.com/jwnews/jw-news-reader-api/pkg/httpclient"
)

// defaultScrapeSelectors fits common newsroom listing markup; sources
// override per field as needed.
var defaultScrapeSelectors = ScrapeSelectors{
	Item:    "article",
	Title:   "h1, h2, h3",
	Link:    "a[href]",
	Time:    "time",
	Summary: "p",
}

// scrapeAdapter implements Adapter for HTML listing pages.
type scrapeAdapter struct {
	client httpclient.Client
}

// NewScrapeAdapter builds the listing-page adapter.
func NewScrapeAdapter(client httpclient.Client) Adapter {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &scrapeAdapter{client: client}
}

// Kind returns the adapter kind for scraped sources.
func (a *scrapeAdapter) Kind() string {
	return KindScrape
}

// Fetch retrieves one listing page and extracts an item per selector
// match. Items missing a title or link are skipped and counted, never
// failing the page.
func (a *scrapeAdapter) Fetch(ctx context.Context, src Source) (Result, error) {
	if !strings.EqualFold(src.Kind, KindScrape) {
		return Result{}, fmt.Errorf("scrape adapter received incompatible source kind %q", src.Kind)
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
			fmt.Errorf("page returned status %d body: %s", resp.StatusCode(), responseSnippet(body)))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Result{}, domain.NewFetchError(domain.FetchMalformedResponse, src.ID,
			fmt.Errorf("parse html: %w", err))
	}

	sel := src.scrapeSelectors()
	base, err := url.Parse(src.URL)
	if err != nil {
		return Result{}, fmt.Errorf("parse source url %q: %w", src.URL, err)
	}

	var out Result
	doc.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
		title := strings.TrimSpace(item.Find(sel.Title).First().Text())
		href, _ := item.Find(sel.Link).First().Attr("href")
		href = strings.TrimSpace(href)
		if title == "" || href == "" {
			out.SkippedMalformed++
			return
		}

		raw := domain.RawItem{
			SourceID: src.ID,
			Title:    title,
			URL:      resolveRef(base, href),
		}
		if sel.Time != "" {
			timeEl := item.Find(sel.Time).First()
			raw.PublishedRaw = firstNonEmpty(timeEl.AttrOr("datetime", ""), timeEl.Text())
		}
		if sel.Summary != "" {
			raw.Body = strings.TrimSpace(item.Find(sel.Summary).First().Text())
		}
		if img, ok := item.Find("img[src]").First().Attr("src"); ok {
			raw.ImageURL = resolveRef(base, strings.TrimSpace(img))
		}
		out.Items = append(out.Items, raw)
	})

	if len(out.Items) == 0 && out.SkippedMalformed == 0 {
		return Result{}, domain.NewFetchError(domain.FetchMalformedResponse, src.ID,
			fmt.Errorf("page %q matched no items with selector %q", src.URL, sel.Item))
	}

	return out, nil
}

// scrapeSelectors returns the source's selectors with defaults filled
// per field.
func (s Source) scrapeSelectors() ScrapeSelectors {
	sel := defaultScrapeSelectors
	if s.Scrape == nil {
		return sel
	}
	if s.Scrape.Item != "" {
		sel.Item = s.Scrape.Item
	}
	if s.Scrape.Title != "" {
		sel.Title = s.Scrape.Title
	}
	if s.Scrape.Link != "" {
		sel.Link = s.Scrape.Link
	}
	if s.Scrape.Time != "" {
		sel.Time = s.Scrape.Time
	}
	if s.Scrape.Summary != "" {
		sel.Summary = s.Scrape.Summary
	}
	return sel
}

// resolveRef resolves a possibly relative href against the page URL.
func resolveRef(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
