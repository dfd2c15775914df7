package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/jwnews/jw-news-reader-api/internal/domain"
	"github.com/jwnews/jw-news-reader-api/pkg/httpclient"
)

// maxSitemapDepth bounds index recursion; a visited set already stops
// loops, the cap stops pathological index chains.
const maxSitemapDepth = 3

// sitemapAdapter implements Adapter for Google-News-style XML sitemaps.
type sitemapAdapter struct {
	client httpclient.Client
}

// NewSitemapAdapter builds the news-sitemap adapter.
func NewSitemapAdapter(client httpclient.Client) Adapter {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &sitemapAdapter{client: client}
}

// Kind returns the adapter kind for sitemap sources.
func (a *sitemapAdapter) Kind() string {
	return KindSitemap
}

// Fetch retrieves article entries from a news sitemap, following
// sitemap indexes recursively when the configured URL points at one.
func (a *sitemapAdapter) Fetch(ctx context.Context, src Source) (Result, error) {
	if !strings.EqualFold(src.Kind, KindSitemap) {
		return Result{}, fmt.Errorf("sitemap adapter received incompatible source kind %q", src.Kind)
	}
	if strings.TrimSpace(src.URL) == "" {
		return Result{}, fmt.Errorf("source %q url is empty", src.ID)
	}

	headers := src.RequestHeaders()
	urls, err := a.fetchEntries(ctx, src, src.URL, headers, nil, 0)
	if err != nil {
		return Result{}, err
	}

	var out Result
	for _, entry := range urls {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			out.SkippedMalformed++
			continue
		}
		out.Items = append(out.Items, domain.RawItem{
			SourceID:     src.ID,
			NativeID:     loc,
			Title:        strings.TrimSpace(entry.News.Title),
			PublishedRaw: strings.TrimSpace(entry.News.PublicationDate),
			URL:          loc,
			ImageURL:     firstImageURL(entry.Images),
			Keywords:     parseKeywords(entry.News.Keywords),
		})
	}

	if len(out.Items) == 0 && out.SkippedMalformed == 0 {
		return Result{}, domain.NewFetchError(domain.FetchMalformedResponse, src.ID,
			fmt.Errorf("sitemap %q returned no records", src.URL))
	}

	return out, nil
}

// fetchEntries resolves the given sitemap URL into article entries,
// following sitemap indexes with a visited set so loops terminate.
func (a *sitemapAdapter) fetchEntries(ctx context.Context, src Source, url string, headers map[string]string, visited map[string]struct{}, depth int) ([]newsSitemapURL, error) {
	if depth > maxSitemapDepth {
		return nil, nil
	}
	if visited == nil {
		visited = make(map[string]struct{})
	}
	if _, seen := visited[url]; seen {
		return nil, nil
	}
	visited[url] = struct{}{}

	raw, err := fetchSitemap(ctx, a.client, url, src.ID, headers)
	if err != nil {
		return nil, err
	}

	urls, err := parseNewsSitemap(raw)
	if err != nil {
		return nil, domain.NewFetchError(domain.FetchMalformedResponse, src.ID,
			fmt.Errorf("decode news sitemap: %w", err))
	}
	if len(urls) > 0 {
		return urls, nil
	}

	indexURLs, err := parseSitemapIndex(raw)
	if err != nil {
		return nil, domain.NewFetchError(domain.FetchMalformedResponse, src.ID,
			fmt.Errorf("decode sitemap index: %w", err))
	}

	var all []newsSitemapURL
	for _, indexURL := range indexURLs {
		indexURL = strings.TrimSpace(indexURL)
		if indexURL == "" {
			continue
		}

		nested, err := a.fetchEntries(ctx, src, indexURL, headers, visited, depth+1)
		if err != nil {
			return nil, err
		}
		all = append(all, nested...)
	}
	return all, nil
}

// fetchSitemap retrieves the sitemap XML from the given URL.
func fetchSitemap(ctx context.Context, client httpclient.Client, url, sourceID string, headers map[string]string) ([]byte, error) {
	resp, err := client.Get(ctx, url, headers)
	if err != nil {
		return nil, domain.ClassifyFetchError(sourceID, fmt.Errorf("fetch sitemap: %w", err))
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, domain.NewFetchError(domain.FetchUnreachable, sourceID,
			fmt.Errorf("sitemap returned status %d body: %s", resp.StatusCode(), responseSnippet(body)))
	}

	return body, nil
}

type newsSitemap struct {
	URLs []newsSitemapURL `xml:"url"`
}

type newsSitemapURL struct {
	Loc    string             `xml:"loc"`
	News   newsSitemapDetail  `xml:"news"`
	Images []newsSitemapImage `xml:"image:image"`
}

type newsSitemapDetail struct {
	PublicationDate string `xml:"publication_date"`
	Keywords        string `xml:"keywords"`
	Title           string `xml:"title"`
}

type newsSitemapImage struct {
	Loc   string `xml:"image:loc"`
	Title string `xml:"image:title"`
}

type sitemapIndex struct {
	Sitemaps []sitemapIndexEntry `xml:"sitemap"`
}

type sitemapIndexEntry struct {
	Loc string `xml:"loc"`
}

// parseNewsSitemap parses sitemap XML into url entries.
func parseNewsSitemap(data []byte) ([]newsSitemapURL, error) {
	var sitemap newsSitemap
	if err := xml.Unmarshal(data, &sitemap); err != nil {
		return nil, err
	}
	return sitemap.URLs, nil
}

// parseSitemapIndex parses a sitemap index and returns the nested
// sitemap URLs.
func parseSitemapIndex(data []byte) ([]string, error) {
	var index sitemapIndex
	if err := xml.Unmarshal(data, &index); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(index.Sitemaps))
	for _, entry := range index.Sitemaps {
		if loc := strings.TrimSpace(entry.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls, nil
}

// firstImageURL returns the first non-empty image URL from the list.
func firstImageURL(images []newsSitemapImage) string {
	for _, img := range images {
		if loc := strings.TrimSpace(img.Loc); loc != "" {
			return loc
		}
	}
	return ""
}

// parseKeywords splits a comma-separated keyword string into trimmed
// values.
func parseKeywords(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		if kw := strings.TrimSpace(part); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	if len(keywords) == 0 {
		return nil
	}
	return keywords
}
