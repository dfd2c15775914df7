package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/jwnews/jw-news-reader-api/internal/domain"
)

const sampleListing = `<!DOCTYPE html>
<html><body>
  <article>
    <h3>Branch Dedication in Kenya</h3>
    <a href="/en/news/branch-dedication">Read more</a>
    <time datetime="2025-08-19T08:00:00Z">August 19, 2025</time>
    <p>A new branch office was dedicated.</p>
    <img src="/assets/branch.jpg" alt="">
  </article>
  <article>
    <h3></h3>
    <a href="/en/news/broken">x</a>
  </article>
  <article>
    <h3>Convention Season Begins</h3>
    <a href="https://www.jw.org/en/news/conventions">Read more</a>
  </article>
</body></html>`

func TestScrapeFetch(t *testing.T) {
	src := Source{ID: "jw-newsroom", Kind: KindScrape, URL: "https://www.jw.org/en/news/"}
	client := &fakeClient{responses: map[string]fakeResponse{
		src.URL: okResponse(sampleListing),
	}}

	res, err := NewScrapeAdapter(client).Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(res.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(res.Items))
	}
	if res.SkippedMalformed != 1 {
		t.Errorf("SkippedMalformed = %d, want 1", res.SkippedMalformed)
	}

	first := res.Items[0]
	if first.Title != "Branch Dedication in Kenya" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.URL != "https://www.jw.org/en/news/branch-dedication" {
		t.Errorf("relative link not resolved: %q", first.URL)
	}
	if first.PublishedRaw != "2025-08-19T08:00:00Z" {
		t.Errorf("PublishedRaw = %q", first.PublishedRaw)
	}
	if first.Body != "A new branch office was dedicated." {
		t.Errorf("Body = %q", first.Body)
	}
	if first.ImageURL != "https://www.jw.org/assets/branch.jpg" {
		t.Errorf("ImageURL = %q", first.ImageURL)
	}

	second := res.Items[1]
	if second.URL != "https://www.jw.org/en/news/conventions" {
		t.Errorf("absolute link mangled: %q", second.URL)
	}
}

func TestScrapeFetchCustomSelectors(t *testing.T) {
	src := Source{
		ID:   "custom",
		Kind: KindScrape,
		URL:  "https://example.org/news",
		Scrape: &ScrapeSelectors{
			Item:  "div.story",
			Title: "span.headline",
			Link:  "a.perma",
		},
	}
	client := &fakeClient{responses: map[string]fakeResponse{
		src.URL: okResponse(`<html><body>
			<div class="story">
				<span class="headline">Custom Markup Works</span>
				<a class="perma" href="https://example.org/s/1">link</a>
			</div>
		</body></html>`),
	}}

	res, err := NewScrapeAdapter(client).Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Title != "Custom Markup Works" {
		t.Fatalf("unexpected items: %+v", res.Items)
	}
}

func TestScrapeFetchNoMatches(t *testing.T) {
	src := Source{ID: "jw-newsroom", Kind: KindScrape, URL: "https://www.jw.org/en/news/"}
	client := &fakeClient{responses: map[string]fakeResponse{
		src.URL: okResponse("<html><body><p>nothing here</p></body></html>"),
	}}

	_, err := NewScrapeAdapter(client).Fetch(context.Background(), src)
	var fe *domain.FetchError
	if !errors.As(err, &fe) || fe.Kind != domain.FetchMalformedResponse {
		t.Fatalf("err = %v, want MalformedResponse FetchError", err)
	}
}
