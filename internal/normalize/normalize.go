// Package normalize converts raw source items into partial canonical
// articles. Everything here is pure: no I/O, no clocks, no shared
// state, so every source quirk can be unit tested in isolation.
package normalize

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jwnews/jw-news-reader-api/internal/domain"
)

// maxSummaryRunes bounds stored summaries; feeds occasionally ship the
// whole article body in the description element.
const maxSummaryRunes = 512

// timeFormats are tried in order when parsing source timestamps.
// RFC3339 covers sitemaps and Atom, RFC1123/RFC822 cover RSS pubDate,
// the rest are formats observed in the wild.
var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Normalize converts one raw item into a partial canonical article.
// SourceIDs, FirstSeenAt and LastSeenAt are assigned later by the
// deduplicator; a zero PublishedAt means the source did not report one.
//
// A missing source id or title, or a present-but-unparseable
// timestamp, fails with *domain.NormalizeError; the caller drops and
// counts the item. An unparseable URL is not an error: the article
// falls back to a content fingerprint id and carries no canonical URL.
func Normalize(raw domain.RawItem) (domain.Article, error) {
	if strings.TrimSpace(raw.SourceID) == "" {
		return domain.Article{}, &domain.NormalizeError{Field: "sourceId"}
	}

	title := cleanText(raw.Title)
	if title == "" {
		return domain.Article{}, &domain.NormalizeError{Field: "title"}
	}
	summary := truncate(cleanText(raw.Body), maxSummaryRunes)

	canonical := ""
	if strings.TrimSpace(raw.URL) != "" {
		if c, err := CanonicalizeURL(raw.URL); err == nil {
			canonical = c
		}
	}

	publishedAt, err := parseTimestamp(raw.PublishedRaw)
	if err != nil {
		return domain.Article{}, err
	}

	return domain.Article{
		ID:           articleID(canonical, title, summary),
		Title:        title,
		Summary:      summary,
		CanonicalURL: canonical,
		ImageURL:     strings.TrimSpace(raw.ImageURL),
		Keywords:     raw.Keywords,
		PublishedAt:  publishedAt,
	}, nil
}

// CanonicalizeURL normalizes a URL so the same logical address always
// produces the same string: lowercased scheme and host, default port
// and fragment dropped, tracking parameters removed, the remaining
// query sorted, and the trailing slash trimmed (except at the root).
func CanonicalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	switch u.Scheme {
	case "http":
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case "https":
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for key := range q {
		lk := strings.ToLower(key)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	if u.Path != "" && u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}

	return u.String(), nil
}

// articleID derives the stable article identifier: the hash of the
// canonical URL when one exists, otherwise a fingerprint over the
// normalized, lowercased title and summary.
func articleID(canonicalURL, title, summary string) string {
	if canonicalURL != "" {
		return hashString(canonicalURL)
	}
	fingerprint := "fingerprint:" + strings.ToLower(title) + "\n" + strings.ToLower(summary)
	return hashString(fingerprint)
}

// hashString generates a SHA-1 hash of the given string.
func hashString(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// parseTimestamp parses a source timestamp. An empty value yields the
// zero time (the caller substitutes first-seen time); a non-empty
// value that matches no known format is a NormalizeError.
func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &domain.NormalizeError{Field: "publishedAt"}
}

// cleanText strips markup and entities and collapses all runs of
// whitespace to single spaces.
func cleanText(s string) string {
	return collapseWhitespace(html.UnescapeString(stripTags(s)))
}

// stripTags removes anything between angle brackets. Feed descriptions
// embed markup inconsistently enough that a real parser buys nothing
// over this for one-line summaries.
func stripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// collapseWhitespace trims and reduces internal whitespace runs,
// including newlines, to single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate caps s at n runes, appending an ellipsis when it was cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "..."
}
