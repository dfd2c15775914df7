package domain

import (
	"sort"
	"time"
)

// Domain contains the core models shared across the ingestion pipeline.

// RawItem is a single pre-normalization record produced by a source
// adapter. It lives for one refresh cycle only: adapters emit it, the
// normalizer consumes it, nothing retains it.
type RawItem struct {
	// SourceID identifies the configured source this item came from.
	SourceID string
	// NativeID is the source's own identifier for the item (RSS GUID,
	// sitemap loc, ...). May be empty.
	NativeID string
	Title    string
	Body     string
	// PublishedRaw is the timestamp exactly as the source reported it;
	// formats vary per source and are parsed by the normalizer.
	PublishedRaw string
	URL          string
	ImageURL     string
	Keywords     []string
}

// Article is the canonical, deduplicated unit the service stores and
// serves. One Article may be corroborated by several sources.
type Article struct {
	// ID is derived from the normalized canonical URL (or a content
	// fingerprint when no URL exists) and is stable across refresh
	// cycles and across sources reporting the same story.
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary,omitempty"`
	CanonicalURL string    `json:"canonicalUrl,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	Keywords     []string  `json:"keywords,omitempty"`
	SourceIDs    []string  `json:"sourceIds"`
	PublishedAt  time.Time `json:"publishedAt"`
	FirstSeenAt  time.Time `json:"firstSeenAt"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
}

// HasSource reports whether the article has already been corroborated
// by the given source.
func (a Article) HasSource(sourceID string) bool {
	for _, id := range a.SourceIDs {
		if id == sourceID {
			return true
		}
	}
	return false
}

// AddSource records a corroborating source, keeping SourceIDs sorted
// and free of duplicates.
func (a *Article) AddSource(sourceID string) {
	if sourceID == "" || a.HasSource(sourceID) {
		return
	}
	a.SourceIDs = append(a.SourceIDs, sourceID)
	sort.Strings(a.SourceIDs)
}

// Clone returns a deep copy so callers can hand articles across
// goroutine boundaries without sharing slice backing arrays.
func (a Article) Clone() Article {
	out := a
	if a.SourceIDs != nil {
		out.SourceIDs = append([]string(nil), a.SourceIDs...)
	}
	if a.Keywords != nil {
		out.Keywords = append([]string(nil), a.Keywords...)
	}
	return out
}
