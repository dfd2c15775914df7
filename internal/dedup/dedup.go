// Package dedup reconciles a batch of normalized articles against a
// cache snapshot, deciding which are new, which corroborate existing
// entries, and which are in-batch duplicates. Reconcile is pure: same
// inputs, same classification, no side effects.
package dedup

import (
	"sort"
	"time"

	"github.com/jwnews/jw-news-reader-api/internal/domain"
)

// unconfiguredPriority matches the sources loader default so sources
// absent from the priority map compare equally with unprioritized ones.
const unconfiguredPriority = 100

// Candidate is one normalized sighting: the partial article plus the
// source that reported it.
type Candidate struct {
	Article  domain.Article
	SourceID string
}

// Outcome tallies how one source's sightings were classified.
type Outcome struct {
	New       int
	Updated   int
	Duplicate int
}

// Resolution is the classification of one batch.
type Resolution struct {
	// ToInsert are articles absent from the snapshot, fully populated
	// (SourceIDs, FirstSeenAt/LastSeenAt, PublishedAt fallback) and
	// ready to upsert.
	ToInsert []domain.Article
	// ToUpdate are merged copies of existing articles: SourceIDs
	// unioned, LastSeenAt refreshed, empty content fields filled, and
	// non-empty existing content retained.
	ToUpdate []domain.Article
	// Skipped counts in-batch sightings merged away before reaching
	// the store.
	Skipped int
	// BySource attributes outcomes per reporting source.
	BySource map[string]Outcome
}

// pending accumulates the in-batch state for one article id.
type pending struct {
	article      domain.Article
	winnerSource string
	sightings    map[string]int
	total        int
}

// Reconcile classifies batch against snapshot. now stamps the seen
// times; priority (lower wins) decides which source's content is kept
// when the same id arrives from several sources in one batch, with the
// source id as the deterministic tie-break. Arrival order never
// affects the result.
func Reconcile(batch []Candidate, snapshot map[string]domain.Article, now time.Time, priority map[string]int) Resolution {
	res := Resolution{BySource: make(map[string]Outcome)}

	pendings := make(map[string]*pending, len(batch))
	for _, cand := range batch {
		id := cand.Article.ID
		if id == "" || cand.SourceID == "" {
			continue
		}

		p, ok := pendings[id]
		if !ok {
			p = &pending{sightings: make(map[string]int, 1)}
			p.article = cand.Article.Clone()
			p.winnerSource = cand.SourceID
			pendings[id] = p
		} else if beats(cand.SourceID, p.winnerSource, priority) {
			p.article = cand.Article.Clone()
			p.winnerSource = cand.SourceID
		}
		p.sightings[cand.SourceID]++
		p.total++
	}

	ids := make([]string, 0, len(pendings))
	for id := range pendings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := pendings[id]

		// One sighting survives as the store write; the rest were
		// merged away and count as duplicates for their sources.
		res.Skipped += p.total - 1
		for src, n := range p.sightings {
			dup := n
			if src == p.winnerSource {
				dup--
			}
			if dup > 0 {
				o := res.BySource[src]
				o.Duplicate += dup
				res.BySource[src] = o
			}
		}

		existing, ok := snapshot[id]
		if !ok {
			art := p.article
			art.SourceIDs = nil
			for src := range p.sightings {
				art.AddSource(src)
			}
			art.FirstSeenAt = now
			art.LastSeenAt = now
			if art.PublishedAt.IsZero() {
				art.PublishedAt = now
			}
			res.ToInsert = append(res.ToInsert, art)

			o := res.BySource[p.winnerSource]
			o.New++
			res.BySource[p.winnerSource] = o
			continue
		}

		merged := existing.Clone()
		for src := range p.sightings {
			merged.AddSource(src)
		}
		merged.LastSeenAt = now
		// First-source-wins: existing content stays, only gaps fill.
		if merged.Summary == "" {
			merged.Summary = p.article.Summary
		}
		if merged.CanonicalURL == "" {
			merged.CanonicalURL = p.article.CanonicalURL
		}
		if merged.ImageURL == "" {
			merged.ImageURL = p.article.ImageURL
		}
		if len(merged.Keywords) == 0 && len(p.article.Keywords) > 0 {
			merged.Keywords = append([]string(nil), p.article.Keywords...)
		}
		res.ToUpdate = append(res.ToUpdate, merged)

		o := res.BySource[p.winnerSource]
		o.Updated++
		res.BySource[p.winnerSource] = o
	}

	return res
}

// beats reports whether source a outranks source b: lower priority
// number first, source id as the tie-break.
func beats(a, b string, priority map[string]int) bool {
	pa, pb := priorityOf(a, priority), priorityOf(b, priority)
	if pa != pb {
		return pa < pb
	}
	return a < b
}

func priorityOf(id string, priority map[string]int) int {
	if p, ok := priority[id]; ok && p > 0 {
		return p
	}
	return unconfiguredPriority
}
