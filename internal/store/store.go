// Package store holds the in-memory article cache. Harvest cycles
// write, the API reads; both can run at once.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/jwnews/jw-news-reader-api/internal/domain"
)

// Store is the id-keyed article cache with a (publishedAt desc, id asc)
// listing order. The order index is rebuilt lazily after writes.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]domain.Article
	order []string
	dirty bool
}

func New() *Store {
	return &Store{byID: make(map[string]domain.Article)}
}

// Get returns a copy of the article, so callers never share memory
// with the cache.
func (s *Store) Get(id string) (domain.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	art, ok := s.byID[id]
	if !ok {
		return domain.Article{}, false
	}
	return art.Clone(), true
}

// Upsert inserts or replaces one article. Articles without an id are
// not storable.
func (s *Store) Upsert(art domain.Article) {
	if art.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[art.ID] = art.Clone()
	s.dirty = true
}

// ListRecent returns up to limit articles ordered by publishedAt
// descending, ties by id ascending, skipping offset entries from the
// top. limit <= 0 yields nothing.
func (s *Store) ListRecent(limit, offset int) []domain.Article {
	if limit <= 0 {
		return nil
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuildLocked()

	if offset >= len(s.order) {
		return nil
	}
	end := offset + limit
	if end > len(s.order) {
		end = len(s.order)
	}
	out := make([]domain.Article, 0, end-offset)
	for _, id := range s.order[offset:end] {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// EvictOlderThan removes every article whose LastSeenAt is before
// cutoff and reports how many were removed.
func (s *Store) EvictOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, art := range s.byID {
		if art.LastSeenAt.Before(cutoff) {
			delete(s.byID, id)
			removed++
		}
	}
	if removed > 0 {
		s.dirty = true
	}
	return removed
}

// Snapshot returns a value copy of the full cache for reconciliation.
func (s *Store) Snapshot() map[string]domain.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Article, len(s.byID))
	for id, art := range s.byID {
		out[id] = art.Clone()
	}
	return out
}

// All returns a copy of every article ordered by id, for persistence
// and bookkeeping.
func (s *Store) All() []domain.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Article, 0, len(s.byID))
	for _, art := range s.byID {
		out = append(out, art.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// rebuildLocked refreshes the listing order. Callers hold the write
// lock.
func (s *Store) rebuildLocked() {
	if !s.dirty {
		return
	}
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.byID[ids[i]], s.byID[ids[j]]
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return ids[i] < ids[j]
	})
	s.order = ids
	s.dirty = false
}
