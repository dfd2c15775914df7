package store

import (
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/jwnews/jw-news-reader-api/internal/domain"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func article(id string, published time.Time) domain.Article {
	return domain.Article{
		ID:           id,
		Title:        "Title " + id,
		CanonicalURL: "https://example.org/" + id,
		SourceIDs:    []string{"rss-main"},
		PublishedAt:  published,
		FirstSeenAt:  baseTime,
		LastSeenAt:   baseTime,
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	s.Upsert(article("a1", baseTime))

	got, ok := s.Get("a1")
	if !ok {
		t.Fatal("article not found")
	}
	got.SourceIDs[0] = "tampered"
	got.Title = "tampered"

	again, _ := s.Get("a1")
	if again.SourceIDs[0] != "rss-main" || again.Title != "Title a1" {
		t.Errorf("cache entry shared memory with caller: %+v", again)
	}
}

func TestGetMissing(t *testing.T) {
	s := New()
	if _, ok := s.Get("nope"); ok {
		t.Error("Get on empty store reported a hit")
	}
}

func TestListRecentOrdering(t *testing.T) {
	s := New()
	s.Upsert(article("mid", baseTime.Add(-1*time.Hour)))
	s.Upsert(article("new", baseTime))
	s.Upsert(article("old", baseTime.Add(-2*time.Hour)))
	// Same timestamp as "new"; id breaks the tie.
	s.Upsert(article("aaa", baseTime))

	got := s.ListRecent(10, 0)
	ids := make([]string, len(got))
	for i, a := range got {
		ids[i] = a.ID
	}
	want := []string{"aaa", "new", "mid", "old"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestListRecentPagination(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		s.Upsert(article(fmt.Sprintf("a%d", i), baseTime.Add(-time.Duration(i)*time.Hour)))
	}

	cases := []struct {
		limit, offset int
		want          []string
	}{
		{2, 0, []string{"a0", "a1"}},
		{2, 2, []string{"a2", "a3"}},
		{10, 4, []string{"a4"}},
		{2, 99, nil},
		{0, 0, nil},
		{-1, 0, nil},
		{3, -5, []string{"a0", "a1", "a2"}},
	}
	for _, tc := range cases {
		got := s.ListRecent(tc.limit, tc.offset)
		ids := make([]string, 0, len(got))
		for _, a := range got {
			ids = append(ids, a.ID)
		}
		if len(ids) == 0 {
			ids = nil
		}
		if !reflect.DeepEqual(ids, tc.want) {
			t.Errorf("ListRecent(%d, %d) = %v, want %v", tc.limit, tc.offset, ids, tc.want)
		}
	}
}

func TestListRecentSeesReplacedTimestamp(t *testing.T) {
	s := New()
	s.Upsert(article("a1", baseTime.Add(-3*time.Hour)))
	s.Upsert(article("a2", baseTime))
	if got := s.ListRecent(1, 0); got[0].ID != "a2" {
		t.Fatalf("head = %s, want a2", got[0].ID)
	}

	s.Upsert(article("a1", baseTime.Add(time.Hour)))
	if got := s.ListRecent(1, 0); got[0].ID != "a1" {
		t.Errorf("head after reupsert = %s, want a1", got[0].ID)
	}
}

func TestEvictOlderThan(t *testing.T) {
	s := New()
	stale := article("stale", baseTime)
	stale.LastSeenAt = baseTime.Add(-80 * time.Hour)
	fresh := article("fresh", baseTime)
	boundary := article("boundary", baseTime)
	boundary.LastSeenAt = baseTime.Add(-72 * time.Hour)
	s.Upsert(stale)
	s.Upsert(fresh)
	s.Upsert(boundary)

	removed := s.EvictOlderThan(baseTime.Add(-72 * time.Hour))

	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := s.Get("stale"); ok {
		t.Error("stale article survived eviction")
	}
	// Exactly at the cutoff is not "before" it.
	if _, ok := s.Get("boundary"); !ok {
		t.Error("boundary article was evicted")
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
	if got := s.ListRecent(10, 0); len(got) != 2 {
		t.Errorf("ListRecent after eviction = %d entries", len(got))
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := New()
	s.Upsert(article("a1", baseTime))

	snap := s.Snapshot()
	art := snap["a1"]
	art.SourceIDs[0] = "tampered"
	snap["a1"] = art
	delete(snap, "a1")

	got, ok := s.Get("a1")
	if !ok || got.SourceIDs[0] != "rss-main" {
		t.Errorf("snapshot mutation reached the store: %+v", got)
	}
}

func TestAllSortedByID(t *testing.T) {
	s := New()
	s.Upsert(article("zz", baseTime))
	s.Upsert(article("aa", baseTime.Add(time.Hour)))

	all := s.All()
	if len(all) != 2 || all[0].ID != "aa" || all[1].ID != "zz" {
		t.Errorf("All = %+v", all)
	}
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.db")

	s := New()
	s.Upsert(article("a1", baseTime))
	s.Upsert(article("a2", baseTime.Add(-time.Hour)))
	if err := s.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	restored := New()
	n, err := restored.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if n != 2 || restored.Len() != 2 {
		t.Fatalf("restored %d articles, Len = %d", n, restored.Len())
	}
	got, ok := restored.Get("a1")
	if !ok {
		t.Fatal("a1 missing after restore")
	}
	want, _ := s.Get("a1")
	if !reflect.DeepEqual(got, want) {
		t.Errorf("restored article differs:\n got %+v\nwant %+v", got, want)
	}
}

func TestSaveFileReplacesPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.db")

	s := New()
	s.Upsert(article("keep", baseTime))
	s.Upsert(article("drop", baseTime))
	if err := s.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	s.EvictOlderThan(baseTime.Add(time.Hour))
	s.Upsert(article("keep", baseTime))
	if err := s.SaveFile(path); err != nil {
		t.Fatalf("second SaveFile: %v", err)
	}

	restored := New()
	if _, err := restored.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if restored.Len() != 1 {
		t.Errorf("Len = %d, want only the resaved article", restored.Len())
	}
	if _, ok := restored.Get("drop"); ok {
		t.Error("stale snapshot entry survived the resave")
	}
}

func TestLoadFileMissingIsColdStart(t *testing.T) {
	s := New()
	n, err := s.LoadFile(filepath.Join(t.TempDir(), "absent.db"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if n != 0 || s.Len() != 0 {
		t.Errorf("cold start loaded %d articles", n)
	}
}

func TestSnapshotPathUnsetIsNoop(t *testing.T) {
	s := New()
	s.Upsert(article("a1", baseTime))
	if err := s.SaveFile(""); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if n, err := s.LoadFile(""); err != nil || n != 0 {
		t.Fatalf("LoadFile: n=%d err=%v", n, err)
	}
}
