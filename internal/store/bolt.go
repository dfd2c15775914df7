package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jwnews/jw-news-reader-api/internal/domain"
)

var snapshotBucket = []byte("articles")

// LoadFile fills the store from the bbolt snapshot at path and reports
// how many articles were restored. A missing file means a cold start
// and is not an error.
func (s *Store) LoadFile(path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return 0, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer db.Close()

	loaded := 0
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(snapshotBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var art domain.Article
			if err := json.Unmarshal(v, &art); err != nil {
				return fmt.Errorf("decode article %s: %w", k, err)
			}
			s.Upsert(art)
			loaded++
			return nil
		})
	})
	if err != nil {
		return loaded, fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return loaded, nil
}

// SaveFile writes the full article set to the bbolt snapshot at path,
// replacing any previous content in a single transaction.
func (s *Store) SaveFile(path string) error {
	if path == "" {
		return nil
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer db.Close()

	articles := s.All()
	err = db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(snapshotBucket) != nil {
			if err := tx.DeleteBucket(snapshotBucket); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(snapshotBucket)
		if err != nil {
			return err
		}
		for _, art := range articles {
			buf, err := json.Marshal(art)
			if err != nil {
				return fmt.Errorf("encode article %s: %w", art.ID, err)
			}
			if err := b.Put([]byte(art.ID), buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", path, err)
	}
	return nil
}
