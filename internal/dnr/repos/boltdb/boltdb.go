package boltdb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bbolt "go.etcd.io/bbolt"
)

// Open opens (or creates) the bbolt file shared by the rule engine and the
// toggle store. bbolt holds an exclusive file lock, so a process must open
// the file once and hand the handle to every store.
func Open(path string) (*bbolt.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}
	return db, nil
}

// EnsureBuckets creates the named buckets if they do not exist yet.
func EnsureBuckets(db *bbolt.DB, names ...[]byte) error {
	return db.Update(func(tx *bbolt.Tx) error {
		for _, n := range names {
			if _, err := tx.CreateBucketIfNotExists(n); err != nil {
				return fmt.Errorf("create bucket %q: %w", n, err)
			}
		}
		return nil
	})
}
