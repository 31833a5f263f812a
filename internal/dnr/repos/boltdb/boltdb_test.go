package boltdb

import (
	"path/filepath"
	"testing"

	bbolt "go.etcd.io/bbolt"
)

func TestOpen_CreatesDirAndBuckets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "dnrc.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := EnsureBuckets(db, []byte("a"), []byte("b")); err != nil {
		t.Fatalf("EnsureBuckets: %v", err)
	}
	// idempotent
	if err := EnsureBuckets(db, []byte("a")); err != nil {
		t.Fatalf("EnsureBuckets again: %v", err)
	}
	err = db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte("a")) == nil || tx.Bucket([]byte("b")) == nil {
			t.Fatalf("expected buckets to exist")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestEnsureBuckets_InvalidName(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "x.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := EnsureBuckets(db, []byte{}); err == nil {
		t.Fatalf("expected error for empty bucket name")
	}
}
