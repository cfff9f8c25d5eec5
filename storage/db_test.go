package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("farm/a"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err := db.Has([]byte("farm/a"))
	if err != nil || !ok {
		t.Fatalf("has: %v %v", ok, err)
	}

	batch := db.NewBatch()
	batch.Put([]byte("farm/b"), []byte("2"))
	batch.Put([]byte("farm/c"), []byte("3"))
	batch.Delete([]byte("farm/a"))
	batch.Put([]byte("other/x"), []byte("9"))
	if batch.Len() != 4 {
		t.Fatalf("unexpected batch length %d", batch.Len())
	}
	if ok, _ := db.Has([]byte("farm/b")); ok {
		t.Fatalf("batch writes visible before Write")
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("batch write: %v", err)
	}

	entries, err := db.Prefix([]byte("farm/"))
	if err != nil {
		t.Fatalf("prefix: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if string(entries[0].Key) != "farm/b" || string(entries[1].Value) != "3" {
		t.Fatalf("unexpected prefix scan %q", entries)
	}
	if err := db.Delete([]byte("farm/b")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("farm/b")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted key to be missing, got %v", err)
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	t.Cleanup(db.Close)
	exerciseDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'z'
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller slice: %q", got)
	}
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	t.Cleanup(db.Close)
	exerciseDatabase(t, db)
}
