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

	batch := NewBatch()
	batch.Put([]byte("ledger/b"), []byte("2"))
	batch.Put([]byte("ledger/a"), []byte("1"))
	batch.Put([]byte("other/z"), []byte("9"))
	if err := db.Write(batch); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	value, err := db.Get([]byte("ledger/a"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "1" {
		t.Fatalf("unexpected value %q", value)
	}

	var seen []string
	err = db.Iterate([]byte("ledger/"), func(key, value []byte) error {
		seen = append(seen, string(key)+"="+string(value))
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 2 || seen[0] != "ledger/a=1" || seen[1] != "ledger/b=2" {
		t.Fatalf("unexpected iteration order: %v", seen)
	}

	del := NewBatch()
	del.Delete([]byte("ledger/a"))
	del.Put([]byte("ledger/c"), []byte("3"))
	if err := db.Write(del); err != nil {
		t.Fatalf("write delete batch: %v", err)
	}
	if _, err := db.Get([]byte("ledger/a")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted key to be missing, got %v", err)
	}

	stop := errors.New("stop")
	count := 0
	err = db.Iterate([]byte("ledger/"), func([]byte, []byte) error {
		count++
		return stop
	})
	if !errors.Is(err, stop) || count != 1 {
		t.Fatalf("expected iteration to stop after first key, got count=%d err=%v", count, err)
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestMemDBReturnsCopies(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'z'
	stored, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(stored) != "abc" {
		t.Fatalf("stored value aliased caller slice: %q", stored)
	}
}
