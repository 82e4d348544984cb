package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteTaskStoreRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tasks.db")
	store, err := NewSQLiteTaskStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteTaskStore: %v", err)
	}
	defer store.Close()

	empty, err := store.Load()
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty load, got %v err=%v", empty, err)
	}

	tasks := []PersistedTask{
		{ID: "t1", SoftwareName: "App", Version: "1.0", BundleID: "com.x.y", AccountHash: "abcdefgh", FilePath: "/data/t1.ipa", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "t2", SoftwareName: "Other", Version: "2.0", BundleID: "com.a.b", AccountHash: "ijklmnop", FilePath: "/data/t2.ipa", CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
	if err := store.Save(tasks); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("got %+v", loaded)
	}
}

func TestSQLiteTaskStoreSaveReplacesFullSet(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tasks.db")
	store, err := NewSQLiteTaskStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteTaskStore: %v", err)
	}
	defer store.Close()

	first := []PersistedTask{{ID: "t1", CreatedAt: time.Now().UTC()}}
	if err := store.Save(first); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	second := []PersistedTask{{ID: "t2", CreatedAt: time.Now().UTC()}}
	if err := store.Save(second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "t2" {
		t.Fatalf("expected only t2 to survive replace-all save, got %+v", loaded)
	}
}
