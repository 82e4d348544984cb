package storage

import (
	"io"
	"testing"

	"github.com/spf13/afero"
)

func TestLocalBlobStoreCreateOpenStatRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewLocalBlobStoreFS(fs, "/data/packages")

	w, err := store.Create("abcdefgh/com.x.y/1.0/task1.ipa")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	size, err := store.Stat("abcdefgh/com.x.y/1.0/task1.ipa")
	if err != nil || size != 11 {
		t.Fatalf("Stat: size=%d err=%v", size, err)
	}

	r, err := store.Open("abcdefgh/com.x.y/1.0/task1.ipa")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil || string(data) != "hello world" {
		t.Fatalf("got %q, err=%v", data, err)
	}

	if err := store.Remove("abcdefgh/com.x.y/1.0/task1.ipa"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove("abcdefgh/com.x.y/1.0/task1.ipa"); err != nil {
		t.Fatalf("Remove of already-absent file should be nil, got %v", err)
	}
}

func TestLocalBlobStoreRemoveEmptyDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewLocalBlobStoreFS(fs, "/data/packages")

	w, _ := store.Create("abcdefgh/com.x.y/1.0/task1.ipa")
	w.Write([]byte("x"))
	w.Close()
	store.Remove("abcdefgh/com.x.y/1.0/task1.ipa")

	if err := store.RemoveEmptyDirs("abcdefgh/com.x.y/1.0", ""); err != nil {
		t.Fatalf("RemoveEmptyDirs: %v", err)
	}

	if exists, _ := afero.DirExists(fs, store.AbsPath("abcdefgh")); exists {
		t.Fatal("expected all empty ancestor dirs removed up to root")
	}
	if exists, _ := afero.DirExists(fs, store.AbsPath("")); !exists {
		t.Fatal("expected root itself preserved")
	}
}

func TestLocalBlobStoreRemoveEmptyDirsStopsWhenNotEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewLocalBlobStoreFS(fs, "/data/packages")

	w1, _ := store.Create("abcdefgh/com.x.y/1.0/task1.ipa")
	w1.Write([]byte("x"))
	w1.Close()
	w2, _ := store.Create("abcdefgh/com.x.y/2.0/task2.ipa")
	w2.Write([]byte("y"))
	w2.Close()

	store.Remove("abcdefgh/com.x.y/1.0/task1.ipa")
	if err := store.RemoveEmptyDirs("abcdefgh/com.x.y/1.0", ""); err != nil {
		t.Fatalf("RemoveEmptyDirs: %v", err)
	}

	if exists, _ := afero.DirExists(fs, store.AbsPath("abcdefgh/com.x.y")); !exists {
		t.Fatal("expected sibling version directory's parent to survive")
	}
	if exists, _ := afero.DirExists(fs, store.AbsPath("abcdefgh/com.x.y/1.0")); exists {
		t.Fatal("expected the now-empty 1.0 dir removed")
	}
}

func TestLocalBlobStoreWalk(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewLocalBlobStoreFS(fs, "/data/packages")

	for _, p := range []string{"a/x.ipa", "a/b/y.ipa"} {
		w, _ := store.Create(p)
		w.Write([]byte("z"))
		w.Close()
	}

	var seen []string
	if err := store.Walk("", func(path string) error {
		seen = append(seen, path)
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 files, got %v", seen)
	}
}
