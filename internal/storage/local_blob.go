package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalBlobStore stages bytes on the local filesystem under root, using
// afero so tests can substitute an in-memory filesystem without touching
// disk.
type LocalBlobStore struct {
	fs   afero.Fs
	root string
}

// NewLocalBlobStore returns a BlobStore rooted at root, using the real
// OS filesystem.
func NewLocalBlobStore(root string) *LocalBlobStore {
	return &LocalBlobStore{fs: afero.NewOsFs(), root: root}
}

// NewLocalBlobStoreFS returns a BlobStore over an arbitrary afero.Fs,
// used by tests to exercise the store without real disk I/O.
func NewLocalBlobStoreFS(fs afero.Fs, root string) *LocalBlobStore {
	return &LocalBlobStore{fs: fs, root: root}
}

func (s *LocalBlobStore) AbsPath(path string) string {
	return filepath.Join(s.root, path)
}

func (s *LocalBlobStore) Create(path string) (io.WriteCloser, error) {
	full := s.AbsPath(path)
	if err := s.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	return s.fs.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (s *LocalBlobStore) Open(path string) (io.ReadCloser, error) {
	return s.fs.Open(s.AbsPath(path))
}

func (s *LocalBlobStore) Stat(path string) (int64, error) {
	info, err := s.fs.Stat(s.AbsPath(path))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *LocalBlobStore) Remove(path string) error {
	err := s.fs.Remove(s.AbsPath(path))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// RemoveEmptyDirs walks upward from the store-relative dir, removing each
// directory that is empty, until it reaches stopAt (store-relative,
// exclusive — "" means the store root) or a non-empty directory.
func (s *LocalBlobStore) RemoveEmptyDirs(dir, stopAt string) error {
	stopAtAbs := filepath.Clean(s.AbsPath(stopAt))
	current := filepath.Clean(s.AbsPath(dir))
	stopAt = stopAtAbs
	for current != stopAt && len(current) > len(stopAt) {
		entries, err := afero.ReadDir(s.fs, current)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if len(entries) != 0 {
			return nil
		}
		if err := s.fs.Remove(current); err != nil {
			return err
		}
		current = filepath.Dir(current)
	}
	return nil
}

// Walk visits every regular file under the store-relative root,
// depth-first, yielding each one as a store-relative path — the same
// form Remove/Stat/Open expect — so callers can act on it directly.
func (s *LocalBlobStore) Walk(root string, fn func(path string) error) error {
	full := s.AbsPath(root)
	return afero.Walk(s.fs, full, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		return fn(rel)
	})
}
