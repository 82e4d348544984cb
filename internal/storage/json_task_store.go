package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// JSONTaskStore persists the completed-task set as a single pretty-printed
// JSON array, rewritten atomically (write to a temp file, rename over the
// original) on every Save.
type JSONTaskStore struct {
	fs   afero.Fs
	path string
}

// NewJSONTaskStore returns a TaskStore backed by the file at path, using
// the real OS filesystem.
func NewJSONTaskStore(path string) *JSONTaskStore {
	return &JSONTaskStore{fs: afero.NewOsFs(), path: path}
}

// NewJSONTaskStoreFS returns a TaskStore over an arbitrary afero.Fs, used
// by tests.
func NewJSONTaskStoreFS(fs afero.Fs, path string) *JSONTaskStore {
	return &JSONTaskStore{fs: fs, path: path}
}

func (s *JSONTaskStore) Load() ([]PersistedTask, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var tasks []PersistedTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *JSONTaskStore) Save(tasks []PersistedTask) error {
	if tasks == nil {
		tasks = []PersistedTask{}
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return err
	}
	return s.fs.Rename(tmp, s.path)
}
