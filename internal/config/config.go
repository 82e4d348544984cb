// Package config resolves server configuration from environment variables,
// with optional CLI flag overrides for local/manual runs.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Version is the build version string, set at link time via -ldflags in
// release builds; defaults to "dev" for local builds.
var Version = "dev"

// Config is the resolved server configuration. All fields are read once at
// startup; nothing here changes for the life of the process.
type Config struct {
	Port          int
	DataDir       string
	PublicBaseURL string
	PublicDir     string
	// StorageBackend selects the TaskStore implementation: "file"
	// (default, JSON snapshot) or "sqlite". Staged IPA bytes always live
	// on the local filesystem regardless of this setting.
	StorageBackend string
}

// Default values per spec.md §6 "Environment inputs".
const (
	DefaultPort           = 8080
	DefaultDataDir        = "./data"
	DefaultStorageBackend = "file"
)

// FromEnv resolves configuration from the environment only. CLI flags, when
// present, are merged in by the caller (cmd/pkgforged) after this call.
func FromEnv() Config {
	cfg := Config{
		Port:           DefaultPort,
		DataDir:        DefaultDataDir,
		StorageBackend: DefaultStorageBackend,
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Port = p
		}
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		cfg.PublicBaseURL = v
	}
	if v := os.Getenv("PUBLIC_DIR"); v != "" {
		cfg.PublicDir = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = v
	}
	return cfg
}

// PackagesDir is the root directory below which all staged IPAs reside.
// Staged paths are built by joining sanitised components under it; no
// symlink-resolved containment check is made against it on file access.
func (c Config) PackagesDir() string {
	return filepath.Join(c.DataDir, "packages")
}

// TasksFile is the JSON snapshot path used by the file storage backend.
func (c Config) TasksFile() string {
	return filepath.Join(c.DataDir, "tasks.json")
}

// SQLitePath is the database file path used by the sqlite storage backend.
func (c Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "tasks.db")
}
