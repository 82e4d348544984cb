package task

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkgforge/pkgforge/internal/apperr"
	"github.com/pkgforge/pkgforge/internal/security"
	"github.com/pkgforge/pkgforge/internal/storage"
	"github.com/pkgforge/pkgforge/pkg/logger"
)

// Manager owns the in-memory task map and the shared maps the engine
// depends on: one-shot abort signals and lazily-created progress
// broadcasters. Each map has its own lock, matching the discipline that
// writers hold a lock only to mutate state and release it before
// performing any I/O.
type Manager struct {
	mu    sync.RWMutex
	tasks map[string]*Task

	abortMu      sync.Mutex
	abortHandles map[string]chan struct{}

	progressMu sync.RWMutex
	progressTx map[string]*broadcaster

	blobs     storage.BlobStore
	taskStore storage.TaskStore
	log       logger.Logger
	client    *http.Client
}

// NewManager wires a Manager over the given storage backends.
func NewManager(blobs storage.BlobStore, taskStore storage.TaskStore, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Manager{
		tasks:        make(map[string]*Task),
		abortHandles: make(map[string]chan struct{}),
		progressTx:   make(map[string]*broadcaster),
		blobs:        blobs,
		taskStore:    taskStore,
		log:          log,
		client:       &http.Client{Timeout: 600 * time.Second},
	}
}

// LoadPersisted restores Completed tasks from the task store, skipping
// any whose file no longer exists (per §4.G load rules); it does not run
// the orphan sweep itself — call Sweep separately once loading finishes.
func (m *Manager) LoadPersisted() error {
	persisted, err := m.taskStore.Load()
	if err != nil {
		return fmt.Errorf("task: load persisted tasks: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range persisted {
		if _, err := m.blobs.Stat(p.FilePath); err != nil {
			continue
		}
		m.tasks[p.ID] = &Task{
			ID:          p.ID,
			Software:    Software{Name: p.SoftwareName, Version: p.Version, BundleID: p.BundleID},
			AccountHash: p.AccountHash,
			Status:      StatusCompleted,
			Progress:    100,
			FilePath:    p.FilePath,
			CreatedAt:   p.CreatedAt,
		}
	}
	return nil
}

func validateCreate(req CreateRequest) error {
	switch {
	case req.DownloadURL == "":
		return apperr.New(apperr.Validation, "downloadUrl is required")
	case req.Software.Name == "":
		return apperr.New(apperr.Validation, "software.name is required")
	case req.Software.Version == "":
		return apperr.New(apperr.Validation, "software.version is required")
	case req.Software.BundleID == "":
		return apperr.New(apperr.Validation, "software.bundleId is required")
	case len(req.AccountHash) < 8:
		return apperr.New(apperr.Validation, "accountHash must be at least 8 characters")
	}
	if err := security.ValidateDownloadURL(req.DownloadURL); err != nil {
		return apperr.Wrap(apperr.Validation, "downloadUrl is invalid", err)
	}
	return nil
}

// CreateTask validates the request, registers a new task record, spawns
// its download worker, and returns the sanitised record.
func (m *Manager) CreateTask(req CreateRequest) (Sanitized, error) {
	if err := validateCreate(req); err != nil {
		return Sanitized{}, err
	}

	t := &Task{
		ID:             newID(),
		Software:       req.Software,
		AccountHash:    req.AccountHash,
		DownloadURL:    req.DownloadURL,
		Sinfs:          req.Sinfs,
		ITunesMetadata: req.ITunesMetadata,
		Status:         StatusQueued,
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()

	m.startWorker(t.ID)

	return Sanitize(*t, false), nil
}

func (m *Manager) getOwned(id, accountHash string) (*Task, error) {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.ErrTaskNotFound
	}
	if t.AccountHash != accountHash {
		return nil, apperr.ErrAccessDenied
	}
	return t, nil
}

func (m *Manager) fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := m.blobs.Stat(path)
	return err == nil
}

// GetTask returns the sanitised record if accountHash owns it.
func (m *Manager) GetTask(id, accountHash string) (Sanitized, error) {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return Sanitized{}, apperr.ErrTaskNotFound
	}
	if t.AccountHash != accountHash {
		return Sanitized{}, apperr.ErrAccessDenied
	}
	snap := *t
	return Sanitize(snap, m.fileExists(snap.FilePath)), nil
}

// ListTasks returns every task owned by any of the given account hashes.
func (m *Manager) ListTasks(accountHashes []string) []Sanitized {
	owned := make(map[string]bool, len(accountHashes))
	for _, h := range accountHashes {
		owned[h] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Sanitized, 0, len(m.tasks))
	for _, t := range m.tasks {
		if owned[t.AccountHash] {
			out = append(out, Sanitize(*t, m.fileExists(t.FilePath)))
		}
	}
	return out
}

// GetPublic returns the sanitised record regardless of ownership, for the
// unauthenticated install endpoints — the task id itself, handed out only
// to the client that created the task, is the capability.
func (m *Manager) GetPublic(id string) (Sanitized, error) {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return Sanitized{}, apperr.ErrTaskNotFound
	}
	snap := *t
	return Sanitize(snap, m.fileExists(snap.FilePath)), nil
}

// OpenFile opens the staged IPA for id, regardless of ownership, for the
// install payload endpoint. Returns apperr.ErrPkgNotFound if the task
// isn't Completed or its file is gone.
func (m *Manager) OpenFile(id string) (io.ReadCloser, int64, Sanitized, error) {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return nil, 0, Sanitized{}, apperr.ErrTaskNotFound
	}
	snap := *t
	if snap.Status != StatusCompleted || snap.FilePath == "" {
		return nil, 0, Sanitized{}, apperr.ErrPkgNotFound
	}
	size, err := m.blobs.Stat(snap.FilePath)
	if err != nil {
		return nil, 0, Sanitized{}, apperr.ErrPkgNotFound
	}
	f, err := m.blobs.Open(snap.FilePath)
	if err != nil {
		return nil, 0, Sanitized{}, apperr.Wrap(apperr.Internal, "open staged file", err)
	}
	return f, size, Sanitize(snap, true), nil
}

// OpenOwnedFile is OpenFile with an ownership check, for the authenticated
// package download endpoint.
func (m *Manager) OpenOwnedFile(id, accountHash string) (io.ReadCloser, int64, Sanitized, error) {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return nil, 0, Sanitized{}, apperr.ErrTaskNotFound
	}
	if t.AccountHash != accountHash {
		return nil, 0, Sanitized{}, apperr.ErrAccessDenied
	}
	return m.OpenFile(id)
}

// ListPackages returns Completed tasks with an existing file, owned by
// any of the given account hashes, annotated with file size.
func (m *Manager) ListPackages(accountHashes []string) []PackageEntry {
	owned := make(map[string]bool, len(accountHashes))
	for _, h := range accountHashes {
		owned[h] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PackageEntry
	for _, t := range m.tasks {
		if !owned[t.AccountHash] || t.Status != StatusCompleted {
			continue
		}
		size, err := m.blobs.Stat(t.FilePath)
		if err != nil {
			continue
		}
		out = append(out, PackageEntry{Sanitized: Sanitize(*t, true), FileSize: size})
	}
	return out
}

// PackageEntry is a Completed task augmented with its file size, for the
// packages listing endpoint.
type PackageEntry struct {
	Sanitized
	FileSize int64 `json:"fileSize"`
}

// PauseTask transitions a Downloading task to Paused and signals its
// worker to abort. Returns a Validation error if the task isn't
// Downloading.
func (m *Manager) PauseTask(id, accountHash string) (Sanitized, error) {
	t, err := m.getOwned(id, accountHash)
	if err != nil {
		return Sanitized{}, err
	}

	m.mu.Lock()
	if t.Status != StatusDownloading {
		m.mu.Unlock()
		return Sanitized{}, apperr.New(apperr.Validation, "task is not downloading")
	}
	t.Status = StatusPaused
	snap := *t
	m.mu.Unlock()

	m.signalAbort(id)
	m.emit(snap)
	return Sanitize(snap, m.fileExists(snap.FilePath)), nil
}

// ResumeTask transitions a Paused task back to Downloading and spawns a
// fresh worker episode starting from zero bytes.
func (m *Manager) ResumeTask(id, accountHash string) (Sanitized, error) {
	t, err := m.getOwned(id, accountHash)
	if err != nil {
		return Sanitized{}, err
	}

	m.mu.Lock()
	if t.Status != StatusPaused {
		m.mu.Unlock()
		return Sanitized{}, apperr.New(apperr.Validation, "task is not paused")
	}
	m.mu.Unlock()

	m.startWorker(id)

	m.mu.RLock()
	snap := *m.tasks[id]
	m.mu.RUnlock()
	return Sanitize(snap, m.fileExists(snap.FilePath)), nil
}

// DeleteTask signals abort if the task is active, removes the record,
// deletes the staged file, prunes now-empty ancestor directories, and
// persists the remaining Completed set.
func (m *Manager) DeleteTask(id, accountHash string) error {
	t, err := m.getOwned(id, accountHash)
	if err != nil {
		return err
	}

	m.signalAbort(id)

	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()

	if t.FilePath != "" {
		if err := m.blobs.Remove(t.FilePath); err != nil {
			m.log.Error("task: remove staged file for %s: %v", id, err)
		}
		dir := dirOf(t.FilePath)
		if err := m.blobs.RemoveEmptyDirs(dir, ""); err != nil {
			m.log.Error("task: prune empty dirs for %s: %v", id, err)
		}
	}

	if t.Status == StatusCompleted {
		return m.persist()
	}
	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return path
}

// persist rewrites the task store with the current Completed set.
func (m *Manager) persist() error {
	m.mu.RLock()
	var records []storage.PersistedTask
	for _, t := range m.tasks {
		if t.Status != StatusCompleted || t.FilePath == "" {
			continue
		}
		records = append(records, storage.PersistedTask{
			ID:           t.ID,
			SoftwareName: t.Software.Name,
			Version:      t.Software.Version,
			BundleID:     t.Software.BundleID,
			AccountHash:  t.AccountHash,
			FilePath:     t.FilePath,
			CreatedAt:    t.CreatedAt,
		})
	}
	m.mu.RUnlock()
	return m.taskStore.Save(records)
}
