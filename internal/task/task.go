// Package task implements the download task state machine: creation,
// the streaming worker, pause/resume/cancel, progress fan-out, and the
// startup orphan sweep.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status is one stage of a DownloadTask's lifecycle.
type Status string

const (
	StatusQueued      Status = "Queued"
	StatusDownloading Status = "Downloading"
	StatusPaused      Status = "Paused"
	StatusInjecting   Status = "Injecting"
	StatusCompleted   Status = "Completed"
	StatusFailed      Status = "Failed"
)

// Software describes the application an archive belongs to.
type Software struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	BundleID   string `json:"bundleId"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
}

// Sinf is one per-user license tuple as received from the client, with
// the license bytes still base64-encoded (the wire representation).
type Sinf struct {
	ID   int64  `json:"id"`
	Sinf string `json:"sinf"`
}

// CreateRequest is the validated input to Manager.CreateTask, decoded directly from
// the POST /api/downloads request body.
type CreateRequest struct {
	Software       Software `json:"software"`
	AccountHash    string   `json:"accountHash"`
	DownloadURL    string   `json:"downloadUrl"`
	Sinfs          []Sinf   `json:"sinfs"`
	ITunesMetadata string   `json:"iTunesMetadata,omitempty"` // base64-encoded XML plist, optional
}

// Task is the central entity: one download/injection/serve lifecycle.
// Secrets (DownloadURL, Sinfs, ITunesMetadata) are cleared on completion
// and never appear in a Sanitized projection regardless of status.
type Task struct {
	ID          string
	Software    Software
	AccountHash string
	DownloadURL string
	Sinfs       []Sinf
	ITunesMetadata string

	Status    Status
	Progress  int
	Speed     string
	Error     string
	FilePath  string
	CreatedAt time.Time
}

func newID() string {
	return uuid.NewString()
}

// Sanitized is the client-facing projection: never carries secrets.
type Sanitized struct {
	ID          string   `json:"id"`
	Software    Software `json:"software"`
	AccountHash string   `json:"accountHash"`
	Status      Status   `json:"status"`
	Progress    int      `json:"progress"`
	Speed       string   `json:"speed,omitempty"`
	Error       string   `json:"error,omitempty"`
	FilePath    string   `json:"filePath,omitempty"`
	FileExists  bool     `json:"fileExists"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Sanitize projects t into the client-facing shape; fileExists is
// supplied by the caller (the manager knows whether the blob still
// exists, the task itself does not).
func Sanitize(t Task, fileExists bool) Sanitized {
	return Sanitized{
		ID:          t.ID,
		Software:    t.Software,
		AccountHash: t.AccountHash,
		Status:      t.Status,
		Progress:    t.Progress,
		Speed:       t.Speed,
		Error:       t.Error,
		FilePath:    t.FilePath,
		FileExists:  fileExists,
		CreatedAt:   t.CreatedAt,
	}
}

// clearSecrets removes download_url, sinfs and itunes_metadata in place,
// as required once a task reaches Completed (and, defensively, Failed).
func (t *Task) clearSecrets() {
	t.DownloadURL = ""
	t.Sinfs = nil
	t.ITunesMetadata = ""
}
