package task

import (
	"archive/zip"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pkgforge/pkgforge/internal/apperr"
	"github.com/pkgforge/pkgforge/internal/injector"
	"github.com/pkgforge/pkgforge/internal/plist"
	"github.com/pkgforge/pkgforge/internal/security"
)

// progressTickMinInterval is the minimum time between speed/progress
// telemetry updates while streaming, avoiding a record mutation (and
// broadcast) on every chunk.
const progressTickMinInterval = 500 * time.Millisecond

func (m *Manager) signalAbort(id string) {
	m.abortMu.Lock()
	defer m.abortMu.Unlock()
	if ch, ok := m.abortHandles[id]; ok {
		close(ch)
		delete(m.abortHandles, id)
	}
}

func (m *Manager) registerAbort(id string) chan struct{} {
	ch := make(chan struct{})
	m.abortMu.Lock()
	m.abortHandles[id] = ch
	m.abortMu.Unlock()
	return ch
}

// clearAbort removes id's abort handle only if it is still the one this
// episode registered. A resumed task spawns a fresh handle under the same
// id; without this check the outgoing episode's deferred clearAbort could
// delete the new episode's handle if it runs after registerAbort, silently
// breaking a subsequent PauseTask on the resumed episode.
func (m *Manager) clearAbort(id string, ch chan struct{}) {
	m.abortMu.Lock()
	if m.abortHandles[id] == ch {
		delete(m.abortHandles, id)
	}
	m.abortMu.Unlock()
}

// startWorker spawns one download episode for task id.
func (m *Manager) startWorker(id string) {
	go m.runEpisode(id)
}

func (m *Manager) mutate(id string, fn func(t *Task)) (Task, bool) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return Task{}, false
	}
	fn(t)
	snap := *t
	m.mu.Unlock()
	return snap, true
}

func (m *Manager) fail(id, message string, cause error) {
	if cause != nil {
		m.log.Error("task %s: %v", id, cause)
	}
	snap, ok := m.mutate(id, func(t *Task) {
		t.Status = StatusFailed
		t.Error = message
		t.clearSecrets()
	})
	if ok {
		m.emit(snap)
	}
}

// runEpisode executes one full download attempt: streaming, optional
// injection, and completion. It is the worker algorithm of §4.H.
func (m *Manager) runEpisode(id string) {
	abort := m.registerAbort(id)
	defer m.clearAbort(id, abort)

	snap, ok := m.mutate(id, func(t *Task) {
		t.Status = StatusDownloading
		t.Progress = 0
		t.Speed = ""
		t.Error = ""
	})
	if !ok {
		return
	}
	m.emit(snap)

	dir := path.Join(
		security.SanitizeFilename(snap.AccountHash),
		security.SanitizeFilename(snap.Software.BundleID),
		security.SanitizeFilename(snap.Software.Version),
	)
	filePath := path.Join(dir, id+".ipa")

	if err := security.ValidateDownloadURL(snap.DownloadURL); err != nil {
		m.fail(id, "Download failed", fmt.Errorf("re-validate url: %w", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Second)
	defer cancel()
	go func() {
		select {
		case <-abort:
			cancel()
		case <-ctx.Done():
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, snap.DownloadURL, nil)
	if err != nil {
		m.fail(id, "Download failed", err)
		return
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if isAbort(abort) {
			return
		}
		m.fail(id, "Download failed", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		m.fail(id, "Download failed", fmt.Errorf("upstream returned status %d", resp.StatusCode))
		return
	}
	if resp.ContentLength > security.MaxDownloadSize {
		m.fail(id, "Download failed", fmt.Errorf("content-length %d exceeds cap", resp.ContentLength))
		return
	}

	out, err := m.blobs.Create(filePath)
	if err != nil {
		m.fail(id, "Download failed", fmt.Errorf("create staging file: %w", err))
		return
	}

	if updated, ok := m.mutate(id, func(t *Task) { t.FilePath = filePath }); ok {
		snap = updated
		m.emit(snap)
	}

	total, err := streamWithTelemetry(ctx, resp.Body, out, resp.ContentLength, func(total int64, progress int, speed string) {
		snap, ok := m.mutate(id, func(t *Task) {
			t.Progress = progress
			t.Speed = speed
		})
		if ok {
			m.emit(snap)
		}
	})
	closeErr := out.Close()

	if err != nil {
		if isAbort(abort) || errors.Is(err, context.Canceled) {
			return
		}
		m.fail(id, "Download failed", err)
		return
	}
	if closeErr != nil {
		m.fail(id, "Download failed", fmt.Errorf("flush staging file: %w", closeErr))
		return
	}
	if total > security.MaxDownloadSize {
		m.fail(id, "Download failed", fmt.Errorf("downloaded %d bytes exceeds cap", total))
		return
	}

	if len(snap.Sinfs) > 0 {
		snap, ok = m.mutate(id, func(t *Task) {
			t.Status = StatusInjecting
			t.Progress = 100
		})
		if ok {
			m.emit(snap)
		}
		if err := m.inject(filePath, snap); err != nil {
			m.fail(id, "Download failed", fmt.Errorf("injection: %w", err))
			return
		}
	}

	final, ok := m.mutate(id, func(t *Task) {
		t.Status = StatusCompleted
		t.Progress = 100
		t.clearSecrets()
	})
	if !ok {
		return
	}
	m.emit(final)
	m.log.Info("task %s: completed, %s staged at %s", id, humanize.Bytes(uint64(total)), filePath)

	if err := m.persist(); err != nil {
		m.log.Error("task %s: persist after completion: %v", id, err)
	}
}

func isAbort(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// inject decodes sinfs/metadata and runs the planner + rewriter against
// the staged file's absolute path.
func (m *Manager) inject(filePath string, snap Task) error {
	sinfs := make([]injector.Sinf, 0, len(snap.Sinfs))
	for _, s := range snap.Sinfs {
		data, err := base64.StdEncoding.DecodeString(s.Sinf)
		if err != nil {
			return apperr.New(apperr.Internal, "invalid sinf encoding")
		}
		sinfs = append(sinfs, injector.Sinf{ID: s.ID, Data: data})
	}

	var metadata []byte
	if snap.ITunesMetadata != "" {
		xmlBytes, err := base64.StdEncoding.DecodeString(snap.ITunesMetadata)
		if err != nil {
			return apperr.New(apperr.Internal, "invalid itunes metadata encoding")
		}
		if binary, err := plist.XMLToBinary(xmlBytes); err == nil {
			metadata = binary
		} else {
			metadata = xmlBytes
		}
	}

	abs := m.blobs.AbsPath(filePath)
	size, err := m.blobs.Stat(filePath)
	if err != nil {
		return err
	}

	r, zf, err := openZipReader(abs, size)
	if err != nil {
		return err
	}
	plan, err := injector.BuildPlan(r, sinfs, metadata)
	zf.Close()
	if err != nil {
		return err
	}
	return injector.Rewrite(abs, plan)
}

// streamWithTelemetry copies src into dst, invoking onTick at most every
// progressTickMinInterval with the running total, integer percent
// complete, and a formatted throughput string.
func streamWithTelemetry(ctx context.Context, src io.Reader, dst io.Writer, contentLength int64, onTick func(total int64, progress int, speed string)) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	lastTick := time.Now()
	var lastTotal int64

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
			if total > security.MaxDownloadSize {
				return total, fmt.Errorf("downloaded bytes exceed cap")
			}

			if elapsed := time.Since(lastTick); elapsed >= progressTickMinInterval {
				deltaBytes := total - lastTotal
				speed := security.FormatSpeed(float64(deltaBytes) / elapsed.Seconds())
				progress := 0
				if contentLength > 0 {
					progress = int(math.Round(100 * float64(total) / float64(contentLength)))
				}
				onTick(total, progress, speed)
				lastTick = time.Now()
				lastTotal = total
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, rerr
		}
	}
}

// openZipReader opens the file at abs as a zip.Reader, returning the
// underlying *os.File too so the caller can close it once done reading
// entries. It is re-opened directly (rather than through
// BlobStore.Open) because archive/zip needs an io.ReaderAt, not a plain
// io.ReadCloser, and its Reader lazily re-reads entry bodies through
// that handle after NewReader returns.
func openZipReader(abs string, size int64) (*zip.Reader, *os.File, error) {
	f, err := os.Open(abs)
	if err != nil {
		return nil, nil, fmt.Errorf("open ipa for injection: %w", err)
	}
	r, err := zip.NewReader(f, size)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, f, nil
}
