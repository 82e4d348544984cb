package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pkgforge/pkgforge/internal/apperr"
	"github.com/pkgforge/pkgforge/internal/task"
)

func splitAccountHashes(r *http.Request) []string {
	raw := r.URL.Query().Get("accountHashes")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) handleCreateDownload(w http.ResponseWriter, r *http.Request) {
	var req task.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "malformed request body"))
		return
	}

	sanitized, err := s.manager.CreateTask(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sanitized)
}

func (s *Server) handleListDownloads(w http.ResponseWriter, r *http.Request) {
	hashes := splitAccountHashes(r)
	tasks := s.manager.ListTasks(hashes)
	if tasks == nil {
		tasks = []task.Sanitized{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	accountHash := r.URL.Query().Get("accountHash")

	sanitized, err := s.manager.GetTask(id, accountHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sanitized)
}

func (s *Server) handlePauseDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	accountHash := r.URL.Query().Get("accountHash")

	sanitized, err := s.manager.PauseTask(id, accountHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sanitized)
}

func (s *Server) handleResumeDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	accountHash := r.URL.Query().Get("accountHash")

	sanitized, err := s.manager.ResumeTask(id, accountHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sanitized)
}

func (s *Server) handleDeleteDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	accountHash := r.URL.Query().Get("accountHash")

	if err := s.manager.DeleteTask(id, accountHash); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleDownloadProgress streams sanitised snapshots as a text/event-stream
// of JSON payloads: the current snapshot immediately, then one per
// subsequent broadcast, until the client disconnects.
func (s *Server) handleDownloadProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	accountHash := r.URL.Query().Get("accountHash")

	current, updates, cancel, err := s.manager.Subscribe(id, accountHash)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.New(apperr.Internal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, current)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			writeSSE(w, snap)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, snap task.Sanitized) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
