package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pkgforge/pkgforge/internal/security"
	"github.com/pkgforge/pkgforge/internal/task"
)

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	hashes := splitAccountHashes(r)
	pkgs := s.manager.ListPackages(hashes)
	if pkgs == nil {
		pkgs = []task.PackageEntry{}
	}
	writeJSON(w, http.StatusOK, pkgs)
}

func (s *Server) handlePackageFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	accountHash := r.URL.Query().Get("accountHash")

	rc, size, snap, err := s.manager.OpenOwnedFile(id, accountHash)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	streamIPA(w, rc, size, snap)
}

func (s *Server) handleDeletePackage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	accountHash := r.URL.Query().Get("accountHash")

	if err := s.manager.DeleteTask(id, accountHash); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// streamIPA writes the IPA body with the Content-Disposition filename the
// spec requires: "<name>_<version>.ipa", both components sanitised.
func streamIPA(w http.ResponseWriter, rc io.Reader, size int64, snap task.Sanitized) {
	name := security.SanitizeFilename(snap.Software.Name)
	version := security.SanitizeFilename(snap.Software.Version)
	filename := fmt.Sprintf("%s_%s.ipa", name, version)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}
