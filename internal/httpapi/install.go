package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pkgforge/pkgforge/internal/apperr"
	"github.com/pkgforge/pkgforge/internal/manifest"
)

// resolveBaseURL picks the configured PublicBaseURL if set, else derives
// one from the request's forwarded proto and host per §4.K.
func (s *Server) resolveBaseURL(r *http.Request) (string, error) {
	proto := r.Header.Get("X-Forwarded-Proto")
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return manifest.BaseURL(s.cfg.PublicBaseURL, proto, host)
}

func (s *Server) manifestTask(r *http.Request) (manifest.Task, error) {
	id := chi.URLParam(r, "id")
	snap, err := s.manager.GetPublic(id)
	if err != nil {
		return manifest.Task{}, err
	}
	if !snap.FileExists {
		return manifest.Task{}, apperr.ErrPkgNotFound
	}
	return manifest.Task{
		ID:       snap.ID,
		BundleID: snap.Software.BundleID,
		Version:  snap.Software.Version,
		Title:    snap.Software.Name,
	}, nil
}

func (s *Server) handleInstallManifest(w http.ResponseWriter, r *http.Request) {
	t, err := s.manifestTask(r)
	if err != nil {
		writeError(w, err)
		return
	}
	base, err := s.resolveBaseURL(r)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Validation, "cannot derive base url", err))
		return
	}

	xml := manifest.PlistXML(t, base)
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Length", strconv.Itoa(len(xml)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml))
}

func (s *Server) handleInstallURL(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.manager.GetPublic(id); err != nil {
		writeError(w, err)
		return
	}
	base, err := s.resolveBaseURL(r)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Validation, "cannot derive base url", err))
		return
	}

	manifestURL := base + "/api/install/" + id + "/manifest.plist"
	writeJSON(w, http.StatusOK, map[string]string{
		"installUrl":  manifest.InstallURL(manifestURL),
		"manifestUrl": manifestURL,
	})
}

func (s *Server) handleInstallPayload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rc, size, snap, err := s.manager.OpenFile(id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()
	streamIPA(w, rc, size, snap)
}

func (s *Server) handleInstallIcon(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(manifest.PlaceholderIconPNG)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(manifest.PlaceholderIconPNG)
}
