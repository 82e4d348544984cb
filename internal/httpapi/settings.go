package httpapi

import (
	"net/http"

	"github.com/pkgforge/pkgforge/internal/config"
)

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"hostname": r.Host,
		"version":  config.Version,
	})
}
