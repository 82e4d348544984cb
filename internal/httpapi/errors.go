package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pkgforge/pkgforge/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err to the status/message taxonomy §7 defines. A plain
// (non-*apperr.Error) error is treated as Internal and never echoed back
// verbatim to the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.StatusCode(), map[string]string{"error": appErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
}
