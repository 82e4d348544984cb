package wisp

import (
	"net/http"

	cws "github.com/coder/websocket"

	"github.com/pkgforge/pkgforge/pkg/logger"
)

// NewHTTPHandler returns the handler mounted at /wisp/*: it upgrades the
// request to a WebSocket and drives one Session to completion.
func NewHTTPHandler(log logger.Logger) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := cws.Accept(w, r, &cws.AcceptOptions{
			// The client is a Wisp-speaking tunnel consumer, not a browser
			// page; same-origin checks don't apply to this transport.
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer ws.CloseNow()

		NewSession(ws, log).Run(r.Context())
	}
}
