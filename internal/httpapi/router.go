// Package httpapi wires the download/package/install/proxy endpoints onto
// a chi router, translating HTTP requests into internal/task.Manager
// calls and internal/task errors into the status codes internal/apperr
// defines.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pkgforge/pkgforge/internal/config"
	"github.com/pkgforge/pkgforge/internal/task"
	"github.com/pkgforge/pkgforge/internal/wisp"
	"github.com/pkgforge/pkgforge/pkg/logger"
)

// Server holds everything an HTTP handler needs: the task manager, the
// resolved config (for PublicBaseURL), and a logger.
type Server struct {
	manager *task.Manager
	cfg     config.Config
	log     logger.Logger
	proxy   *upstreamProxy
	router  chi.Router
}

// New builds the router. Call ServeHTTP (or use Router()) to serve it.
func New(manager *task.Manager, cfg config.Config, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}
	s := &Server{
		manager: manager,
		cfg:     cfg,
		log:     log,
		proxy:   newUpstreamProxy(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Router() chi.Router { return s.router }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/downloads", func(r chi.Router) {
		r.Post("/", s.handleCreateDownload)
		r.Get("/", s.handleListDownloads)
		r.Get("/{id}", s.handleGetDownload)
		r.Get("/{id}/progress", s.handleDownloadProgress)
		r.Post("/{id}/pause", s.handlePauseDownload)
		r.Post("/{id}/resume", s.handleResumeDownload)
		r.Delete("/{id}", s.handleDeleteDownload)
	})

	r.Route("/api/packages", func(r chi.Router) {
		r.Get("/", s.handleListPackages)
		r.Get("/{id}/file", s.handlePackageFile)
		r.Delete("/{id}", s.handleDeletePackage)
	})

	r.Route("/api/install/{id}", func(r chi.Router) {
		r.Get("/manifest.plist", s.handleInstallManifest)
		r.Get("/url", s.handleInstallURL)
		r.Get("/payload.ipa", s.handleInstallPayload)
		r.Get("/icon-small.png", s.handleInstallIcon)
		r.Get("/icon-large.png", s.handleInstallIcon)
	})

	r.Get("/api/search", s.proxy.handleSearch)
	r.Get("/api/lookup", s.proxy.handleLookup)
	r.Get("/api/bag", s.proxy.handleBag)
	r.Get("/api/settings", s.handleSettings)

	r.Handle("/wisp/*", http.HandlerFunc(wisp.NewHTTPHandler(s.log)))

	return r
}
