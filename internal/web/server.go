// Package web provides the HTTP API for uploading files and reading their
// date-column metadata.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/dateprobe/internal/config"
	"github.com/JonMunkholm/dateprobe/internal/core"
	"github.com/JonMunkholm/dateprobe/internal/uploads"
	"github.com/JonMunkholm/dateprobe/internal/web/middleware"
)

// Server is the HTTP server for the date detection API.
type Server struct {
	cfg    *config.Config
	proc   *core.Processor
	files  *uploads.Dir
	router *chi.Mux
	server *http.Server
}

// NewServer creates a Server. proc owns the engine and metadata store;
// files is the uploads directory proc resolves names against.
func NewServer(cfg *config.Config, proc *core.Processor, files *uploads.Dir) *Server {
	s := &Server{
		cfg:    cfg,
		proc:   proc,
		files:  files,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Server.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/files", func(r chi.Router) {
		r.Get("/", s.handleListFiles)
		r.Post("/", s.handleUpload)

		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.handleGetFile)
			r.Delete("/", s.handleDeleteFile)
			r.Get("/columns", s.handleColumns)
			r.Get("/preview", s.handlePreview)
			r.Post("/reprocess", s.handleReprocess)
			r.Get("/harmonized", s.handleHarmonized)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// healthResponse is the body of GET /healthz.
type healthResponse struct {
	Status string             `json:"status"`
	Time   time.Time          `json:"time"`
	Runs   core.LimiterStatus `json:"runs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Time:   time.Now().UTC(),
		Runs:   s.proc.LimiterStatus(),
	})
}
