// Package httpapi serves the dashboard REST endpoints over the analysis service.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/vinodismyname/partnerlens/internal/runtime"
	"github.com/vinodismyname/partnerlens/internal/security"
	"github.com/vinodismyname/partnerlens/internal/service"
)

// Config holds server dependencies.
type Config struct {
	Addr      string
	Log       zerolog.Logger
	Service   *service.Service
	Security  *security.Manager
	Runtime   *runtime.Controller
	UploadDir string
	Version   string
}

// Server is the HTTP front end.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	svc       *service.Service
	sec       *security.Manager
	limits    runtime.Limits
	uploadDir string
	version   string
	markdown  goldmark.Markdown
	started   time.Time
}

// New builds the router and the underlying http.Server.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "http").Logger(),
		svc:       cfg.Service,
		sec:       cfg.Security,
		limits:    cfg.Runtime.LimitsSnapshot(),
		uploadDir: cfg.UploadDir,
		version:   cfg.Version,
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
		started:   time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes(runtime.NewMiddleware(cfg.Runtime))

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes(mw *runtime.Middleware) {
	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(mw.HTTP(s.timeoutFor))

		r.Post("/upload", s.handleUpload)
		r.Get("/load-stored-files", s.handleStoredFiles)
		r.Get("/get-analysis-data/{fileId}", s.handleAnalysis)
		r.Post("/get-top-partner", s.handleTopPartner)
		r.Post("/chat", s.handleChat)
		r.Post("/get-comparison-data", s.handleComparison)
		r.Get("/get-team-regions/{fileId}", s.handleTeamRegions)
	})
}

// timeoutFor gives chat turns the model budget; everything else gets the
// operation timeout.
func (s *Server) timeoutFor(r *http.Request) time.Duration {
	if r.URL.Path == "/chat" {
		return s.limits.ModelCallTimeout
	}
	return s.limits.OperationTimeout
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs each request and makes the request-scoped logger
// available to handlers through the context.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := s.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		r = r.WithContext(reqLog.WithContext(r.Context()))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		reqLog.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Msg("HTTP request")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
