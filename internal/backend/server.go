package backend

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/dataghost/internal/config"
	mw "github.com/JonMunkholm/dataghost/internal/web/middleware"
)

// Server is the Answer Service HTTP server.
type Server struct {
	cfg     *config.Config
	service *Service
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a server for svc.
func NewServer(cfg *config.Config, svc *Service) *Server {
	s := &Server{
		cfg:     cfg,
		service: svc,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.CORS(s.cfg.Security.CORSOrigins))
}

// setupRoutes configures all HTTP routes. Mounted groups answer both "/ask"
// and "/ask/".
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleRoot)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/health/", s.handleHealth)
	s.router.Get("/health/detailed", s.handleDetailedHealth)

	s.router.Route("/ask", func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
		r.Post("/", s.handleAsk)
		r.Get("/sessions/{sessionID}/history", s.handleSessionHistory)
		r.Delete("/sessions/{sessionID}", s.handleClearSession)
	})

	s.router.Route("/upload", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/files", s.handleListFiles)
		r.Delete("/files/{fileID}", s.handleDeleteFile)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.RequestTimeout + s.cfg.Server.ReadTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("answer service listening", "addr", addr)
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
