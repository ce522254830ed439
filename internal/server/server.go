// Package server assembles the HTTP router: shared middleware, health and
// metrics endpoints, and the viewer mounted under its path prefix.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ziadkadry99/crystal-viewer/internal/metrics"
	"github.com/ziadkadry99/crystal-viewer/internal/viewer"
)

// Config holds server configuration.
type Config struct {
	Addr     string // host:port to listen on
	Compress bool   // gzip responses
	AllowAll bool   // allow all CORS origins
}

// Server is the crystal viewer HTTP server.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	viewer     *viewer.Viewer
	router     chi.Router
	httpServer *http.Server
}

// New creates a server. m may be nil, in which case /metrics is not served.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics, v *viewer.Viewer) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		viewer:  v,
	}

	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.cfg.Compress {
		r.Use(middleware.Compress(5))
	}

	// CORS
	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-Cache", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
		corsOpts.AllowCredentials = false
	}
	r.Use(cors.Handler(corsOpts))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	if s.viewer != nil {
		prefix := s.viewer.Prefix()
		if prefix == "/" {
			s.viewer.RegisterRoutes(r)
		} else {
			r.Route(strings.TrimSuffix(prefix, "/"), s.viewer.RegisterRoutes)
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, prefix, http.StatusFound)
			})
		}
	}

	return r
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() chi.Router { return s.router }

// ServerConfig returns the server configuration.
func (s *Server) ServerConfig() Config { return s.cfg }

// Start begins listening on the configured address.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown is called, in which case it
// returns nil.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("crystalviewer listening", "addr", l.Addr().String())
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
