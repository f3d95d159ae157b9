// Package facade exposes the engine's operations over an HTTP/WebSocket
// (and optional GraphQL) request/response boundary (spec §6), following
// the teacher's chi-based pkg/server layout: router/middleware setup in
// this file, handlers split by concern into sibling files, and a
// WriteJSON/WriteError/WriteSuccess convention for every response body.
package facade

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mnohosten/agentstate/internal/engine"
	"github.com/mnohosten/agentstate/internal/logging"
)

var log = logging.WithComponent("facade")

// Server is the HTTP facade over an Engine.
type Server struct {
	cfg       Config
	engine    *engine.Engine
	router    *chi.Mux
	httpSrv   *http.Server
	startTime time.Time
}

// New builds a Server wired to eng, with routes and middleware installed.
func New(eng *engine.Engine, cfg Config) *Server {
	s := &Server{
		cfg:       cfg,
		engine:    eng,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	if cfg.EnableGraphQL {
		s.setupGraphQLRoutes()
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)
	if s.cfg.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.cfg.MaxRequestSize > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestSize)
			}
			next.ServeHTTP(w, r)
		})
	})
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/_health", s.handleHealth)
	s.router.Get("/_version", s.handleVersion)
	s.router.Get("/_metrics", s.handleMetrics)

	s.router.Post("/txn", s.handleBeginTransaction)
	s.router.Post("/txn/{txnId}/write", s.handleWrite)
	s.router.Post("/txn/{txnId}/delete", s.handleDelete)
	s.router.Post("/txn/{txnId}/commit", s.handleCommit)
	s.router.Post("/txn/{txnId}/abort", s.handleAbort)

	s.router.Get("/state/{namespace}/{agentId}/*", s.handleGetState)
	s.router.Get("/state/{namespace}/{agentId}/versions/{version}/*", s.handleGetStateAtVersion)
	s.router.Get("/keys/{namespace}/{agentId}", s.handleListKeys)
	s.router.Get("/scan/{namespace}/{agentId}", s.handleScanPrefix)

	s.router.Get("/ws/replay", s.handleReplayWebSocket)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.cfg.AllowedOrigins) > 0 {
			origin = s.cfg.AllowedOrigins[0]
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger replaces chi's plain-text middleware.Logger with one
// structured zerolog line per request (method, path, status, latency).
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// Start runs the HTTP server until it errors or ctx is canceled, then
// shuts it down gracefully.
func (s *Server) Start(ctx context.Context) error {
	log.Info().Str("addr", s.httpSrv.Addr).Msg("facade starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("facade: listen: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the HTTP server and closes the engine.
func (s *Server) Shutdown() error {
	log.Info().Msg("facade shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	return s.engine.Close()
}

// Router exposes the underlying chi router, used by tests to drive
// requests without a live listener.
func (s *Server) Router() *chi.Mux {
	return s.router
}
