// Package web provides the HTTP server and handlers of the CSV preview UI
// and API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/csvpreview/internal/config"
	"github.com/JonMunkholm/csvpreview/internal/preview"
	"github.com/JonMunkholm/csvpreview/internal/web/middleware"
)

// Server is the HTTP server for the preview application.
type Server struct {
	cfg      *config.Config
	router   *chi.Mux
	server   *http.Server
	limiter  *preview.Limiter
	sessions *SessionStore

	rateLimiters []*rateLimiter
}

// NewServer creates a Server from cfg.
func NewServer(cfg *config.Config) *Server {
	limiter := preview.NewLimiter(cfg.Preview.MaxConcurrent, cfg.Preview.MaxWaitTime)

	s := &Server{
		cfg:     cfg,
		router:  chi.NewRouter(),
		limiter: limiter,
		sessions: NewSessionStore(SessionConfig{
			TTL:         cfg.Preview.SessionTTL,
			MaxSessions: cfg.Preview.MaxSessions,
			Debounce:    cfg.Preview.Debounce,
			SpoolDir:    cfg.Preview.SpoolDir,
		}, preview.Deps{
			MaxBytes: cfg.Preview.MaxBytes,
			Parser:   limiter.Parser(nil),
			Logger:   slog.Default().With("component", "session"),
		}),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimit(s.cfg.Rate.RequestsPerMinute))
	}
}

// setupRoutes configures all HTTP routes. Event streams are the only
// routes without a request timeout.
func (s *Server) setupRoutes() {
	previewRate := s.newRateLimit(s.cfg.Rate.PreviewLimit)
	timeout := chimw.Timeout(s.cfg.Server.RequestTimeout)

	// Pages
	s.router.Group(func(r chi.Router) {
		r.Use(timeout)
		r.Get("/", s.handleIndex)
		r.With(previewRate).Post("/preview", s.handleFormPreview)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.Get("/delimiters", s.handleDelimiters)
			r.Get("/status", s.handleStatus)
			r.With(previewRate).Post("/preview", s.handleAPIPreview)

			r.Post("/sessions", s.handleCreateSession)
			r.Get("/sessions/{sessionID}", s.handleGetSession)
			r.Delete("/sessions/{sessionID}", s.handleDeleteSession)
			r.With(previewRate).Put("/sessions/{sessionID}/file", s.handleSessionFile)
			r.Put("/sessions/{sessionID}/options", s.handleSessionOptions)
		})

		r.Get("/sessions/{sessionID}/events", s.handleSessionEvents)
	})
}

// newRateLimit returns a per-IP limit of perMinute requests, or a
// pass-through when rate limiting is disabled.
func (s *Server) newRateLimit(perMinute int) func(http.Handler) http.Handler {
	if !s.cfg.Rate.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	rl := newRateLimiter(perMinute, time.Minute)
	s.rateLimiters = append(s.rateLimiters, rl)
	return rl.middleware
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
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes all sessions, which ends their event streams, then stops
// the server and waits for running previews.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sessions.Close()

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	if drainErr := s.limiter.WaitForDrain(ctx); drainErr != nil {
		slog.Warn("previews still running at shutdown", "active", s.limiter.Status().Active)
		err = errors.Join(err, drainErr)
	}

	for _, rl := range s.rateLimiters {
		rl.Stop()
	}
	return err
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}

			next.ServeHTTP(w, r)
		})
	}
}
