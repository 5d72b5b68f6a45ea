// Package web provides the HTTP server and handlers for the upload page.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/docparse/internal/config"
	"github.com/JonMunkholm/docparse/internal/core"
	"github.com/JonMunkholm/docparse/internal/session"
	mw "github.com/JonMunkholm/docparse/internal/web/middleware"
)

// contentSecurityPolicy allows the page's inline styles and the picker's
// inline change handler; previews are served from this origin.
const contentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; font-src 'self'; form-action 'self'; frame-ancestors 'none'"

// Server is the HTTP server for the upload page.
type Server struct {
	cfg      *config.Config
	sessions *session.Store
	previews *core.PreviewStore
	limiter  *core.ParseLimiter
	router   *chi.Mux
	server   *http.Server
	rate     *rateLimiter
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, sessions *session.Store, previews *core.PreviewStore, limiter *core.ParseLimiter) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		previews: previews,
		limiter:  limiter,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger("/health"))
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.rate = newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(s.rate.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(s.sessions.Middleware(session.CookieOptions{
			Name:   s.cfg.Session.CookieName,
			Secure: s.cfg.Session.CookieSecure,
			MaxAge: s.cfg.Session.IdleTimeout,
		}))

		r.Get("/", s.handleIndex)
		r.Post("/select", s.handleSelect)
		r.Post("/submit", s.handleSubmit)
		r.Post("/clear", s.handleClear)
		r.Get("/export", s.handleExport)
		r.Get("/preview/{ref}", s.handlePreview)

		r.Route("/api", func(r chi.Router) {
			r.Get("/state", s.handleState)
			r.Post("/select", s.handleSelect)
			r.Post("/submit", s.handleSubmit)
			r.Post("/clear", s.handleClear)
		})
	})
}

// Start begins listening for HTTP requests. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	slog.Info("server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rate != nil {
		s.rate.stop()
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(csp bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if csp {
				w.Header().Set("Content-Security-Policy", contentSecurityPolicy)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
