// Package web provides the HTTP server and handlers for the dashboard.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/insights/internal/config"
	"github.com/JonMunkholm/insights/internal/core"
	"github.com/JonMunkholm/insights/internal/web/middleware"
	"github.com/JonMunkholm/insights/internal/web/templates"
)

// Server is the HTTP server of the dashboard.
type Server struct {
	service *core.Service
	cfg     *config.Config
	gate    *middleware.AdminGate
	router  *chi.Mux
	server  *http.Server

	limiters []*middleware.RateLimiter
}

// NewServer creates a Server. The gate guards admin routes.
func NewServer(service *core.Service, cfg *config.Config, gate *middleware.AdminGate) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		gate:    gate,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(s.gate.Identify)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP, contentSecurityPolicy(s.service.ChartAssetsHost())))

	if s.cfg.Rate.Enabled {
		s.router.Use(s.rateLimit(s.cfg.Rate.RequestsPerMinute))
	}
}

// rateLimit returns a per-minute limiter that Shutdown stops.
func (s *Server) rateLimit(perMinute int) func(http.Handler) http.Handler {
	rl := middleware.NewRateLimiter(perMinute, time.Minute)
	s.limiters = append(s.limiters, rl)
	return rl.Middleware
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	ask := func(next http.Handler) http.Handler { return next }
	if s.cfg.Rate.Enabled {
		ask = s.rateLimit(s.cfg.Rate.QuestionsPerMinute)
	}

	s.router.Get("/", s.handleDashboard)
	s.router.Get("/healthz", s.handleHealth)

	s.router.Get("/login", s.handleLoginPage)
	s.router.Post("/login", s.handleLogin)
	s.router.Post("/logout", s.handleLogout)

	s.router.Route("/files/{name}", func(r chi.Router) {
		r.Get("/", s.handleView)
		r.Get("/chart", s.handleChart)
		r.Get("/export", s.handleExport)
		r.With(ask).Post("/ask", s.handleAsk)
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(s.gate.Require)
		r.Post("/upload", s.handleUpload)
		r.Post("/delete", s.handleDelete)
		r.Post("/clear", s.handleClear)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleAPIStatus)
		r.Get("/files", s.handleAPIFiles)
		r.Get("/files/{name}/view", s.handleAPIView)
		r.Get("/files/{name}/sheets", s.handleAPISheets)
		r.Get("/files/{name}/insights", s.handleAPIInsights)
		r.With(ask).Post("/files/{name}/ask", s.handleAPIAsk)

		r.Group(func(r chi.Router) {
			r.Use(s.gate.Require)
			r.Post("/files", s.handleAPIUpload)
			r.Delete("/files/{name}", s.handleAPIDelete)
			r.Delete("/files", s.handleAPIClear)
		})
	})
}

// Start begins listening for HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.Stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// contentSecurityPolicy allows the chart scripts and htmx next to self.
func contentSecurityPolicy(assetsHost string) string {
	scripts := []string{"'self'", "'unsafe-inline'", origin(templates.HTMXSource)}
	if o := origin(assetsHost); o != "" && o != scripts[2] {
		scripts = append(scripts, o)
	}
	return "default-src 'self'; script-src " + strings.Join(scripts, " ") +
		"; style-src 'self' 'unsafe-inline'; img-src 'self' data:; font-src 'self'; frame-ancestors 'self'"
}

func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool, csp string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Chart pages are framed by the view page.
			w.Header().Set("X-Frame-Options", "SAMEORIGIN")

			if enableCSP {
				w.Header().Set("Content-Security-Policy", csp)
			}
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}
