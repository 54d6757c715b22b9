package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"portway/internal/config"
	"portway/internal/coolify"
	"portway/internal/deploy"
	"portway/internal/history"
	"portway/internal/portalloc"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 120 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware. A full deployment makes several
	// upstream calls plus the provision wait, so this is generous.
	RequestTimeout = 120 * time.Second

	// Rate limiting - requests per minute
	GlobalRateLimit = 60
	DeployRateLimit = 6
)

// Server represents the HTTP server
type Server struct {
	Orchestrator *deploy.Orchestrator
	Client       *coolify.Client
	Allocator    portalloc.Allocator
	History      *history.History
	Config       *config.Config
	Logger       *slog.Logger
	TestMode     bool
}

// NewServer creates a new server instance
func NewServer(orch *deploy.Orchestrator, hist *history.History, cfg *config.Config, logger *slog.Logger, testMode bool) *Server {
	return &Server{
		Orchestrator: orch,
		Client:       orch.Client,
		Allocator:    orch.Allocator,
		History:      hist,
		Config:       cfg,
		Logger:       logger,
		TestMode:     testMode,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	// Logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	// Rate limiting middleware (only if not in test mode)
	if !s.TestMode {
		r.Use(NewRateLimitMiddleware(GlobalRateLimit, s.Logger))
	}

	// Routes
	r.Get("/health", s.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/projects", s.HandleCreateProject)
		r.Get("/projects/{uuid}/environment", s.HandleGetEnvironment)

		r.Get("/applications", s.HandleListApplications)
		r.Post("/applications", s.HandleCreateApplication)
		r.Post("/applications/{uuid}/envs", s.HandleSetEnvVars)
		r.Post("/applications/{uuid}/deploy", s.HandleDeploy)
		r.Get("/applications/{uuid}/status", s.HandleDeploymentStatus)

		// The one-call path: project, application, env vars and deployment
		// in a single request. Strict rate limit since every call burns a
		// host port.
		if !s.TestMode {
			r.With(NewDeployRateLimitMiddleware(DeployRateLimit, s.Logger)).Post("/deploy", s.HandleFullDeployment)
		} else {
			r.Post("/deploy", s.HandleFullDeployment)
		}
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("Starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.History != nil {
		return s.History.Close()
	}
	return nil
}
