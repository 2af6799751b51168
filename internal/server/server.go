package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/securecookie"

	"github.com/faucetdb/tokengate/internal/auth"
	"github.com/faucetdb/tokengate/internal/config"
	"github.com/faucetdb/tokengate/internal/handler"
	"github.com/faucetdb/tokengate/internal/model"
	"github.com/faucetdb/tokengate/internal/openapi"
	"github.com/faucetdb/tokengate/internal/remote"
	"github.com/faucetdb/tokengate/internal/server/middleware"
	"github.com/faucetdb/tokengate/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	CORSMethods     []string
	MaxBodySize     int64 // bytes, 0 = unlimited
	RateLimit       int   // requests per minute per token or IP, 0 = off

	// App holds the authorization defaults every model inherits.
	App model.AppSettings

	// Token locations. nil selects the defaults; an empty slice disables
	// that source.
	TokenParams  []string
	TokenHeaders []string
	TokenCookies []string

	// CookieSecret signs the authorization cookie. When empty a random key
	// is generated and cookies do not survive a restart.
	CookieSecret  []byte
	SecureCookies bool
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		CORSMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		MaxBodySize:     1 << 20, // 1MB
		RateLimit:       100,
	}
}

// Server is the top-level HTTP server. It owns the Chi router, the model
// registry, the store and the token service.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *config.Store
	tokens     *service.TokenService
	registry   *remote.Registry
	dispatcher *remote.Dispatcher
	cookies    *middleware.SignedCookies
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, store *config.Store, tokens *service.TokenService, registry *remote.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	secret := cfg.CookieSecret
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
		logger.Warn("no cookie secret configured, session cookies will not survive a restart")
	}

	s := &Server{
		cfg:        cfg,
		store:      store,
		tokens:     tokens,
		registry:   registry,
		dispatcher: remote.NewDispatcher(registry, remote.NewGate(cfg.App, store, logger)),
		cookies:    middleware.NewSignedCookies(secret, cfg.SecureCookies),
		logger:     logger,
	}
	s.setupRouter()
	return s
}

// cookieNames returns the cookies the token middleware reads.
func (s *Server) cookieNames() []string {
	if s.cfg.TokenCookies == nil {
		return []string{auth.DefaultCookie}
	}
	return s.cfg.TokenCookies
}

func (s *Server) tokenLocations() openapi.TokenLocations {
	loc := openapi.TokenLocations{
		Params:  s.cfg.TokenParams,
		Headers: s.cfg.TokenHeaders,
		Cookies: s.cookieNames(),
	}
	if loc.Params == nil {
		loc.Params = []string{auth.DefaultParam}
	}
	if loc.Headers == nil {
		loc.Headers = auth.DefaultHeaders
	}
	return loc
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	extractors := auth.Extractors(s.cfg.TokenParams, s.cfg.TokenHeaders, s.cfg.TokenCookies)
	resolver := auth.NewResolver(s.tokens, s.store, extractors, s.logger)

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   s.cfg.CORSMethods,
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Access-Token", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}

	// --- Health checks (no token needed) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- Everything below resolves the caller's token ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.ResolveToken(resolver, s.cookies, s.cookieNames(), s.logger))
		if s.cfg.RateLimit > 0 {
			r.Use(middleware.RateLimitByToken(s.cfg.RateLimit))
		}

		r.Get("/openapi.json", handler.NewOpenAPIHandler(s.registry, s.tokenLocations()).ServeSpec)

		r.Route("/api/v1", func(r chi.Router) {
			// Session endpoints move an already issued token into the
			// signed cookie and back out. Without a cookie source only
			// whoami is served.
			r.Route("/system/session", func(r chi.Router) {
				names := s.cookieNames()
				if len(names) == 0 {
					r.Get("/", handler.NewSystemHandler(s.cookies, "", s.logger).Whoami)
					return
				}
				sysHandler := handler.NewSystemHandler(s.cookies, names[0], s.logger)
				r.Get("/", sysHandler.Whoami)
				r.Delete("/", sysHandler.Logout)
				r.With(middleware.RequireToken()).Post("/", sysHandler.Login)
			})

			// Remote methods of every registered model
			r.Route("/{model}", func(r chi.Router) {
				remoteHandler := handler.NewRemoteHandler(s.dispatcher, s.logger)

				r.Get("/", remoteHandler.Find)
				r.Post("/", remoteHandler.Create)
				r.Get("/count", remoteHandler.Count)
				r.Post("/invoke/{method}", remoteHandler.Invoke)
				r.Get("/{id}", remoteHandler.FindByID)
				r.Get("/{id}/exists", remoteHandler.Exists)
				r.Patch("/{id}", remoteHandler.UpdateByID)
				r.Delete("/{id}", remoteHandler.DeleteByID)
			})
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the store is reachable,
// or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{"store": "ok"}

	if err := s.store.Ping(r.Context()); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
		"models": len(s.registry.Models()),
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Warn("store close failed", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Tokens returns the token service used to resolve callers.
func (s *Server) Tokens() *service.TokenService {
	return s.tokens
}

// Dispatcher returns the dispatcher that authorizes and runs remote calls.
func (s *Server) Dispatcher() *remote.Dispatcher {
	return s.dispatcher
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
