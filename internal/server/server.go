// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware, and routes.
// It decides:
// - Which store backs the API (SQLite or Badger)
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config → store, bus → auth.Builder, services → schema → graph.Executor → handlers
//
// This is the "composition root" pattern: all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/photo-share/internal/auth"
	"github.com/sakif/photo-share/internal/config"
	"github.com/sakif/photo-share/internal/graph"
	"github.com/sakif/photo-share/internal/handler"
	"github.com/sakif/photo-share/internal/middleware"
	"github.com/sakif/photo-share/internal/pubsub"
	"github.com/sakif/photo-share/internal/querygate"
	"github.com/sakif/photo-share/internal/randomuser"
	"github.com/sakif/photo-share/internal/repository"
	"github.com/sakif/photo-share/internal/repository/badgerstore"
	sqliteRepo "github.com/sakif/photo-share/internal/repository/sqlite"
	"github.com/sakif/photo-share/internal/service"
)

const (
	shutdownTimeout     = 30 * time.Second
	upstreamHTTPTimeout = 10 * time.Second
	limiterSweepEvery   = time.Minute
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store and the event bus. Start closes both after the
// HTTP server has drained, so no request ever sees a closed store.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	store   repository.Store
	bus     *pubsub.Bus
	limiter *middleware.RateLimiter
}

// New opens the store and wires every component.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		bus:     pubsub.New(logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger),
	}

	if err := s.setupRoutes(); err != nil {
		store.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// openStore picks the Persistence Adapter named by database.driver.
func openStore(cfg config.DatabaseConfig) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverBadger:
		// An empty path runs Badger in memory.
		if cfg.Path != "" {
			if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
				return nil, err
			}
		}
		return badgerstore.Open(cfg.Path)
	default:
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, err
			}
		}
		return sqliteRepo.New(cfg.Path)
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the bus and the store of a Server that was never started.
func (s *Server) Close() error {
	s.bus.Close()
	return s.store.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET       /                      → welcome text
// GET       /healthz               → store reachability
// GET       /playground            → GraphiQL
// GET       /img/photos/*          → photo files
// GET/POST  /graphql               → queries and mutations (HTTP)
// GET       /graphql  (Upgrade)    → subscriptions (graphql-ws)
// GET       /auth/github/login     → redirect to GitHub      (when configured)
// GET       /auth/github/callback  → finish the OAuth flow   (when configured)
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers (the rate limiter keys on it)
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger: logs each request with timing info
//
// The request timeout wraps only the HTTP half of /graphql. A WebSocket
// lives as long as the client keeps it open.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// === Services ===
	github := auth.NewGitHubProvider(auth.WithRedirectURL(s.config.GitHub.CallbackURL))
	faker := randomuser.New(s.config.RandomUser.URL, &http.Client{Timeout: upstreamHTTPTimeout})
	authService := service.NewAuthService(github, faker, service.OAuthApp{
		ClientID:     s.config.GitHub.ClientID,
		ClientSecret: s.config.GitHub.ClientSecret,
	}, s.logger)

	schema, err := graph.NewSchema(graph.SchemaConfig{
		Auth:         authService,
		Photos:       service.NewPhotoService(s.logger),
		Users:        service.NewUserService(s.logger),
		FakeUserAuth: s.config.Auth.FakeUsers,
	})
	if err != nil {
		return fmt.Errorf("building schema: %w", err)
	}
	gate := querygate.New(s.config.Query.MaxDepth, s.config.Query.MaxComplexity)
	exec := graph.NewExecutor(schema, gate, s.logger)
	builder := auth.NewBuilder(s.store, s.bus, s.logger)

	// === Pages ===
	playground, err := handler.NewPlaygroundHandler("/graphql", s.logger)
	if err != nil {
		return fmt.Errorf("creating playground handler: %w", err)
	}
	s.router.Get("/", handler.HandleHome)
	s.router.Get("/healthz", handler.NewHealthHandler(s.store, s.logger).HandleHealth)
	s.router.Get("/playground", playground.HandlePlayground)

	// http.StripPrefix removes "/img/photos/" so GET /img/photos/abc.jpg
	// serves {PhotoDir}/abc.jpg.
	photos := http.FileServer(http.Dir(s.config.Server.PhotoDir))
	s.router.Handle("/img/photos/*", http.StripPrefix("/img/photos/", photos))

	// === GraphQL ===
	plain := chi.Chain(
		chimiddleware.Timeout(s.config.Server.RequestTimeout),
		auth.Middleware(builder, s.logger),
	).Handler(handler.NewGraphQLHandler(exec, s.logger))
	subscriptions := handler.NewSubscriptionHandler(exec, builder, handler.DefaultKeepAlive, s.logger)
	s.router.With(s.limiter.Middleware).Handle("/graphql", handler.Upgrade(subscriptions, plain))

	// === OAuth redirect helper ===
	if !s.config.OAuthRoutesEnabled() {
		s.logger.Warn("auth.stateSecret or github.clientID not set, /auth/github routes are disabled")
		return nil
	}
	states, err := auth.NewStateTokens(s.config.Auth.StateSecret)
	if err != nil {
		return fmt.Errorf("creating state tokens: %w", err)
	}
	authHandler := handler.NewAuthHandler(github, states, authService, s.config.GitHub.ClientID, s.logger)
	s.router.Route("/auth/github", func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Use(auth.Middleware(builder, s.logger))
		r.Get("/login", authHandler.HandleGitHubLogin)
		r.Get("/callback", authHandler.HandleGitHubCallback)
	})
	return nil
}

// Start serves until ctx ends, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections and wait for in-flight requests (30s)
//  2. Close the event bus, which ends every open subscription
//  3. Close the store (flushes WAL / Badger value log)
//
// Open WebSockets are not tracked by http.Server.Shutdown. They are ended
// through BaseContext instead: every request context derives from ctx, so
// cancelling ctx cancels the sockets too.
//
// WHY errgroup?
// Serving, shutting down and sweeping the rate limiter run side by side.
// errgroup starts them together, and the first one to fail cancels the
// shared context, which stops the others.
func (s *Server) Start(ctx context.Context) error {
	defer s.store.Close()

	g, ctx := errgroup.WithContext(ctx)
	base := func(net.Listener) context.Context { return ctx }

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  base,
	}
	servers := []*http.Server{srv}

	serve := srv.ListenAndServe
	if host := s.config.Server.AutocertHost; host != "" {
		manager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(host),
			Cache:      autocert.DirCache(s.config.Server.AutocertCacheDir),
		}
		srv.Addr = ":443"
		srv.TLSConfig = manager.TLSConfig()
		serve = func() error { return srv.ListenAndServeTLS("", "") }

		// Port 80 answers ACME HTTP-01 challenges and redirects the rest.
		challenge := &http.Server{
			Addr:        ":80",
			Handler:     manager.HTTPHandler(nil),
			ReadTimeout: 15 * time.Second,
			BaseContext: base,
		}
		servers = append(servers, challenge)
		g.Go(func() error { return ignoreClosed(challenge.ListenAndServe()) })
	}

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("driver", s.config.Database.Driver),
			slog.String("database", s.config.Database.Path),
			slog.Bool("tls", srv.TLSConfig != nil),
		)
		return ignoreClosed(serve())
	})

	g.Go(func() error {
		return s.limiter.Run(ctx, limiterSweepEvery)
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, hs := range servers {
			if err := hs.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("graceful shutdown of %s failed: %w", hs.Addr, err))
			}
		}
		s.bus.Close()
		s.logger.Info("server stopped", slog.Int64("droppedEvents", s.bus.Dropped()))
		return errors.Join(errs...)
	})

	return g.Wait()
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
