// Package server is the composition root: it wires the cache, the session
// provider, the identity synchronizer, the post store, and the HTTP surface,
// and owns the listen/shutdown lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/rafid/crosspost/internal/auth"
	"github.com/rafid/crosspost/internal/cache"
	"github.com/rafid/crosspost/internal/config"
	"github.com/rafid/crosspost/internal/handler"
	"github.com/rafid/crosspost/internal/identity"
	"github.com/rafid/crosspost/internal/middleware"
	"github.com/rafid/crosspost/internal/platform/instagram"
	"github.com/rafid/crosspost/internal/post"
	"github.com/rafid/crosspost/internal/provider"
	"github.com/rafid/crosspost/internal/provider/local"
)

// Server bundles the router with the resources it owns. The cache database
// and the provider are closed on shutdown.
type Server struct {
	router   *chi.Mux
	cfg      *config.Config
	logger   *slog.Logger
	cacheDB  *cache.DB
	sessions *local.Provider
	identity *identity.Synchronizer
}

// New assembles the full dependency chain. Everything below the handlers is
// constructed here and nowhere else.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	cacheDB, err := cache.New(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	var registry *provider.OAuthRegistry
	if len(cfg.OAuth.Apps) > 0 {
		creds := make(map[string]provider.OAuthCredentials, len(cfg.OAuth.Apps))
		for name, app := range cfg.OAuth.Apps {
			creds[name] = provider.OAuthCredentials{
				ClientID:     app.ID,
				ClientSecret: app.Secret,
			}
		}
		registry, err = provider.NewOAuthRegistry(cfg.OAuth.Callback, creds)
		if err != nil {
			cacheDB.Close()
			return nil, fmt.Errorf("building oauth registry: %w", err)
		}
	}

	sessions, err := local.New(local.Options{
		DBPath:    cfg.Auth.DBPath,
		Tokens:    tokens,
		Passwords: auth.NewPasswordService(),
		OAuth:     registry,
		Logger:    logger,
	})
	if err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("opening session provider: %w", err)
	}

	sync := identity.New(sessions, cache.NewIdentityMirror(cacheDB, logger), logger)

	store, err := post.New(context.Background(), post.Options{
		Archive: cache.NewPostArchive(cacheDB, logger),
		Logger:  logger,
	})
	if err != nil {
		sessions.Close()
		cacheDB.Close()
		return nil, fmt.Errorf("building post store: %w", err)
	}

	exchanger := instagram.New(instagram.Options{
		Endpoint: cfg.Instagram.ExchangeEndpoint,
		Tokens:   cache.NewPlatformTokens(cacheDB),
		Logger:   logger,
	})

	s := &Server{
		router:   chi.NewRouter(),
		cfg:      cfg,
		logger:   logger,
		cacheDB:  cacheDB,
		sessions: sessions,
		identity: sync,
	}
	s.setupRoutes(handler.NewAuthHandler(sync, exchanger, logger), handler.NewPostHandler(store, logger))
	return s, nil
}

// Router exposes the handler chain, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(authH *handler.AuthHandler, postH *handler.PostHandler) {
	s.router.Use(middleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	credentialLimit := middleware.NewRateLimiter(rate.Limit(s.cfg.RateLimit.PerSecond), s.cfg.RateLimit.Burst)

	s.router.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(credentialLimit.Handler)
			r.Post("/login", authH.HandleLogin)
			r.Post("/register", authH.HandleRegister)
		})
		r.Post("/logout", authH.HandleLogout)
		r.Get("/me", authH.HandleMe)
		r.Get("/callback", authH.HandleOAuthCallback)
		r.Get("/{provider}", authH.HandleOAuthStart)
	})

	s.router.Route("/posts", func(r chi.Router) {
		r.Post("/", postH.HandleCreate)
		r.Get("/", postH.HandleList)
		r.Get("/upcoming", postH.HandleUpcoming)
		r.Get("/stats", postH.HandleStats)
		r.Get("/{id}", postH.HandleGet)
		r.Patch("/{id}", postH.HandleUpdate)
		r.Delete("/{id}", postH.HandleDelete)
	})
}

// Start brings the identity state up, then listens until a signal or a
// server error arrives. In-flight requests get 30 seconds to drain.
func (s *Server) Start() error {
	defer s.cacheDB.Close()
	defer s.sessions.Close()
	defer s.identity.Close()

	// Resolve the startup identity before accepting traffic so the first
	// /auth/me never observes the bootstrapping state.
	s.identity.Bootstrap(context.Background())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.HTTP.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  s.cfg.HTTP.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.HTTP.Port),
			slog.String("cache", s.cfg.Cache.Path),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	s.logger.Info("server stopped")
	return nil
}
