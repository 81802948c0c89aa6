// Package server wires the marketplace together and runs it.
//
// This is the composition root: config → sqlite.DB → services → handlers →
// chi routes. Nothing below this package constructs its own dependencies.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/skillswap/internal/auth"
	"github.com/sakif/skillswap/internal/config"
	"github.com/sakif/skillswap/internal/handler"
	"github.com/sakif/skillswap/internal/middleware"
	"github.com/sakif/skillswap/internal/model"
	"github.com/sakif/skillswap/internal/relay"
	sqliteRepo "github.com/sakif/skillswap/internal/repository/sqlite"
	"github.com/sakif/skillswap/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server owns the database, the relay hub and the HTTP router.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	hub    *relay.Hub
	bus    relay.Bus // nil unless REDIS_ADDR is set

	authService *service.AuthService
}

// New opens the database, connects to Redis when configured, and builds
// the routes. The caller must call Start (which closes everything) or Close.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		hub:    relay.NewHub(logger),
	}

	if cfg.RedisAddr != "" {
		bus, err := relay.NewRedisBus(cfg.RedisAddr, cfg.RedisChannel, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connecting relay bus: %w", err)
		}
		s.bus = bus
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                         liveness (public)
//	POST   /auth/register|login|logout      password auth (public)
//	GET    /auth/github/login|callback      GitHub sign-in (when configured)
//	GET    /ws                              relay WebSocket
//	       /api/...                         JSON API
//
// Everything under /api and /ws runs RequireAuth → RequireActiveUser, so a
// banned member is refused everywhere except the public auth routes.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}

	// s.db implements every repository interface.
	s.authService = service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.logger)
	requestService := service.NewRequestService(s.db, s.db, s.db, s.hub, s.logger)
	enrollmentService := service.NewEnrollmentService(s.db, s.logger)
	ratingService := service.NewRatingService(s.db, s.db, s.logger)
	messageService := service.NewMessageService(s.db, s.db, s.logger)
	userService := service.NewUserService(s.db, s.hub, s.logger)

	authHandler := handler.NewAuthHandler(s.authService, github, tokens.TTL(), s.logger)
	swaps := handler.NewRequestHandler(model.KindSwap, requestService, s.logger)
	courses := handler.NewRequestHandler(model.KindCourse, requestService, s.logger)
	members := handler.NewMemberHandler(enrollmentService, ratingService, messageService, userService, s.logger)
	system := handler.NewSystemHandler(s.db, relay.NewServer(s.hub, s.db, s.config.AllowedOrigins, s.logger), s.logger)

	s.router.Get("/healthz", system.HandleHealthz)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		if github != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Use(auth.RequireActiveUser(s.db, s.logger))

		r.Get("/ws", system.HandleRelay)

		r.Route("/api", func(r chi.Router) {
			r.Get("/me", authHandler.HandleMe)
			r.Get("/users", members.HandleBrowse)
			r.Put("/users/profile", members.HandleUpdateProfile)

			r.Mount("/swaps", swaps.Routes())
			r.Mount("/course-requests", courses.Routes())

			r.Get("/enrollments", members.HandleListEnrollments)
			r.Patch("/enrollments/{id}", members.HandleUpdateEnrollment)

			r.Get("/ratings", members.HandleListRatings)
			r.Post("/ratings", members.HandleSubmitRating)

			r.Get("/messages", members.HandleListMessages)
			r.Post("/messages", members.HandleSendMessage)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Get("/users", members.HandleListAllUsers)
				r.Patch("/users/{id}", members.HandleSetBan)
			})
		})
	})

	return nil
}

// Start seeds the admin account, attaches the relay bus, and serves HTTP
// until ctx is cancelled. It then drains in-flight requests for up to 30s and
// closes the database and bus.
//
// GOROUTINES (errgroup):
//   - the HTTP listener
//   - the shutdown watcher, which calls srv.Shutdown once ctx is done
//
// If the listener fails, the group context is cancelled and the watcher
// returns too, so Start never hangs on a dead server.
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	if err := s.authService.SeedAdmin(ctx, s.config.SeedAdminEmail); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if s.bus != nil {
		if err := s.hub.AttachBus(gctx, s.bus); err != nil {
			return fmt.Errorf("attaching relay bus: %w", err)
		}
		s.logger.Info("relay bus attached", slog.String("redis", s.config.RedisAddr))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.Bool("github", s.config.GitHubEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

// Close releases the bus and the database.
func (s *Server) Close() error {
	var errs []error
	if s.bus != nil {
		errs = append(errs, s.bus.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}
