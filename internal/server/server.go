// Package server provides the HTTP server and routing for Pecule.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"monpecule/internal/config"
	"monpecule/internal/database"
	"monpecule/internal/jobs"
	"monpecule/internal/modules/analysis"
	"monpecule/internal/modules/identity"
	"monpecule/internal/modules/monthly"
	"monpecule/internal/modules/positions"
	"monpecule/internal/modules/quotes"
	"monpecule/internal/modules/refresh"
	"monpecule/internal/modules/valuation"
	"monpecule/internal/reliability"
)

// Config holds everything the server needs.
type Config struct {
	Log         zerolog.Logger
	Cfg         *config.Config
	PortfolioDB *database.DB
	CacheDB     *database.DB

	Identity    *identity.Service
	IdentityRepo *identity.Repository
	Positions   *positions.Repository
	Resolver    *quotes.Resolver
	Valuation   *valuation.Engine
	Monthly     *monthly.Accumulator
	Refresh     *refresh.Orchestrator
	Analysis    *analysis.Service
	Jobs        *jobs.Runner
	Backup      *reliability.BackupService // nil when not configured
}

// Server is the HTTP front of the application.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
	system *SystemHandlers
}

// New creates the server and mounts all routes.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("service", "server").Logger(),
		cfg:    cfg,
		system: NewSystemHandlers(cfg.Log, cfg.Cfg.DataDir, cfg.PortfolioDB, cfg.CacheDB),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		// Public authentication surface
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)

		// Session-scoped surface
		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)
			r.Post("/logout", s.handleLogout)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/search_ticker/{query}", s.handleSearchTicker)
			r.Post("/update_prices", s.handleUpdatePrices)
			r.Get("/analysis", s.handleAnalysis)
			r.Get("/jobs/{id}", s.handleJobStatus)

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", s.handleListAccounts)
				r.Post("/", s.handleCreateAccount)
				r.Put("/{id}", s.handleRenameAccount)
				r.Delete("/{id}", s.handleDeleteAccount)
			})
			r.Route("/positions", func(r chi.Router) {
				r.Get("/", s.handleListPositions)
				r.Post("/", s.handleCreatePosition)
				r.Put("/{id}", s.handleUpdatePosition)
				r.Delete("/{id}", s.handleDeletePosition)
				r.Get("/{id}/history", s.handlePositionHistory)
			})
		})

		// Token-guarded administrative surface
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Post("/refresh", s.handleAdminRefresh)
			r.Post("/monthly_reset", s.handleAdminMonthlyReset)
			r.Post("/analysis/refresh", s.handleAdminAnalysisRefresh)
			r.Post("/backup", s.handleAdminBackup)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.system.HandleHealth)
			r.Get("/status", s.system.HandleStatus)
		})
	})
}

// Start begins listening. Blocks until the listener fails or Shutdown
// runs.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
