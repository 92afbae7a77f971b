package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/liamcoop/selection/internal/config"
	"github.com/liamcoop/selection/internal/logger"
	"github.com/liamcoop/selection/multitenantengine"
	"github.com/liamcoop/selection/rules"
)

type Server struct {
	cfg     *config.Config
	manager *multitenantengine.MultiTenantEngineManager
	router  *chi.Mux
}

// NewServer serves the tenants held by manager
func NewServer(cfg *config.Config, manager *multitenantengine.MultiTenantEngineManager) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
	}
	s.setupRoutes()
	return s
}

// NewServerWithDB builds a manager on Postgres and loads every tenant
func NewServerWithDB(cfg *config.Config, db *sql.DB) (*Server, error) {
	env, err := rules.NewCELEnv(cfg.CELCostLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	manager := multitenantengine.NewMultiTenantEngineManager(
		multitenantengine.NewPostgresBackend(db),
		env,
		multitenantengine.WithCacheTTL(cfg.RuleCacheTTL),
	)

	logger.Info("loading tenants from database")
	if err := manager.LoadAllTenants(); err != nil {
		return nil, fmt.Errorf("failed to load tenants: %w", err)
	}
	logger.Info("tenants ready", "tenants", manager.ListTenants())

	return NewServer(cfg, manager), nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Post("/select", s.handleSelect)

		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", s.handleListTenants)
			r.Post("/", s.handleCreateTenant)

			r.Route("/{tenantId}", func(r chi.Router) {
				r.Post("/schema", s.handleUpdateSchema)
				r.Get("/schema", s.handleGetSchema)

				r.Post("/rules", s.handleCreateRule)
				r.Get("/rules", s.handleListRules)
				r.Get("/rules/{ruleId}", s.handleGetRule)
				r.Put("/rules/{ruleId}", s.handleUpdateRule)
				r.Delete("/rules/{ruleId}", s.handleDeleteRule)

				r.Post("/candidates", s.handleAddCandidate)
				r.Get("/candidates", s.handleListCandidates)
				r.Delete("/candidates/{candidateId}", s.handleDeleteCandidate)
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each request and feeds the HTTP counters
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", elapsed,
			"requestId", middleware.GetReqID(r.Context()),
		}

		switch {
		case status >= 500:
			logger.ErrorHttp5xx()
		case status >= 400:
			logger.WarnHttp4xx(status)
		}

		if s.cfg.SlowRequest > 0 && elapsed > s.cfg.SlowRequest {
			logger.WarnSlowRequest()
			logger.Warn("slow request", args...)
			return
		}
		logger.Debug("request", args...)
	})
}

func main() {
	cfg, err := config.LoadDatabase()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open database", "error", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("failed to ping database", "error", err)
	}

	server, err := NewServerWithDB(cfg, db)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped", "metrics", logger.Snapshot())
}
