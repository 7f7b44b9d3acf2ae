package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"gitea.com/go-chi/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/blogem/otel-poc/authenticator"
	"github.com/blogem/otel-poc/clients/codex"
	"github.com/blogem/otel-poc/clients/solr"
	"github.com/blogem/otel-poc/config"
	"github.com/blogem/otel-poc/controllers"
	"github.com/blogem/otel-poc/database"
	"github.com/blogem/otel-poc/jobs"
	"github.com/blogem/otel-poc/messaging"
	appmiddleware "github.com/blogem/otel-poc/middleware"
	"github.com/blogem/otel-poc/repositories"
	"github.com/blogem/otel-poc/services"
	"github.com/blogem/otel-poc/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting web application")

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Application terminated unexpectedly", zap.Error(err))
	}
}

// run starts the application and blocks until SIGINT or SIGTERM
func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewTracerProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return err
	}

	if cfg.Jobs.Enabled {
		a.scheduler.Start()
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr), zap.String("environment", cfg.Service.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case err = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(shutdownErr))
	}
	a.close(shutdownCtx)
	if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("Tracer provider shutdown failed", zap.Error(shutdownErr))
	}

	if err != nil {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// app holds everything newApp wired together
type app struct {
	router    http.Handler
	db        *sqlx.DB
	bus       messaging.Bus
	scheduler *jobs.Scheduler
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	cancel    context.CancelFunc
}

// newApp opens the database, connects the message bus, registers the
// recurring job and builds the router. Tracing must be installed before.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	metrics := telemetry.NewMetrics()

	db, err := database.Open(ctx, database.Options{
		Driver:         cfg.Database.Driver,
		DSN:            cfg.Database.DSN,
		RecreateSchema: cfg.Database.RecreateSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	repos := repositories.NewRepositories(db)

	// Consumers stop when the app context is cancelled in close
	appCtx, cancel := context.WithCancel(context.Background())

	bus, err := messaging.NewBus(ctx, cfg.Messaging, messaging.Options{Logger: logger, Metrics: metrics})
	if err != nil {
		cancel()
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize message bus: %w", err)
	}

	consumer := messaging.NewSomeMessageConsumer(logger, repos.Audit)
	if err := bus.Subscribe(appCtx, consumer.Consume); err != nil {
		cancel()
		_ = bus.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to subscribe consumer: %w", err)
	}

	codexClient := codex.NewClient(cfg.Codex.BaseURL, cfg.Codex.Timeout)

	var pinger solr.Pinger
	if cfg.Solr.URL != "" {
		pinger = solr.NewClient(cfg.Solr.URL, cfg.Solr.Timeout)
	}

	scheduler := jobs.NewScheduler(logger, metrics)
	job := jobs.NewSomeRecurringJob(codexClient, logger, cfg.Jobs.ThemaID)
	if err := scheduler.AddOrUpdate(jobs.SomeRecurringJobID, cfg.Jobs.Schedule, job); err != nil {
		cancel()
		_ = bus.Close()
		_ = db.Close()
		return nil, err
	}

	srvs := services.NewServices(repos, bus, pinger, logger, metrics)
	ctrl := controllers.NewControllers(srvs, controllers.Dependencies{
		Codex:     codexClient,
		DB:        db,
		Scheduler: scheduler,
		Audit:     repos.Audit,
		Logger:    logger,
	})

	var auth authenticator.Provider
	if cfg.Auth.OIDCEnabled() {
		auth, err = authenticator.NewOpenIDProvider(ctx, cfg.Auth)
		if err != nil {
			cancel()
			_ = bus.Close()
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize OpenID provider: %w", err)
		}
	}

	router, err := setupRouter(cfg, ctrl, auth, metrics, logger)
	if err != nil {
		cancel()
		_ = bus.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup router: %w", err)
	}

	return &app{
		router:    router,
		db:        db,
		bus:       bus,
		scheduler: scheduler,
		metrics:   metrics,
		logger:    logger,
		cancel:    cancel,
	}, nil
}

// close stops the scheduler, drains the bus and closes the database.
// Consumers keep their context while the bus drains, unless ctx expires first.
func (a *app) close(ctx context.Context) {
	if err := a.scheduler.Stop(ctx); err != nil {
		a.logger.Error("Scheduler did not stop in time", zap.Error(err))
	}

	closed := make(chan error, 1)
	go func() { closed <- a.bus.Close() }()

	var err error
	select {
	case err = <-closed:
	case <-ctx.Done():
		a.logger.Warn("Message bus did not drain in time, cancelling consumers")
		a.cancel()
		err = <-closed
	}
	a.cancel()
	if err != nil {
		a.logger.Error("Message bus close failed", zap.Error(err))
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("Database close failed", zap.Error(err))
	}
}

// setupRouter configures all routes. auth is nil when OpenID Connect is not configured.
func setupRouter(
	cfg *config.Config,
	ctrl *controllers.Controllers,
	auth authenticator.Provider,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) (*chi.Mux, error) {
	r := chi.NewRouter()

	r.Use(appmiddleware.RequestID)
	// Recoverer sits outside tracing, logging and metrics so they all see the panic first
	r.Use(appmiddleware.Recoverer(logger))
	if cfg.Server.TrustForwardedHeaders {
		r.Use(appmiddleware.ForwardedFor)
	}
	r.Use(appmiddleware.Tracing)
	r.Use(appmiddleware.RequestLogger(logger))
	r.Use(appmiddleware.Metrics(metrics))
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(middleware.Compress(5))

	// Session middleware
	sessionHandler, err := session.Sessioner(session.Options{
		Provider:    "memory",
		CookieName:  "otel_poc_session",
		Secure:      cfg.Auth.SecureCookie,
		Gclifetime:  3600,
		Maxlifetime: 3600,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	// PUBLIC ROUTES
	r.Get("/weatherforecast", ctrl.Weather.Get)
	r.Get("/thema/{id:-?[0-9]+}", ctrl.Thema.Get)
	r.Get("/health", ctrl.Health.Check)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	if cfg.IsDevelopment() {
		r.Get("/openapi/v1.json", ctrl.OpenAPI.Document)
	}

	// DASHBOARD ROUTES
	r.Group(func(r chi.Router) {
		r.Use(sessionHandler)

		if auth != nil {
			r.Get("/login", ctrl.Auth.Login(auth))
			r.Get("/callback", ctrl.Auth.Callback(auth))
			r.Get("/logout", ctrl.Auth.Logout)
		}

		r.Route("/hangfire", func(r chi.Router) {
			r.Use(appmiddleware.DashboardAccess(auth != nil))
			r.Get("/", ctrl.Dashboard.Index)
			r.Get("/audit/{id}", ctrl.Dashboard.AuditEntry)
			r.Post("/recurring/{id}/trigger", ctrl.Dashboard.Trigger)
		})
	})

	return r, nil
}
