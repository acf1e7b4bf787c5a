package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	httpAdapter "github.com/lorrc/issues-insights-backend/internal/adapters/primary/http"
	mw "github.com/lorrc/issues-insights-backend/internal/adapters/primary/http/middleware"
	"github.com/lorrc/issues-insights-backend/internal/adapters/primary/websocket"
	"github.com/lorrc/issues-insights-backend/internal/adapters/secondary/postgres"
	"github.com/lorrc/issues-insights-backend/internal/auth"
	"github.com/lorrc/issues-insights-backend/internal/config"
	"github.com/lorrc/issues-insights-backend/internal/core/services"
	"github.com/lorrc/issues-insights-backend/internal/infrastructure/logging"
	"github.com/lorrc/issues-insights-backend/internal/infrastructure/metrics"
	"github.com/lorrc/issues-insights-backend/internal/infrastructure/scheduler"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	clock := clockwork.NewRealClock()

	// Background components stop when ctx is cancelled.
	ctx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	// 3. Initialize Database Pool
	if cfg.Database.AutoMigrate {
		version, err := postgres.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath)
		if err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database migrated", "version", version)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established")

	// 4. Metrics
	registry := metrics.NewRegistry()
	realtimeMetrics := metrics.NewRealtimeMetrics(registry)
	schedulerMetrics := metrics.NewSchedulerMetrics(registry)

	// 5. Real-time Components
	connections := websocket.NewRegistry(realtimeMetrics, logger)
	broadcaster := websocket.NewBroadcaster(connections, websocket.BroadcasterConfig{
		SendTimeout: cfg.WebSocket.SendTimeout,
		QueueSize:   cfg.WebSocket.EventBuffer,
		Parallelism: cfg.WebSocket.Parallelism,
	}, realtimeMetrics, logger)
	go broadcaster.Run(ctx)

	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)

	// 6. Dependency Injection (Wiring the Hexagon)
	statsRepo := postgres.NewStatsRepository(pool)

	notificationService := services.NewNotificationService(broadcaster, clock)
	statsService := services.NewStatsService(statsRepo, clock, services.StatsConfig{
		Location:      cfg.Location(),
		RetentionDays: cfg.Scheduler.RetentionDays,
	}, logger)
	maintenanceService := services.NewMaintenanceService(
		statsService, pool, connections, cfg.Scheduler.HealthTimeout, logger,
	)

	// 7. Scheduler
	jobs := scheduler.New(clock, schedulerMetrics, logger)
	if err := registerJobs(jobs, cfg, maintenanceService); err != nil {
		logger.Error("failed to register jobs", "error", err)
		os.Exit(1)
	}
	if err := jobs.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// 8. Handlers (Primary Adapters)
	errorHandler := httpAdapter.NewErrorHandler(logger)
	wsHandler := httpAdapter.NewWebSocketHandler(connections, tokenManager, cfg, clock, realtimeMetrics, logger)
	healthHandler := httpAdapter.NewHealthHandler(pool, jobs, connections, clock, cfg.App.Version)
	statsHandler := httpAdapter.NewStatsHandler(statsService, errorHandler)
	eventsHandler := httpAdapter.NewEventsHandler(notificationService, errorHandler)
	jobsHandler := httpAdapter.NewJobsHandler(jobs, errorHandler)

	// 9. Rate Limiters
	var generalRateLimiter, handshakeRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		general := mw.DefaultRateLimiterConfig()
		general.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		general.BurstSize = cfg.RateLimit.BurstSize
		generalRateLimiter = mw.NewRateLimiter(ctx, general, clock)

		handshake := mw.HandshakeRateLimiterConfig()
		handshake.RequestsPerSecond = cfg.RateLimit.HandshakeRPS
		handshake.BurstSize = cfg.RateLimit.HandshakeBurst
		handshakeRateLimiter = mw.NewRateLimiter(ctx, handshake, clock).
			OnReject(func(*http.Request) {
				realtimeMetrics.HandshakeRejected.WithLabelValues("rate_limited").Inc()
			})
	}

	// 10. Setup Router
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger, "/health", "/health/live", "/health/ready", cfg.Metrics.Path))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(cors.Handler(corsOptions(cfg)))

	// Health and metrics stay outside the limiter so probes are never refused.
	healthHandler.RegisterRoutes(r)
	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, metrics.Handler(registry))
	}

	// WebSocket route (Authentication is handled inside the handler)
	r.Group(func(r chi.Router) {
		if handshakeRateLimiter != nil {
			r.Use(handshakeRateLimiter.Middleware)
		}
		r.Get("/ws", wsHandler.ServeHTTP)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if generalRateLimiter != nil {
			r.Use(generalRateLimiter.Middleware)
		}

		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(tokenManager))
			statsHandler.RegisterRoutes(r)
			eventsHandler.RegisterRoutes(r)
			r.Route("/jobs", jobsHandler.RegisterRoutes)
		})
	})

	// 11. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests first; hijacked WebSocket connections are
	// closed explicitly below.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		exitCode = 1
	}

	graceCtx, cancelGrace := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownGrace)
	defer cancelGrace()
	if err := jobs.Stop(graceCtx); err != nil {
		logger.Warn("scheduler did not stop cleanly", "error", err)
	}

	cancelBackground()
	connections.CloseAll()

	logger.Info("server shutdown complete")
	if exitCode != 0 {
		pool.Close()
		os.Exit(exitCode)
	}
}

func registerJobs(s *scheduler.Scheduler, cfg *config.Config, maintenance *services.MaintenanceService) error {
	cleanupAt, err := scheduler.ParseCalendar(cfg.Scheduler.CleanupAt, cfg.Location())
	if err != nil {
		return err
	}

	jobs := []scheduler.Job{
		{
			Name:    "update_stats",
			Trigger: scheduler.Interval{Every: cfg.Scheduler.StatsInterval},
			Run:     maintenance.UpdateStats,
			Timeout: cfg.Scheduler.StatsTimeout,
		},
		{
			Name:    "daily_cleanup",
			Trigger: cleanupAt,
			Run:     maintenance.DailyCleanup,
		},
		{
			Name:    "health_check",
			Trigger: scheduler.Interval{Every: cfg.Scheduler.HealthInterval},
			Run:     maintenance.HealthProbe,
		},
	}

	for _, job := range jobs {
		if err := s.Register(job); err != nil {
			return err
		}
	}
	return nil
}

func corsOptions(cfg *config.Config) cors.Options {
	origins := cfg.WebSocket.AllowedOrigins
	if cfg.IsDevelopment() || len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}
}
