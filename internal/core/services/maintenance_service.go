package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lorrc/issues-insights-backend/internal/core/ports"
	"github.com/lorrc/issues-insights-backend/internal/infrastructure/logging"
)

const defaultPingTimeout = 5 * time.Second

// MaintenanceService holds the bodies of the housekeeping jobs.
type MaintenanceService struct {
	stats       ports.StatsService
	db          ports.HealthChecker
	connections ports.ConnectionCounter
	pingTimeout time.Duration
	logger      *slog.Logger
}

// NewMaintenanceService creates a new maintenance service.
func NewMaintenanceService(
	stats ports.StatsService,
	db ports.HealthChecker,
	connections ports.ConnectionCounter,
	pingTimeout time.Duration,
	logger *slog.Logger,
) *MaintenanceService {
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}
	return &MaintenanceService{
		stats:       stats,
		db:          db,
		connections: connections,
		pingTimeout: pingTimeout,
		logger:      logger.With("component", "maintenance"),
	}
}

// UpdateStats recomputes today's aggregate.
func (s *MaintenanceService) UpdateStats(ctx context.Context) error {
	_, err := s.stats.Recompute(ctx)
	return err
}

// DailyCleanup refreshes today's aggregate, prunes expired snapshots and
// reports the live connection count. Every step runs even if an earlier one
// failed.
func (s *MaintenanceService) DailyCleanup(ctx context.Context) error {
	logger := logging.LoggerFromContext(ctx, s.logger)
	var errs []error

	if _, err := s.stats.Recompute(ctx); err != nil {
		errs = append(errs, fmt.Errorf("recompute stats: %w", err))
	}

	pruned, err := s.stats.Prune(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("prune stats: %w", err))
	}

	logger.Info("daily cleanup finished",
		"pruned_snapshots", pruned,
		"active_connections", s.connections.Count(),
		"errors", len(errs),
	)
	return errors.Join(errs...)
}

// HealthProbe pings the database. A failure is returned to the caller and
// never escalated further.
func (s *MaintenanceService) HealthProbe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}

	logging.LoggerFromContext(ctx, s.logger).Debug("database health check passed")
	return nil
}
