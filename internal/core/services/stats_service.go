package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lorrc/issues-insights-backend/internal/core/domain"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
	"github.com/lorrc/issues-insights-backend/internal/infrastructure/logging"
)

// StatsConfig controls how days are cut and how long snapshots are kept.
type StatsConfig struct {
	// Location decides which calendar day "today" is. Defaults to UTC.
	Location *time.Location
	// RetentionDays keeps this many days of snapshots; zero disables pruning.
	RetentionDays int
}

// StatsService maintains and reads the daily aggregate.
type StatsService struct {
	repo   ports.StatsRepository
	clock  clockwork.Clock
	cfg    StatsConfig
	logger *slog.Logger
}

var _ ports.StatsService = (*StatsService)(nil)

// NewStatsService creates a new stats service.
func NewStatsService(repo ports.StatsRepository, clock clockwork.Clock, cfg StatsConfig, logger *slog.Logger) *StatsService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &StatsService{
		repo:   repo,
		clock:  clock,
		cfg:    cfg,
		logger: logger.With("component", "stats_service"),
	}
}

func (s *StatsService) today() time.Time {
	return domain.DayStart(s.clock.Now().In(s.cfg.Location))
}

// Recompute rebuilds today's snapshot from the issues table.
func (s *StatsService) Recompute(ctx context.Context) (*domain.DailyStats, error) {
	logger := logging.LoggerFromContext(ctx, s.logger)
	today := s.today()

	stats, err := s.repo.RecomputeDaily(ctx, today)
	if err != nil {
		return nil, err
	}

	logger.Info("daily stats updated",
		"date", today.Format(time.DateOnly),
		"total_issues", stats.TotalIssues,
		"created_today", stats.CreatedToday,
		"closed_today", stats.ClosedToday,
	)
	return stats, nil
}

// History returns the snapshots of the last days days, newest first.
// Non-positive windows select the default; larger ones are capped.
func (s *StatsService) History(ctx context.Context, days int) ([]*domain.DailyStats, error) {
	switch {
	case days <= 0:
		days = domain.DefaultHistoryDays
	case days > domain.MaxHistoryDays:
		days = domain.MaxHistoryDays
	}

	to := s.today()
	from := to.AddDate(0, 0, -days)
	return s.repo.ListDaily(ctx, from, to)
}

// Prune deletes snapshots older than the retention window.
func (s *StatsService) Prune(ctx context.Context) (int64, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}

	cutoff := s.today().AddDate(0, 0, -s.cfg.RetentionDays)
	pruned, err := s.repo.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	logging.LoggerFromContext(ctx, s.logger).Info("old daily stats pruned",
		"before", cutoff.Format(time.DateOnly),
		"deleted", pruned,
	)
	return pruned, nil
}
