package ports

import (
	"context"
	"time"

	"github.com/lorrc/issues-insights-backend/internal/core/domain"
)

// StatsRepository persists the daily aggregate snapshot.
type StatsRepository interface {
	// RecomputeDaily derives the aggregate for day from the issues table and
	// upserts it in a single transaction.
	RecomputeDaily(ctx context.Context, day time.Time) (*domain.DailyStats, error)
	ListDaily(ctx context.Context, from, to time.Time) ([]*domain.DailyStats, error)
	PruneBefore(ctx context.Context, day time.Time) (int64, error)
}

// HealthChecker is anything that can prove a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
