package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lorrc/issues-insights-backend/internal/core/domain"
	"github.com/lorrc/issues-insights-backend/internal/core/mocks"
	"github.com/lorrc/issues-insights-backend/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type maintenanceFixture struct {
	stats *mocks.MockStatsService
	db    *mocks.MockHealthChecker
	conns *mocks.MockConnectionCounter
	svc   *services.MaintenanceService
}

func newMaintenanceFixture() maintenanceFixture {
	f := maintenanceFixture{
		stats: mocks.NewMockStatsService(),
		db:    mocks.NewMockHealthChecker(),
		conns: mocks.NewMockConnectionCounter(),
	}
	f.svc = services.NewMaintenanceService(f.stats, f.db, f.conns, time.Second, discardLogger())
	return f
}

func TestMaintenanceService_DailyCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newMaintenanceFixture()
		f.stats.On("Recompute", ctx).Return(&domain.DailyStats{}, nil)
		f.stats.On("Prune", ctx).Return(int64(2), nil)
		f.conns.On("Count").Return(5)

		require.NoError(t, f.svc.DailyCleanup(ctx))

		f.stats.AssertExpectations(t)
		f.conns.AssertExpectations(t)
	})

	t.Run("keeps going after a failed step", func(t *testing.T) {
		f := newMaintenanceFixture()
		recomputeErr := errors.New("recompute failed")
		pruneErr := errors.New("prune failed")

		f.stats.On("Recompute", ctx).Return(nil, recomputeErr)
		f.stats.On("Prune", ctx).Return(int64(0), pruneErr)
		f.conns.On("Count").Return(0)

		err := f.svc.DailyCleanup(ctx)

		require.Error(t, err)
		assert.ErrorIs(t, err, recomputeErr)
		assert.ErrorIs(t, err, pruneErr)
		f.stats.AssertExpectations(t)
	})
}

func TestMaintenanceService_UpdateStats(t *testing.T) {
	ctx := context.Background()
	f := newMaintenanceFixture()

	f.stats.On("Recompute", ctx).Return(&domain.DailyStats{TotalIssues: 1}, nil)

	require.NoError(t, f.svc.UpdateStats(ctx))
	f.stats.AssertExpectations(t)
}

func TestMaintenanceService_HealthProbe(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		f := newMaintenanceFixture()
		f.db.On("Ping", mock.Anything).Return(nil)

		assert.NoError(t, f.svc.HealthProbe(ctx))
	})

	t.Run("unreachable database", func(t *testing.T) {
		f := newMaintenanceFixture()
		pingErr := errors.New("dial tcp: connection refused")
		f.db.On("Ping", mock.Anything).Return(pingErr)

		err := f.svc.HealthProbe(ctx)

		assert.ErrorIs(t, err, pingErr)
		assert.Contains(t, err.Error(), "database health check")
	})

	t.Run("ping is bounded", func(t *testing.T) {
		f := newMaintenanceFixture()
		f.db.On("Ping", mock.MatchedBy(func(ctx context.Context) bool {
			_, ok := ctx.Deadline()
			return ok
		})).Return(nil)

		require.NoError(t, f.svc.HealthProbe(ctx))
		f.db.AssertExpectations(t)
	})
}
