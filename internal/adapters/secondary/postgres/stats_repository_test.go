package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/lorrc/issues-insights-backend/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStatsRepo is a helper to create a clean repository for a test.
func newTestStatsRepo(t *testing.T) *StatsRepository {
	t.Helper()
	resetTables(t)
	return NewStatsRepository(testPool)
}

func insertIssue(t *testing.T, status domain.IssueStatus, severity domain.IssueSeverity, createdAt, updatedAt time.Time) {
	t.Helper()
	const query = `
INSERT INTO issues (title, status, severity, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
`
	_, err := testPool.Exec(context.Background(), query, "issue", string(status), string(severity), createdAt, updatedAt)
	require.NoError(t, err, "Failed to insert issue")
}

func TestStatsRepository_RecomputeDaily(t *testing.T) {
	ctx := context.Background()
	repo := newTestStatsRepo(t)

	day := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	yesterday := day.AddDate(0, 0, -1)

	insertIssue(t, domain.StatusOpen, domain.SeverityLow, day, day)
	insertIssue(t, domain.StatusOpen, domain.SeverityHigh, yesterday, yesterday)
	insertIssue(t, domain.StatusTriaged, domain.SeverityMedium, yesterday, day)
	insertIssue(t, domain.StatusDone, domain.SeverityCritical, yesterday, day)
	insertIssue(t, domain.StatusDone, domain.SeverityCritical, yesterday, yesterday)

	stats, err := repo.RecomputeDaily(ctx, day)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.OpenCount)
	assert.Equal(t, int64(1), stats.TriagedCount)
	assert.Equal(t, int64(0), stats.InProgressCount)
	assert.Equal(t, int64(2), stats.DoneCount)

	assert.Equal(t, int64(1), stats.LowCount)
	assert.Equal(t, int64(1), stats.MediumCount)
	assert.Equal(t, int64(1), stats.HighCount)
	assert.Equal(t, int64(2), stats.CriticalCount)

	assert.Equal(t, int64(5), stats.TotalIssues)
	assert.Equal(t, int64(1), stats.CreatedToday)
	assert.Equal(t, int64(1), stats.ClosedToday)
	assert.False(t, stats.UpdatedAt.IsZero())
}

func TestStatsRepository_RecomputeDaily_Upserts(t *testing.T) {
	ctx := context.Background()
	repo := newTestStatsRepo(t)

	day := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)

	insertIssue(t, domain.StatusOpen, domain.SeverityLow, day, day)
	_, err := repo.RecomputeDaily(ctx, day)
	require.NoError(t, err)

	insertIssue(t, domain.StatusOpen, domain.SeverityLow, day, day)
	_, err = repo.RecomputeDaily(ctx, day.Add(time.Hour))
	require.NoError(t, err)

	history, err := repo.ListDaily(ctx, day, day)
	require.NoError(t, err)
	require.Len(t, history, 1, "one row per day")
	assert.Equal(t, int64(2), history[0].TotalIssues)
	assert.Equal(t, int64(2), history[0].CreatedToday)
}

func TestStatsRepository_ListDailyAndPrune(t *testing.T) {
	ctx := context.Background()
	repo := newTestStatsRepo(t)

	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := repo.RecomputeDaily(ctx, base.AddDate(0, 0, -i))
		require.NoError(t, err)
	}

	history, err := repo.ListDaily(ctx, base.AddDate(0, 0, -2), base)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "2024-05-10", history[0].Day.Format(time.DateOnly), "newest first")
	assert.Equal(t, "2024-05-08", history[2].Day.Format(time.DateOnly))

	pruned, err := repo.PruneBefore(ctx, base.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, int64(3), pruned)

	remaining, err := repo.ListDaily(ctx, base.AddDate(0, 0, -30), base)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestStatsRepository_ListDaily_Empty(t *testing.T) {
	ctx := context.Background()
	repo := newTestStatsRepo(t)

	history, err := repo.ListDaily(ctx, time.Now().AddDate(0, 0, -7), time.Now())
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}
