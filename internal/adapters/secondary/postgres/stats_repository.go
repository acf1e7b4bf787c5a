package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/issues-insights-backend/internal/core/domain"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
)

// StatsRepository is the secondary adapter for the daily aggregate.
type StatsRepository struct {
	pool *pgxpool.Pool
	tm   *TransactionManager
}

// Ensure StatsRepository implements the ports.StatsRepository interface.
var _ ports.StatsRepository = (*StatsRepository)(nil)

// NewStatsRepository creates a new stats repository.
func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{
		pool: pool,
		tm:   NewTransactionManager(pool),
	}
}

const statsColumns = `day, open_count, triaged_count, in_progress_count, done_count,
       low_count, medium_count, high_count, critical_count,
       total_issues, created_today, closed_today, updated_at`

// RecomputeDaily derives the aggregate for the calendar day containing day
// (in day's location) and upserts it. Reads and write share one transaction.
func (r *StatsRepository) RecomputeDaily(ctx context.Context, day time.Time) (*domain.DailyStats, error) {
	start := domain.DayStart(day)
	end := start.AddDate(0, 0, 1)

	stats := &domain.DailyStats{Day: start}

	err := r.tm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		ctx = ContextWithTx(ctx, tx)

		if err := r.fetchStatusCounts(ctx, stats); err != nil {
			return err
		}
		if err := r.fetchSeverityCounts(ctx, stats); err != nil {
			return err
		}
		if err := r.fetchTotals(ctx, stats, start, end); err != nil {
			return err
		}
		return r.upsert(ctx, stats)
	})
	if err != nil {
		return nil, fmt.Errorf("recompute daily stats for %s: %w", start.Format(time.DateOnly), err)
	}

	return stats, nil
}

func (r *StatsRepository) fetchStatusCounts(ctx context.Context, stats *domain.DailyStats) error {
	const query = `SELECT status, COUNT(*) FROM issues GROUP BY status`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return fmt.Errorf("count issues by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return err
		}
		stats.SetStatusCount(domain.IssueStatus(status), count)
	}
	return rows.Err()
}

func (r *StatsRepository) fetchSeverityCounts(ctx context.Context, stats *domain.DailyStats) error {
	const query = `SELECT severity, COUNT(*) FROM issues GROUP BY severity`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return fmt.Errorf("count issues by severity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			severity string
			count    int64
		)
		if err := rows.Scan(&severity, &count); err != nil {
			return err
		}
		stats.SetSeverityCount(domain.IssueSeverity(severity), count)
	}
	return rows.Err()
}

// fetchTotals counts issues created in [start, end) and issues that reached
// DONE in the same window, judged by their last update.
func (r *StatsRepository) fetchTotals(ctx context.Context, stats *domain.DailyStats, start, end time.Time) error {
	const query = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE created_at >= $1 AND created_at < $2),
       COUNT(*) FILTER (WHERE status = 'DONE' AND updated_at >= $1 AND updated_at < $2)
FROM issues
`

	err := GetDBTX(ctx, r.pool).QueryRow(ctx, query, start, end).
		Scan(&stats.TotalIssues, &stats.CreatedToday, &stats.ClosedToday)
	if err != nil {
		return fmt.Errorf("count issue totals: %w", err)
	}
	return nil
}

func (r *StatsRepository) upsert(ctx context.Context, stats *domain.DailyStats) error {
	const query = `
INSERT INTO daily_stats (` + statsColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
ON CONFLICT (day) DO UPDATE SET
    open_count        = EXCLUDED.open_count,
    triaged_count     = EXCLUDED.triaged_count,
    in_progress_count = EXCLUDED.in_progress_count,
    done_count        = EXCLUDED.done_count,
    low_count         = EXCLUDED.low_count,
    medium_count      = EXCLUDED.medium_count,
    high_count        = EXCLUDED.high_count,
    critical_count    = EXCLUDED.critical_count,
    total_issues      = EXCLUDED.total_issues,
    created_today     = EXCLUDED.created_today,
    closed_today      = EXCLUDED.closed_today,
    updated_at        = EXCLUDED.updated_at
RETURNING updated_at
`

	err := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		toPgDate(stats.Day),
		stats.OpenCount, stats.TriagedCount, stats.InProgressCount, stats.DoneCount,
		stats.LowCount, stats.MediumCount, stats.HighCount, stats.CriticalCount,
		stats.TotalIssues, stats.CreatedToday, stats.ClosedToday,
	).Scan(&stats.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert daily stats: %w", err)
	}
	return nil
}

// ListDaily returns the snapshots for days in [from, to], newest first.
func (r *StatsRepository) ListDaily(ctx context.Context, from, to time.Time) ([]*domain.DailyStats, error) {
	const query = `
SELECT ` + statsColumns + `
FROM daily_stats
WHERE day >= $1 AND day <= $2
ORDER BY day DESC
`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, toPgDate(from), toPgDate(to))
	if err != nil {
		return nil, fmt.Errorf("list daily stats: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.DailyStats, 0)
	for rows.Next() {
		stats, err := scanDailyStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// PruneBefore deletes snapshots for days strictly before day.
func (r *StatsRepository) PruneBefore(ctx context.Context, day time.Time) (int64, error) {
	const query = `DELETE FROM daily_stats WHERE day < $1`

	tag, err := GetDBTX(ctx, r.pool).Exec(ctx, query, toPgDate(day))
	if err != nil {
		return 0, fmt.Errorf("prune daily stats: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanDailyStats(row pgx.Row) (*domain.DailyStats, error) {
	var (
		stats domain.DailyStats
		day   pgtype.Date
	)
	err := row.Scan(
		&day,
		&stats.OpenCount, &stats.TriagedCount, &stats.InProgressCount, &stats.DoneCount,
		&stats.LowCount, &stats.MediumCount, &stats.HighCount, &stats.CriticalCount,
		&stats.TotalIssues, &stats.CreatedToday, &stats.ClosedToday,
		&stats.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	stats.Day = day.Time
	return &stats, nil
}

// toPgDate keeps the calendar date of t regardless of its location.
func toPgDate(t time.Time) pgtype.Date {
	y, m, d := t.Date()
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}
