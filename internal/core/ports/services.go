package ports

import (
	"context"
	"time"

	"github.com/lorrc/issues-insights-backend/internal/core/domain"
)

// NotificationService is the entry point the CRUD layer calls after a
// committed mutation.
type NotificationService interface {
	Notify(kind domain.EventKind, payload any, actorID string) error
	IssueCreated(issue domain.IssueSnapshot, actorID string) error
	IssueUpdated(issue domain.IssueSnapshot, actorID string) error
	IssueDeleted(issueID, actorID string) error
	NotifyUser(userID string, kind domain.EventKind, payload any, actorID string) error
}

// StatsService defines the port for daily aggregate maintenance and reads.
type StatsService interface {
	Recompute(ctx context.Context) (*domain.DailyStats, error)
	History(ctx context.Context, days int) ([]*domain.DailyStats, error)
	Prune(ctx context.Context) (int64, error)
}

// ConnectionCounter reports the number of live connections.
type ConnectionCounter interface {
	Count() int
}

// JobSnapshot is the externally visible state of a scheduled job.
type JobSnapshot struct {
	Name         string     `json:"name"`
	State        string     `json:"state"`
	Trigger      string     `json:"trigger"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastDuration string     `json:"last_duration,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	Runs         int64      `json:"runs"`
	Failures     int64      `json:"failures"`
	Skipped      int64      `json:"skipped"`
}

// JobStatusProvider exposes scheduler state to health checks.
type JobStatusProvider interface {
	Statuses() []JobSnapshot
}

// JobRunner lets operators trigger a job outside its schedule.
type JobRunner interface {
	JobStatusProvider
	RunNow(ctx context.Context, name string) error
}
