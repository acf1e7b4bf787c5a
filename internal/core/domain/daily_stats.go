package domain

import "time"

// History window bounds, in days.
const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 365
)

// DailyStats is the derived aggregate for one calendar day. It is written
// only by the stats job.
type DailyStats struct {
	Day time.Time `json:"date"`

	OpenCount       int64 `json:"open_count"`
	TriagedCount    int64 `json:"triaged_count"`
	InProgressCount int64 `json:"in_progress_count"`
	DoneCount       int64 `json:"done_count"`

	LowCount      int64 `json:"low_count"`
	MediumCount   int64 `json:"medium_count"`
	HighCount     int64 `json:"high_count"`
	CriticalCount int64 `json:"critical_count"`

	TotalIssues  int64 `json:"total_issues"`
	CreatedToday int64 `json:"created_today"`
	ClosedToday  int64 `json:"closed_today"`

	UpdatedAt time.Time `json:"updated_at"`
}

// SetStatusCount records the count for a status; unknown statuses are ignored.
func (s *DailyStats) SetStatusCount(status IssueStatus, count int64) {
	switch status {
	case StatusOpen:
		s.OpenCount = count
	case StatusTriaged:
		s.TriagedCount = count
	case StatusInProgress:
		s.InProgressCount = count
	case StatusDone:
		s.DoneCount = count
	}
}

// SetSeverityCount records the count for a severity; unknown severities are ignored.
func (s *DailyStats) SetSeverityCount(severity IssueSeverity, count int64) {
	switch severity {
	case SeverityLow:
		s.LowCount = count
	case SeverityMedium:
		s.MediumCount = count
	case SeverityHigh:
		s.HighCount = count
	case SeverityCritical:
		s.CriticalCount = count
	}
}

// DayStart truncates t to midnight in its own location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
