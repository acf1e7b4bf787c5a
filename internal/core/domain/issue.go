package domain

import "time"

// IssueStatus is the workflow state of an issue.
type IssueStatus string

const (
	StatusOpen       IssueStatus = "OPEN"
	StatusTriaged    IssueStatus = "TRIAGED"
	StatusInProgress IssueStatus = "IN_PROGRESS"
	StatusDone       IssueStatus = "DONE"
)

// IssueSeverity ranks how urgent an issue is.
type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "LOW"
	SeverityMedium   IssueSeverity = "MEDIUM"
	SeverityHigh     IssueSeverity = "HIGH"
	SeverityCritical IssueSeverity = "CRITICAL"
)

// IssueSnapshot matches the API response shape for issues and is the usual
// payload of issue events.
type IssueSnapshot struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Status      IssueStatus   `json:"status"`
	Severity    IssueSeverity `json:"severity"`
	Tags        string        `json:"tags,omitempty"`
	CreatedBy   string        `json:"created_by"`
	AssignedTo  *string       `json:"assigned_to"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   *time.Time    `json:"updated_at"`
}

// LastChange returns the most recent mutation time of the issue.
func (s IssueSnapshot) LastChange() time.Time {
	if s.UpdatedAt != nil {
		return *s.UpdatedAt
	}
	return s.CreatedAt
}
