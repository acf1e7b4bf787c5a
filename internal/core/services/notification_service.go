package services

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/lorrc/issues-insights-backend/internal/core/domain"
	apperrors "github.com/lorrc/issues-insights-backend/internal/core/errors"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
)

// NotificationService turns committed issue mutations into real-time events.
type NotificationService struct {
	notifier ports.EventNotifier
	clock    clockwork.Clock
}

var _ ports.NotificationService = (*NotificationService)(nil)

// NewNotificationService creates a new notification service.
func NewNotificationService(notifier ports.EventNotifier, clock clockwork.Clock) *NotificationService {
	return &NotificationService{
		notifier: notifier,
		clock:    clock,
	}
}

// Notify emits an event of the given kind to every live connection.
func (s *NotificationService) Notify(kind domain.EventKind, payload any, actorID string) error {
	return s.emit(domain.Event{
		Kind:    kind,
		Payload: payload,
		ActorID: actorID,
	})
}

// IssueCreated announces a newly created issue, stamped with its creation
// time.
func (s *NotificationService) IssueCreated(issue domain.IssueSnapshot, actorID string) error {
	return s.emit(domain.Event{
		Kind:       domain.EventIssueCreated,
		Payload:    issue,
		IssueID:    issue.ID,
		ActorID:    actorID,
		OccurredAt: issue.CreatedAt,
	})
}

// IssueUpdated announces a change to an existing issue, stamped with its
// last change.
func (s *NotificationService) IssueUpdated(issue domain.IssueSnapshot, actorID string) error {
	return s.emit(domain.Event{
		Kind:       domain.EventIssueUpdated,
		Payload:    issue,
		IssueID:    issue.ID,
		ActorID:    actorID,
		OccurredAt: issue.LastChange(),
	})
}

// IssueDeleted announces a removed issue. Only the id travels on the wire.
func (s *NotificationService) IssueDeleted(issueID, actorID string) error {
	return s.emit(domain.Event{
		Kind:    domain.EventIssueDeleted,
		IssueID: issueID,
		ActorID: actorID,
	})
}

// NotifyUser emits an event to the connections of a single user.
func (s *NotificationService) NotifyUser(userID string, kind domain.EventKind, payload any, actorID string) error {
	if userID == "" {
		return apperrors.ErrUserIDRequired
	}
	return s.emit(domain.Event{
		Kind:         kind,
		Payload:      payload,
		ActorID:      actorID,
		TargetUserID: userID,
	})
}

// emit stamps events that carry no time of their own with the clock.
func (s *NotificationService) emit(event domain.Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock.Now().UTC()
	} else {
		event.OccurredAt = event.OccurredAt.UTC()
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("emit event: %w", err)
	}
	s.notifier.Notify(event)
	return nil
}
