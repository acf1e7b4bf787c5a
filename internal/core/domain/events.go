package domain

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/lorrc/issues-insights-backend/internal/core/errors"
)

// EventKind defines the type of real-time event.
type EventKind string

const (
	EventIssueCreated EventKind = "issue_created"
	EventIssueUpdated EventKind = "issue_updated"
	EventIssueDeleted EventKind = "issue_deleted"

	// EventConnected is only ever sent to a freshly accepted connection.
	EventConnected EventKind = "connected"
)

// IsValid reports whether the kind can be emitted by the CRUD layer.
func (k EventKind) IsValid() bool {
	switch k {
	case EventIssueCreated, EventIssueUpdated, EventIssueDeleted:
		return true
	}
	return false
}

// Event is an immutable record of a committed issue mutation.
type Event struct {
	Kind    EventKind
	Payload any

	// IssueID identifies the deleted issue for issue_deleted events.
	IssueID string

	// ActorID is the user that performed the mutation, if known.
	ActorID string

	// TargetUserID scopes delivery to a single user's connections.
	// Empty means every live connection.
	TargetUserID string

	OccurredAt time.Time
}

// Validate checks that the event can be put on the wire.
func (e Event) Validate() error {
	if !e.Kind.IsValid() {
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownEventKind, e.Kind)
	}
	if e.Kind == EventIssueDeleted && e.IssueID == "" {
		return apperrors.ErrIssueIDRequired
	}
	return nil
}

// WireMessage is the JSON object written to clients, one per text frame.
type WireMessage struct {
	Type      EventKind       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	IssueID   string          `json:"issue_id,omitempty"`
	UpdatedBy string          `json:"updated_by,omitempty"`
	DeletedBy string          `json:"deleted_by,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// NewWireMessage converts an event into its wire representation.
func NewWireMessage(e Event) (WireMessage, error) {
	msg := WireMessage{Type: e.Kind}

	if e.Payload != nil {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return WireMessage{}, fmt.Errorf("marshal event payload: %w", err)
		}
		msg.Data = data
	}

	if !e.OccurredAt.IsZero() {
		ts := e.OccurredAt.UTC()
		msg.Timestamp = &ts
	}

	switch e.Kind {
	case EventIssueUpdated:
		msg.UpdatedBy = e.ActorID
	case EventIssueDeleted:
		msg.IssueID = e.IssueID
		msg.DeletedBy = e.ActorID
	}

	return msg, nil
}

// Encode serializes the event into a single text frame.
func (e Event) Encode() ([]byte, error) {
	msg, err := NewWireMessage(e)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal wire message: %w", err)
	}
	return data, nil
}

// ConnectedMessage is the welcome frame sent right after a handshake.
func ConnectedMessage() []byte {
	data, _ := json.Marshal(WireMessage{
		Type:    EventConnected,
		Message: "Connected to Issues & Insights Tracker",
	})
	return data
}
