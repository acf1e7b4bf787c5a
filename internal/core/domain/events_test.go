package domain

import (
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/lorrc/issues-insights-backend/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKind_IsValid(t *testing.T) {
	assert.True(t, EventIssueCreated.IsValid())
	assert.True(t, EventIssueUpdated.IsValid())
	assert.True(t, EventIssueDeleted.IsValid())
	assert.False(t, EventConnected.IsValid(), "connected is reserved for the handshake")
	assert.False(t, EventKind("issue_archived").IsValid())
	assert.False(t, EventKind("").IsValid())
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr error
	}{
		{"created", Event{Kind: EventIssueCreated}, nil},
		{"deleted with id", Event{Kind: EventIssueDeleted, IssueID: "42"}, nil},
		{"deleted without id", Event{Kind: EventIssueDeleted}, apperrors.ErrIssueIDRequired},
		{"unknown kind", Event{Kind: "issue_archived"}, apperrors.ErrUnknownEventKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEvent_Encode(t *testing.T) {
	at := time.Date(2024, 5, 10, 14, 0, 0, 0, time.FixedZone("UTC+2", 2*60*60))

	t.Run("created carries the issue", func(t *testing.T) {
		data, err := Event{
			Kind:       EventIssueCreated,
			Payload:    IssueSnapshot{ID: "42", Title: "Crash", Status: StatusOpen, Severity: SeverityHigh},
			ActorID:    "u1",
			OccurredAt: at,
		}.Encode()
		require.NoError(t, err)

		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "issue_created", msg["type"])
		assert.Equal(t, "2024-05-10T12:00:00Z", msg["timestamp"])
		assert.NotContains(t, msg, "updated_by")

		issue := msg["data"].(map[string]any)
		assert.Equal(t, "42", issue["id"])
		assert.Equal(t, "HIGH", issue["severity"])
	})

	t.Run("updated names the actor", func(t *testing.T) {
		data, err := Event{Kind: EventIssueUpdated, Payload: map[string]string{"id": "42"}, ActorID: "u1"}.Encode()
		require.NoError(t, err)
		assert.Contains(t, string(data), `"updated_by":"u1"`)
		assert.NotContains(t, string(data), "timestamp")
	})

	t.Run("deleted carries only the id", func(t *testing.T) {
		data, err := Event{Kind: EventIssueDeleted, IssueID: "42", ActorID: "u2"}.Encode()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"issue_deleted","issue_id":"42","deleted_by":"u2"}`, string(data))
	})

	t.Run("unencodable payload", func(t *testing.T) {
		_, err := Event{Kind: EventIssueCreated, Payload: make(chan int)}.Encode()
		assert.Error(t, err)
	})
}

func TestConnectedMessage(t *testing.T) {
	var msg WireMessage
	require.NoError(t, json.Unmarshal(ConnectedMessage(), &msg))
	assert.Equal(t, EventConnected, msg.Type)
	assert.NotEmpty(t, msg.Message)
}

func TestDayStart(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	got := DayStart(time.Date(2024, 5, 10, 23, 59, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, loc), got)
}

func TestDailyStats_SetCounts(t *testing.T) {
	var s DailyStats
	s.SetStatusCount(StatusInProgress, 3)
	s.SetStatusCount("ARCHIVED", 9)
	s.SetSeverityCount(SeverityCritical, 2)

	assert.Equal(t, int64(3), s.InProgressCount)
	assert.Equal(t, int64(2), s.CriticalCount)
	assert.Zero(t, s.OpenCount)
}
