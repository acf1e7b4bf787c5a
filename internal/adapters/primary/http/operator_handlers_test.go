package http

import (
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	mw "github.com/lorrc/issues-insights-backend/internal/adapters/primary/http/middleware"
	"github.com/lorrc/issues-insights-backend/internal/core/domain"
	apperrors "github.com/lorrc/issues-insights-backend/internal/core/errors"
	"github.com/lorrc/issues-insights-backend/internal/core/mocks"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
	"github.com/lorrc/issues-insights-backend/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEventsHandler_Publish(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	setup := func() (chi.Router, *mocks.RecordingNotifier) {
		notifier := mocks.NewRecordingNotifier()
		notifications := services.NewNotificationService(notifier, clockwork.NewFakeClockAt(now))

		tokens := mocks.NewMockTokenValidator()
		tokens.On("ValidateUserToken", "svc-token").Return("actor-1", nil)

		r := chi.NewRouter()
		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(tokens))
			NewEventsHandler(notifications, NewErrorHandler(discardLogger())).RegisterRoutes(r)
		})
		return r, notifier
	}

	post := func(router stdhttp.Handler, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(stdhttp.MethodPost, "/events", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer svc-token")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("broadcast event", func(t *testing.T) {
		router, notifier := setup()

		rec := post(router, `{"type":"issue_updated","data":{"id":"42","title":"Crash"}}`)

		require.Equal(t, stdhttp.StatusAccepted, rec.Code)
		events := notifier.Events()
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventIssueUpdated, events[0].Kind)
		assert.Equal(t, "actor-1", events[0].ActorID)
		assert.Empty(t, events[0].TargetUserID)
		assert.Equal(t, now, events[0].OccurredAt)

		wire, err := events[0].Encode()
		require.NoError(t, err)
		assert.Contains(t, string(wire), `"data":{"id":"42","title":"Crash"}`)
		assert.Contains(t, string(wire), `"updated_by":"actor-1"`)
	})

	t.Run("targeted event", func(t *testing.T) {
		router, notifier := setup()

		rec := post(router, `{"type":"issue_created","data":{"id":"7"},"target_user_id":"u9"}`)

		require.Equal(t, stdhttp.StatusAccepted, rec.Code)
		require.Len(t, notifier.Events(), 1)
		assert.Equal(t, "u9", notifier.Events()[0].TargetUserID)
	})

	t.Run("deleted issue", func(t *testing.T) {
		router, notifier := setup()

		rec := post(router, `{"type":"issue_deleted","issue_id":"42"}`)

		require.Equal(t, stdhttp.StatusAccepted, rec.Code)
		require.Len(t, notifier.Events(), 1)
		assert.Equal(t, "42", notifier.Events()[0].IssueID)
	})

	t.Run("rejected events", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"malformed json", `{"type":`},
			{"unknown kind", `{"type":"issue_archived"}`},
			{"connected is server only", `{"type":"connected"}`},
			{"delete without id", `{"type":"issue_deleted"}`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				router, notifier := setup()

				rec := post(router, tt.body)

				assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)
				assert.Empty(t, notifier.Events())
			})
		}
	})

	t.Run("invalid fields", func(t *testing.T) {
		router, notifier := setup()

		rec := post(router, `{"type":"","target_user_id":"`+strings.Repeat("u", 200)+`"}`)

		assert.Equal(t, stdhttp.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), `"type"`)
		assert.Contains(t, rec.Body.String(), `"target_user_id"`)
		assert.Empty(t, notifier.Events())
	})

	t.Run("deletion cannot be targeted", func(t *testing.T) {
		router, notifier := setup()

		rec := post(router, `{"type":"issue_deleted","issue_id":"42","target_user_id":"u9"}`)

		assert.Equal(t, stdhttp.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), `"target_user_id"`)
		assert.Empty(t, notifier.Events())
	})

	t.Run("requires a token", func(t *testing.T) {
		router, notifier := setup()

		req := httptest.NewRequest(stdhttp.MethodPost, "/events", strings.NewReader(`{"type":"issue_created"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, stdhttp.StatusUnauthorized, rec.Code)
		assert.Empty(t, notifier.Events())
	})
}

func TestJobsHandler(t *testing.T) {
	snapshots := []ports.JobSnapshot{
		{Name: "daily_cleanup", State: "idle", Trigger: "at 00:00 UTC"},
		{Name: "update_stats", State: "idle", Trigger: "every 30m0s", Runs: 1},
	}

	setup := func() (chi.Router, *mocks.MockJobRunner) {
		jobs := mocks.NewMockJobRunner()
		jobs.On("Statuses").Return(snapshots).Maybe()

		r := chi.NewRouter()
		r.Route("/jobs", NewJobsHandler(jobs, NewErrorHandler(discardLogger())).RegisterRoutes)
		return r, jobs
	}

	run := func(router stdhttp.Handler, name string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodPost, "/jobs/"+name+"/run", nil))
		return rec
	}

	t.Run("list", func(t *testing.T) {
		router, _ := setup()

		rec := serve(t, router, "/jobs/")

		assert.Equal(t, stdhttp.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":2`)
		assert.Contains(t, rec.Body.String(), `"update_stats"`)
	})

	t.Run("run", func(t *testing.T) {
		router, jobs := setup()
		jobs.On("RunNow", mock.Anything, "update_stats").Return(nil)

		rec := run(router, "update_stats")

		assert.Equal(t, stdhttp.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"name":"update_stats"`)
		jobs.AssertExpectations(t)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			err    error
			status int
		}{
			{apperrors.ErrJobNotFound, stdhttp.StatusNotFound},
			{apperrors.ErrJobRunning, stdhttp.StatusConflict},
			{apperrors.ErrSchedulerStopped, stdhttp.StatusServiceUnavailable},
			{errors.New("stats query failed"), stdhttp.StatusInternalServerError},
		}

		for _, tt := range tests {
			t.Run(tt.err.Error(), func(t *testing.T) {
				router, jobs := setup()
				jobs.On("RunNow", mock.Anything, "daily_cleanup").Return(tt.err)

				rec := run(router, "daily_cleanup")

				assert.Equal(t, tt.status, rec.Code)
			})
		}
	})
}
