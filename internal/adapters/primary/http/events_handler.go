package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/lorrc/issues-insights-backend/internal/adapters/primary/http/middleware"
	"github.com/lorrc/issues-insights-backend/internal/adapters/primary/validation"
	"github.com/lorrc/issues-insights-backend/internal/core/domain"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
)

const (
	maxEventBodyBytes = 64 << 10
	maxIDLength       = 128
)

// EventsHandler lets an out-of-process CRUD service publish committed
// mutations. The caller's token identifies the actor.
type EventsHandler struct {
	notifications ports.NotificationService
	errorHandler  *ErrorHandler
}

func NewEventsHandler(notifications ports.NotificationService, errorHandler *ErrorHandler) *EventsHandler {
	return &EventsHandler{notifications: notifications, errorHandler: errorHandler}
}

// PublishEventRequest is the body of POST /events.
type PublishEventRequest struct {
	Type         domain.EventKind `json:"type"`
	Data         json.RawMessage  `json:"data,omitempty"`
	IssueID      string           `json:"issue_id,omitempty"`
	TargetUserID string           `json:"target_user_id,omitempty"`
}

// RegisterRoutes mounts the event routes on an authenticated router.
func (h *EventsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/events", h.HandlePublish)
}

// HandlePublish queues one event for delivery and answers 202.
func (h *EventsHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	actorID, _ := mw.UserIDFromContext(r.Context())

	req, err := validation.DecodeJSON[PublishEventRequest](w, r, maxEventBodyBytes)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	err = validation.NewValidator().
		Required("type", string(req.Type)).
		MaxLength("issue_id", req.IssueID, maxIDLength).
		MaxLength("target_user_id", req.TargetUserID, maxIDLength).
		Custom("target_user_id",
			req.Type != domain.EventIssueDeleted || req.TargetUserID == "",
			"Deletions are broadcast to everyone and cannot be targeted").
		Err()
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	var payload any
	if len(req.Data) > 0 {
		payload = req.Data
	}

	switch {
	case req.Type == domain.EventIssueDeleted:
		err = h.notifications.IssueDeleted(req.IssueID, actorID)
	case req.TargetUserID != "":
		err = h.notifications.NotifyUser(req.TargetUserID, req.Type, payload, actorID)
	default:
		err = h.notifications.Notify(req.Type, payload, actorID)
	}
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
