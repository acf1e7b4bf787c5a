package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/lorrc/issues-insights-backend/internal/core/domain"
)

// Connection is a live duplex channel to one client.
type Connection interface {
	ID() uuid.UUID
	// UserID is empty for anonymous connections.
	UserID() string
	// Send writes one text message. It must honor the ctx deadline.
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// EventNotifier accepts committed domain events for real-time delivery.
// Implementations must never block the caller.
type EventNotifier interface {
	Notify(event domain.Event)
}

// TokenValidator resolves a bearer credential to a user identifier.
type TokenValidator interface {
	ValidateUserToken(token string) (string, error)
}
