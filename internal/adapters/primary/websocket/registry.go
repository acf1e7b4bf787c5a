package websocket

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
	"github.com/lorrc/issues-insights-backend/internal/infrastructure/metrics"
)

// Registry owns the set of live connections and the per-user index.
type Registry struct {
	// all holds every live connection keyed by its id
	all map[uuid.UUID]ports.Connection

	// byUser maps user IDs to their live connections.
	// A single user can have multiple connections (multiple tabs/devices).
	// Sets are never empty: the last removal deletes the key.
	byUser map[string]map[uuid.UUID]ports.Connection

	// mu protects both indices and orders updates of the connection gauge
	mu sync.RWMutex

	metrics *metrics.RealtimeMetrics
	logger  *slog.Logger
}

// NewRegistry creates an empty connection registry
func NewRegistry(m *metrics.RealtimeMetrics, logger *slog.Logger) *Registry {
	return &Registry{
		all:     make(map[uuid.UUID]ports.Connection),
		byUser:  make(map[string]map[uuid.UUID]ports.Connection),
		metrics: m,
		logger:  logger.With("component", "connection_registry"),
	}
}

// Register adds a connection to the full set and, when it belongs to a
// user, to that user's subset.
func (r *Registry) Register(conn ports.Connection) {
	r.mu.Lock()
	r.all[conn.ID()] = conn

	userID := conn.UserID()
	if userID != "" {
		if r.byUser[userID] == nil {
			r.byUser[userID] = make(map[uuid.UUID]ports.Connection)
		}
		r.byUser[userID][conn.ID()] = conn
	}
	total := len(r.all)
	r.metrics.ActiveConnections.Set(float64(total))
	r.mu.Unlock()

	r.logger.Info("connection registered",
		"connection_id", conn.ID(),
		"user_id", userID,
		"total_connections", total,
	)
}

// Unregister removes a connection from both indices and closes its
// transport. It reports whether the connection was present; removing an
// absent connection is a no-op.
func (r *Registry) Unregister(conn ports.Connection) bool {
	r.mu.Lock()
	if _, ok := r.all[conn.ID()]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.all, conn.ID())

	userID := conn.UserID()
	if userConns, ok := r.byUser[userID]; ok {
		delete(userConns, conn.ID())
		if len(userConns) == 0 {
			delete(r.byUser, userID)
		}
	}
	total := len(r.all)
	r.metrics.ActiveConnections.Set(float64(total))
	r.mu.Unlock()

	if err := conn.Close(); err != nil {
		r.logger.Debug("closing unregistered connection", "connection_id", conn.ID(), "error", err)
	}

	r.logger.Info("connection unregistered",
		"connection_id", conn.ID(),
		"user_id", userID,
		"total_connections", total,
	)
	return true
}

// SnapshotAll returns a point-in-time copy of every live connection.
func (r *Registry) SnapshotAll() []ports.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]ports.Connection, 0, len(r.all))
	for _, conn := range r.all {
		conns = append(conns, conn)
	}
	return conns
}

// SnapshotForUser returns a point-in-time copy of one user's connections.
// An unknown user yields an empty slice.
func (r *Registry) SnapshotForUser(userID string) []ports.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userConns := r.byUser[userID]
	conns := make([]ports.Connection, 0, len(userConns))
	for _, conn := range userConns {
		conns = append(conns, conn)
	}
	return conns
}

// Count returns the total number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// UserCount returns the number of distinct users with a live connection
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// IsUserConnected checks if a user has any live connections
func (r *Registry) IsUserConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

// CloseAll unregisters and closes every live connection.
func (r *Registry) CloseAll() {
	for _, conn := range r.SnapshotAll() {
		r.Unregister(conn)
	}
}
