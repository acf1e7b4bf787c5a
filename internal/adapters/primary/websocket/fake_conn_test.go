package websocket

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
	"github.com/lorrc/issues-insights-backend/internal/infrastructure/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type sendBehavior int

const (
	sendOK sendBehavior = iota
	sendFail
	sendPanic
	sendHang // ignores ctx entirely
)

// fakeConn is an in-memory ports.Connection.
type fakeConn struct {
	id       uuid.UUID
	userID   string
	behavior sendBehavior
	release  chan struct{}

	mu       sync.Mutex
	messages []string

	closes atomic.Int32
}

var _ ports.Connection = (*fakeConn)(nil)

func newFakeConn(userID string) *fakeConn {
	return &fakeConn{id: uuid.New(), userID: userID, release: make(chan struct{})}
}

func (c *fakeConn) failing(b sendBehavior) *fakeConn {
	c.behavior = b
	return c
}

func (c *fakeConn) ID() uuid.UUID  { return c.id }
func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) Send(ctx context.Context, msg []byte) error {
	switch c.behavior {
	case sendFail:
		return io.ErrClosedPipe
	case sendPanic:
		panic("socket exploded")
	case sendHang:
		<-c.release
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, string(msg))
	return nil
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	return nil
}

func (c *fakeConn) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *metrics.RealtimeMetrics {
	return metrics.NewRealtimeMetrics(prometheus.NewRegistry())
}
