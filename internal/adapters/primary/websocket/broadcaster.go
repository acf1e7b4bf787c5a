package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lorrc/issues-insights-backend/internal/core/domain"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
	"github.com/lorrc/issues-insights-backend/internal/infrastructure/logging"
	"github.com/lorrc/issues-insights-backend/internal/infrastructure/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSendTimeout = 5 * time.Second
	defaultQueueSize   = 256
	defaultParallelism = 32
)

// BroadcasterConfig tunes delivery.
type BroadcasterConfig struct {
	// SendTimeout bounds a single send; exceeding it counts as a failure.
	SendTimeout time.Duration
	// QueueSize is the capacity of the Notify FIFO.
	QueueSize int
	// Parallelism caps concurrent sends within one broadcast.
	Parallelism int
}

// DeliveryReport summarises one broadcast sweep.
type DeliveryReport struct {
	Attempted int
	Delivered int
	Failed    int
}

// Broadcaster fans domain events out to live connections.
type Broadcaster struct {
	registry *Registry
	cfg      BroadcasterConfig
	events   chan domain.Event
	metrics  *metrics.RealtimeMetrics
	logger   *slog.Logger
}

// Ensure Broadcaster implements the EventNotifier interface.
var _ ports.EventNotifier = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster delivering through registry.
func NewBroadcaster(registry *Registry, cfg BroadcasterConfig, m *metrics.RealtimeMetrics, logger *slog.Logger) *Broadcaster {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}

	return &Broadcaster{
		registry: registry,
		cfg:      cfg,
		events:   make(chan domain.Event, cfg.QueueSize),
		metrics:  m,
		logger:   logger.With("component", "broadcaster"),
	}
}

// Notify queues an event for delivery without blocking the caller.
// This method implements the ports.EventNotifier interface.
func (b *Broadcaster) Notify(event domain.Event) {
	select {
	case b.events <- event:
	default:
		b.metrics.EventsDropped.Inc()
		b.logger.Warn("event queue full, dropping event",
			"event_type", event.Kind,
			"target_user_id", event.TargetUserID,
		)
	}
}

// Run drains the event queue in FIFO order until ctx is cancelled.
// This MUST be run as a goroutine.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.events:
			b.dispatch(ctx, event)
		}
	}
}

func (b *Broadcaster) dispatch(ctx context.Context, event domain.Event) {
	var report DeliveryReport
	if event.TargetUserID != "" {
		report = b.BroadcastToUser(ctx, event, event.TargetUserID)
	} else {
		report = b.BroadcastAll(ctx, event)
	}

	b.logger.Debug("event dispatched",
		"event_type", event.Kind,
		"attempted", report.Attempted,
		"delivered", report.Delivered,
		"failed", report.Failed,
	)
}

// BroadcastAll delivers event to every live connection. Failed connections
// are unregistered; the call itself never fails.
func (b *Broadcaster) BroadcastAll(ctx context.Context, event domain.Event) DeliveryReport {
	msg, ok := b.encode(event)
	if !ok {
		return DeliveryReport{}
	}
	return b.deliver(ctx, msg, b.registry.SnapshotAll())
}

// BroadcastToUser delivers event to the connections of one user. An unknown
// user is a no-op.
func (b *Broadcaster) BroadcastToUser(ctx context.Context, event domain.Event, userID string) DeliveryReport {
	conns := b.registry.SnapshotForUser(userID)
	if len(conns) == 0 {
		return DeliveryReport{}
	}

	msg, ok := b.encode(event)
	if !ok {
		return DeliveryReport{}
	}
	return b.deliver(ctx, msg, conns)
}

func (b *Broadcaster) encode(event domain.Event) ([]byte, bool) {
	msg, err := event.Encode()
	if err != nil {
		b.logger.Error("failed to serialize event, dropping",
			"event_type", event.Kind,
			"error", err,
		)
		return nil, false
	}
	return msg, true
}

// deliver sends msg to every connection and waits for all sends, so two
// sequential broadcasts reach a given connection in order.
func (b *Broadcaster) deliver(ctx context.Context, msg []byte, conns []ports.Connection) DeliveryReport {
	var delivered, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(b.cfg.Parallelism)

	for _, conn := range conns {
		g.Go(func() error {
			if err := b.sendOne(ctx, conn, msg); err != nil {
				failed.Add(1)
				b.metrics.DeliveryFailures.Inc()
				b.logger.Warn("delivery failed, disconnecting",
					"connection_id", conn.ID(),
					"user_id", conn.UserID(),
					"error", err,
				)
				b.registry.Unregister(conn)
				return nil
			}
			delivered.Add(1)
			b.metrics.MessagesDelivered.Inc()
			return nil
		})
	}
	_ = g.Wait()

	return DeliveryReport{
		Attempted: len(conns),
		Delivered: int(delivered.Load()),
		Failed:    int(failed.Load()),
	}
}

// sendOne is the per-delivery error boundary. The send runs on its own
// goroutine so a connection that ignores ctx still cannot hold the sweep past
// SendTimeout; a panicking connection is reported as a failed send.
func (b *Broadcaster) sendOne(ctx context.Context, conn ports.Connection, msg []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, b.cfg.SendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				logging.LogPanic(b.logger, p, "connection_id", conn.ID())
				done <- fmt.Errorf("send panicked: %v", p)
			}
		}()
		done <- conn.Send(sendCtx, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-sendCtx.Done():
		return fmt.Errorf("send timed out: %w", sendCtx.Err())
	}
}
