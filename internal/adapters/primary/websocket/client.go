package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	apperrors "github.com/lorrc/issues-insights-backend/internal/core/errors"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message or pong from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Default maximum message size allowed from peer.
	maxMessageSize = 64 << 10

	pingMessage = "ping"
	pongMessage = "pong"
)

// ClientConfig holds per-connection timing and limits.
type ClientConfig struct {
	PingInterval time.Duration
	PongWait     time.Duration

	// MaxMessageSize bounds inbound frames; larger frames close the
	// connection with 1009.
	MaxMessageSize int64
}

// Client is a middleman between the websocket connection and the registry.
type Client struct {
	id     uuid.UUID
	userID string

	// The websocket connection.
	conn *websocket.Conn

	registry *Registry
	clock    clockwork.Clock
	cfg      ClientConfig

	// writeMu serializes data frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	// closeOnce ensures the transport is only closed once
	closeOnce sync.Once
	done      chan struct{}

	logger *slog.Logger
}

// Ensure Client implements the Connection interface.
var _ ports.Connection = (*Client)(nil)

// NewClient wraps an upgraded connection. userID is empty for anonymous
// connections.
func NewClient(conn *websocket.Conn, userID string, registry *Registry, clock clockwork.Clock, cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = pingPeriod
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = pongWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = maxMessageSize
	}

	id := uuid.New()
	return &Client{
		id:       id,
		userID:   userID,
		conn:     conn,
		registry: registry,
		clock:    clock,
		cfg:      cfg,
		done:     make(chan struct{}),
		logger:   logger.With("connection_id", id.String(), "user_id", userID),
	}
}

func (c *Client) ID() uuid.UUID { return c.id }

func (c *Client) UserID() string { return c.userID }

// Send writes a single text frame. The write deadline is the earlier of the
// ctx deadline and writeWait.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	select {
	case <-c.done:
		return apperrors.ErrConnectionClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Close closes the transport. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Start launches the read and keep-alive loops.
func (c *Client) Start(ctx context.Context) {
	go c.ReadPump(ctx)
	go c.pingLoop()
}

// ReadPump reads client frames until the connection fails or goes idle.
// This method runs in its own goroutine.
func (c *Client) ReadPump(ctx context.Context) {
	defer c.registry.Unregister(c)

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	if err := c.extendReadDeadline(); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		if err := c.extendReadDeadline(); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		if err := c.extendReadDeadline(); err != nil {
			c.logger.Error("failed to set read deadline", "error", err)
			return
		}

		if messageType == websocket.TextMessage {
			c.handleIncomingMessage(ctx, message)
		}
	}
}

// handleIncomingMessage answers the text keep-alive; everything else is
// ignored.
func (c *Client) handleIncomingMessage(ctx context.Context, message []byte) {
	if string(message) != pingMessage {
		c.logger.Debug("ignoring client message", "size", len(message))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	if err := c.Send(sendCtx, []byte(pongMessage)); err != nil {
		c.logger.Debug("failed to send pong", "error", err)
		c.registry.Unregister(c)
	}
}

// pingLoop sends protocol-level ping frames so dead peers are detected by
// the read deadline.
func (c *Client) pingLoop() {
	ticker := c.clock.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.Chan():
			deadline := time.Now().Add(writeWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				c.registry.Unregister(c)
				return
			}
		}
	}
}

func (c *Client) extendReadDeadline() error {
	return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
}
