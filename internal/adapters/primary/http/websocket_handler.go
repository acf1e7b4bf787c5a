package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	wsAdapter "github.com/lorrc/issues-insights-backend/internal/adapters/primary/websocket"
	"github.com/lorrc/issues-insights-backend/internal/config"
	"github.com/lorrc/issues-insights-backend/internal/core/domain"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
	"github.com/lorrc/issues-insights-backend/internal/infrastructure/metrics"
)

const (
	closeWriteWait = time.Second
	welcomeWait    = 5 * time.Second
)

// WebSocketHandler handles WebSocket connection upgrades
type WebSocketHandler struct {
	registry  *wsAdapter.Registry
	tokens    ports.TokenValidator
	upgrader  websocket.Upgrader
	clock     clockwork.Clock
	clientCfg wsAdapter.ClientConfig
	metrics   *metrics.RealtimeMetrics
	logger    *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	registry *wsAdapter.Registry,
	tokens ports.TokenValidator,
	cfg *config.Config,
	clock clockwork.Clock,
	m *metrics.RealtimeMetrics,
	logger *slog.Logger,
) *WebSocketHandler {
	handler := &WebSocketHandler{
		registry: registry,
		tokens:   tokens,
		clock:    clock,
		clientCfg: wsAdapter.ClientConfig{
			PingInterval:   cfg.WebSocket.PingInterval,
			PongWait:       cfg.WebSocket.PongWait,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		},
		metrics: m,
		logger:  logger.With("component", "websocket_handler"),
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *WebSocketHandler) makeOriginChecker(cfg *config.Config) func(r *http.Request) bool {
	allowedOrigins := cfg.WebSocket.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// In development mode, allow all origins
		if cfg.IsDevelopment() {
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		originHost := parsedOrigin.Host

		for _, allowed := range allowedOrigins {
			if allowed == "*" {
				return true
			}
			// Support wildcard subdomains like "*.example.com"
			if strings.HasPrefix(allowed, "*.") {
				suffix := allowed[1:]
				if strings.HasSuffix(originHost, suffix) || originHost == allowed[2:] {
					return true
				}
			} else if originHost == allowed {
				return true
			}
		}

		h.metrics.HandshakeRejected.WithLabelValues("origin").Inc()
		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// ServeHTTP handles WebSocket connection requests. A connection without a
// token is accepted anonymously; a connection with an invalid token is
// closed with a policy-violation code before it reaches the registry.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	// 1. Upgrade the connection
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket connection",
			"request_id", requestID,
			"error", err,
		)
		return
	}

	// 2. Resolve the optional credential
	var userID string
	if token := bearerToken(r); token != "" {
		userID, err = h.tokens.ValidateUserToken(token)
		if err != nil {
			h.metrics.HandshakeRejected.WithLabelValues("invalid_token").Inc()
			h.logger.Warn("websocket connection rejected: invalid token",
				"request_id", requestID,
				"remote_addr", r.RemoteAddr,
				"error", err,
			)
			refuse(conn, websocket.ClosePolicyViolation, "invalid token")
			return
		}
	}

	// 3. Greet, then register so the welcome is always the first frame
	client := wsAdapter.NewClient(conn, userID, h.registry, h.clock, h.clientCfg, h.logger)

	// The request context ends when ServeHTTP returns; the connection
	// outlives it.
	ctx := context.WithoutCancel(r.Context())

	sendCtx, cancel := context.WithTimeout(ctx, welcomeWait)
	defer cancel()
	if err := client.Send(sendCtx, domain.ConnectedMessage()); err != nil {
		h.logger.Warn("failed to send welcome message",
			"request_id", requestID,
			"error", err,
		)
		_ = client.Close()
		return
	}

	h.registry.Register(client)

	h.logger.Info("websocket connection established",
		"request_id", requestID,
		"connection_id", client.ID(),
		"user_id", userID,
		"remote_addr", r.RemoteAddr,
	)

	// 4. Start the I/O loops
	client.Start(ctx)
}

// bearerToken reads the credential from the token query parameter or the
// Authorization header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func refuse(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	_ = conn.Close()
}
