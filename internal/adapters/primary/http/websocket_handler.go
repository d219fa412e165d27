package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/clipstream/realtime-backend/internal/adapters/primary/realtime"
	"github.com/clipstream/realtime-backend/internal/config"
	"github.com/clipstream/realtime-backend/internal/core/ports"
	"github.com/clipstream/realtime-backend/internal/infrastructure/logging"
)

// WebSocketHandler handles WebSocket connection upgrades. Authentication
// happens before the upgrade: a bad token gets a 401 and no connection is
// ever created.
type WebSocketHandler struct {
	gateway  *realtime.Gateway
	tokens   ports.TokenValidator
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	gateway *realtime.Gateway,
	tokens ports.TokenValidator,
	cfg *config.Config,
	logger *slog.Logger,
) *WebSocketHandler {
	handler := &WebSocketHandler{
		gateway: gateway,
		tokens:  tokens,
		logger:  logger,
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

		// In development mode, allow all origins (but log a warning)
		if cfg.IsDevelopment() {
			if origin != "" {
				h.logger.Warn("allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
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
			// Support wildcard subdomains like "*.example.com"
			if strings.HasPrefix(allowed, "*.") {
				suffix := allowed[1:] // Remove the "*", keep ".example.com"
				if strings.HasSuffix(originHost, suffix) || originHost == allowed[2:] {
					return true
				}
			} else if originHost == allowed {
				return true
			}
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// ServeHTTP handles WebSocket connection requests
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	// 1. Authenticate the connection via query parameter
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		h.logger.Warn("websocket connection rejected: missing token",
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
		)
		http.Error(w, "Missing authentication token", http.StatusUnauthorized)
		return
	}

	identity, err := h.tokens.Validate(tokenString)
	if err != nil {
		h.logger.Warn("websocket connection rejected: invalid token",
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}

	// 2. Bound connection attempts per identity. Rejected attempts get a
	// retry signal so clients can tell throttling from a broken token.
	if !h.gateway.AllowAttempt(identity.UserID) {
		h.logger.Warn("websocket connection rejected: attempt rate exceeded",
			"request_id", requestID,
			"user_id", identity.UserID,
		)
		w.Header().Set("Retry-After", "5")
		http.Error(w, "Too many connection attempts", http.StatusTooManyRequests)
		return
	}

	// 3. Upgrade the connection
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket connection",
			"request_id", requestID,
			"user_id", identity.UserID,
			"error", err,
		)
		return
	}

	// 4. Register with the gateway and start the I/O pumps
	client, err := h.gateway.Accept(conn, identity)
	if err != nil {
		h.logger.Warn("websocket connection rejected by gateway",
			"request_id", requestID,
			"user_id", identity.UserID,
			"error", err,
		)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "connection limit reached"))
		_ = conn.Close()
		return
	}

	// Connection ID rides the context so the logging handler stamps it
	// on this and any downstream records.
	ctx := logging.WithConnID(r.Context(), client.ID().String())
	h.logger.InfoContext(ctx, "websocket connection established",
		"request_id", requestID,
		"user_id", identity.UserID,
		"remote_addr", r.RemoteAddr,
	)

	client.Start()
}
