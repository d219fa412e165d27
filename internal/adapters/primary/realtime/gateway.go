package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/clipstream/realtime-backend/internal/core/domain"
	apperrors "github.com/clipstream/realtime-backend/internal/core/errors"
	"github.com/clipstream/realtime-backend/internal/core/ports"
)

// GatewayConfig holds the connection lifecycle thresholds.
type GatewayConfig struct {
	IdleAfter           time.Duration // Active -> Idle after no activity
	InactivityThreshold time.Duration // Force-disconnect after no activity
	SweepInterval       time.Duration
	OfflineRetention    time.Duration // Purge fully-offline sessions
	RoomIdleWindow      time.Duration // Delete rooms empty this long
	MaxConnsPerUser     int           // 0 disables the cap
	SendBufferSize      int
	ConnectRPS          float64 // Connection attempts per identity
	ConnectBurst        int
	PingInterval        time.Duration
	PongWait            time.Duration
}

// DefaultGatewayConfig returns the documented default thresholds.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		IdleAfter:           2 * time.Minute,
		InactivityThreshold: 5 * time.Minute,
		SweepInterval:       30 * time.Second,
		OfflineRetention:    24 * time.Hour,
		RoomIdleWindow:      2 * time.Minute,
		MaxConnsPerUser:     8,
		SendBufferSize:      256,
		ConnectRPS:          1,
		ConnectBurst:        5,
		PingInterval:        54 * time.Second,
		PongWait:            60 * time.Second,
	}
}

// trackedConn is the gateway's record of one live connection. The gateway
// owns the connection lifecycle exclusively; the registry and room manager
// only ever hold its ID.
type trackedConn struct {
	client       *Client
	userID       uuid.UUID
	state        domain.ConnectionState
	createdAt    time.Time
	lastActivity time.Time
}

// Gateway accepts authenticated connections and manages their lifecycle:
// heartbeats, idle transitions, inactivity sweeps, and cleanup on
// disconnect.
type Gateway struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*trackedConn

	registry *Registry
	rooms    *Rooms
	attempts *attemptLimiter

	cfg    GatewayConfig
	logger *slog.Logger
	now    func() time.Time

	pingInterval time.Duration
	pongWait     time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

var _ ports.PayloadSender = (*Gateway)(nil)

// NewGateway wires the gateway to its registry and room manager. If the
// room manager was built without a sender, the gateway installs itself.
func NewGateway(registry *Registry, rooms *Rooms, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	g := &Gateway{
		conns:        make(map[uuid.UUID]*trackedConn),
		registry:     registry,
		rooms:        rooms,
		cfg:          cfg,
		logger:       logger.With("component", "gateway"),
		now:          time.Now,
		pingInterval: cfg.PingInterval,
		pongWait:     cfg.PongWait,
		done:         make(chan struct{}),
	}
	g.attempts = newAttemptLimiter(cfg.ConnectRPS, cfg.ConnectBurst, g.done)
	if rooms.sender == nil {
		rooms.sender = g
	}
	return g
}

// AllowAttempt reports whether the identity may attempt a connection now.
func (g *Gateway) AllowAttempt(userID uuid.UUID) bool {
	return g.attempts.Allow(userID.String())
}

// Accept registers an authenticated websocket connection: allocates a
// connection ID, binds it to the session registry, and auto-joins the
// user's inbox room. The caller starts the pumps via Client.Start after a
// successful Accept. Identity validation happens before Accept; a failed
// handshake never reaches here.
func (g *Gateway) Accept(conn *websocket.Conn, identity domain.Identity) (*Client, error) {
	if g.cfg.MaxConnsPerUser > 0 &&
		len(g.registry.ActiveConnections(identity.UserID)) >= g.cfg.MaxConnsPerUser {
		return nil, apperrors.ErrConnectionLimit
	}

	now := g.now()
	client := &Client{
		id:          uuid.New(),
		userID:      identity.UserID,
		displayName: identity.DisplayName,
		conn:        conn,
		send:        make(chan []byte, g.cfg.SendBufferSize),
		gateway:     g,
	}
	client.logger = g.logger.With("connection_id", client.id, "user_id", identity.UserID)

	g.mu.Lock()
	g.conns[client.id] = &trackedConn{
		client:       client,
		userID:       identity.UserID,
		state:        domain.ConnActive,
		createdAt:    now,
		lastActivity: now,
	}
	g.mu.Unlock()

	g.registry.Register(client.id, identity.UserID)
	g.rooms.Join(domain.UserRoom(identity.UserID), client.id)

	g.logger.Info("connection accepted",
		"connection_id", client.id,
		"user_id", identity.UserID,
	)
	return client, nil
}

// Heartbeat records activity on a connection. An idle connection flips
// back to active on any heartbeat or application message.
func (g *Gateway) Heartbeat(connID uuid.UUID) {
	g.mu.Lock()
	tc, ok := g.conns[connID]
	if ok {
		tc.lastActivity = g.now()
		if tc.state == domain.ConnIdle {
			tc.state = domain.ConnActive
		}
	}
	g.mu.Unlock()

	if ok {
		g.registry.Touch(connID)
	}
}

// Disconnect tears a connection down: every room membership is dropped,
// the session registry is updated, and the socket is closed. Disconnecting
// an already-closed connection is a no-op, not an error.
func (g *Gateway) Disconnect(connID uuid.UUID, reason domain.DisconnectReason) {
	g.mu.Lock()
	tc, ok := g.conns[connID]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.conns, connID)
	tc.state = domain.ConnDisconnected
	g.mu.Unlock()

	g.rooms.DropConnection(connID)
	g.registry.Unregister(connID)

	tc.client.closeSend()
	if tc.client.conn != nil {
		_ = tc.client.conn.Close()
	}

	g.logger.Info("connection closed",
		"connection_id", connID,
		"user_id", tc.userID,
		"reason", reason,
	)
}

// Send queues a payload for one connection. Implements ports.PayloadSender
// for the room manager. A full send buffer fails this delivery only; the
// connection is scheduled for disconnect rather than blocking the caller.
func (g *Gateway) Send(connID uuid.UUID, payload []byte) error {
	g.mu.RLock()
	tc, ok := g.conns[connID]
	g.mu.RUnlock()

	if !ok {
		return apperrors.ErrConnectionNotFound
	}

	switch err := tc.client.trySend(payload); {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrConnectionClosed):
		// Torn down between the lookup and the send. The payload is
		// lost for this connection only.
		return apperrors.ErrConnectionClosed
	default:
		g.logger.Warn("send buffer full, disconnecting",
			"connection_id", connID,
			"user_id", tc.userID,
		)
		go g.Disconnect(connID, domain.ReasonSendBufferFull)
		return apperrors.ErrDeliveryFailed
	}
}

// JoinRoom subscribes a connection to a room. Clients may only join
// content viewer rooms; inbox rooms are gateway-managed.
func (g *Gateway) JoinRoom(connID uuid.UUID, key domain.RoomKey) error {
	if key.IsUserRoom() {
		return apperrors.ErrRoomForbidden
	}
	if _, _, ok := key.ParseContentRoom(); !ok {
		return apperrors.ErrInvalidRoom
	}

	g.mu.RLock()
	_, ok := g.conns[connID]
	g.mu.RUnlock()
	if !ok {
		return apperrors.ErrConnectionNotFound
	}

	g.rooms.Join(key, connID)
	return nil
}

// LeaveRoom unsubscribes a connection from a room. Leaving a room never
// joined is a no-op.
func (g *Gateway) LeaveRoom(connID uuid.UUID, key domain.RoomKey) {
	if key.IsUserRoom() {
		return
	}
	g.rooms.Leave(key, connID)
}

// StateOf returns the lifecycle state of a connection. Unknown IDs report
// disconnected.
func (g *Gateway) StateOf(connID uuid.UUID) domain.ConnectionState {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if tc, ok := g.conns[connID]; ok {
		return tc.state
	}
	return domain.ConnDisconnected
}

// ConnectionCount returns the number of live connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// Start launches the periodic sweep. Run once at process start.
func (g *Gateway) Start() {
	go func() {
		ticker := time.NewTicker(g.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				g.sweep()
			case <-g.done:
				return
			}
		}
	}()
}

// Close stops the sweep and force-disconnects every connection.
func (g *Gateway) Close() {
	g.stopOnce.Do(func() {
		close(g.done)
	})

	g.mu.RLock()
	ids := make([]uuid.UUID, 0, len(g.conns))
	for id := range g.conns {
		ids = append(ids, id)
	}
	g.mu.RUnlock()

	for _, id := range ids {
		g.Disconnect(id, domain.ReasonServerShutdown)
	}
}

// sweep transitions quiet connections to idle, force-disconnects the ones
// past the inactivity threshold, purges long-offline sessions, and
// garbage-collects empty rooms.
func (g *Gateway) sweep() {
	now := g.now()
	var stale []uuid.UUID

	g.mu.Lock()
	for id, tc := range g.conns {
		inactive := now.Sub(tc.lastActivity)
		switch {
		case inactive > g.cfg.InactivityThreshold:
			stale = append(stale, id)
		case inactive > g.cfg.IdleAfter && tc.state == domain.ConnActive:
			tc.state = domain.ConnIdle
		}
	}
	g.mu.Unlock()

	for _, id := range stale {
		g.Disconnect(id, domain.ReasonInactive)
	}

	g.registry.PurgeOffline(g.cfg.OfflineRetention)
	g.rooms.Sweep(g.cfg.RoomIdleWindow)

	if len(stale) > 0 {
		g.logger.Info("sweep disconnected stale connections", "count", len(stale))
	}
}
