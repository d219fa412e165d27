package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/clipstream/realtime-backend/internal/core/domain"
	apperrors "github.com/clipstream/realtime-backend/internal/core/errors"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Client is the middleman between one websocket connection and the
// gateway. Its pumps run in their own goroutines; everything else in the
// subsystem addresses the connection by ID only.
type Client struct {
	id          uuid.UUID
	userID      uuid.UUID
	displayName string

	conn *websocket.Conn
	send chan []byte

	gateway *Gateway

	// sendMu guards send against closeSend: a payload may never be
	// pushed onto a closed channel, so every producer goes through
	// trySend and the close flips sendClosed under the same lock.
	sendMu     sync.Mutex
	sendClosed bool

	logger *slog.Logger
}

// ID returns the server-generated connection ID.
func (c *Client) ID() uuid.UUID { return c.id }

// UserID returns the authenticated owner of the connection.
func (c *Client) UserID() uuid.UUID { return c.userID }

// Start launches the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// trySend queues a payload without blocking. Once the gateway has torn
// the connection down the channel is gone and the send fails with
// ErrConnectionClosed; a full buffer fails with ErrDeliveryFailed.
func (c *Client) trySend(payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return apperrors.ErrConnectionClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return apperrors.ErrDeliveryFailed
	}
}

// closeSend closes the send channel exactly once. Concurrent trySend
// calls observe sendClosed instead of racing the close.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// readPump pumps messages from the websocket connection to the gateway.
func (c *Client) readPump() {
	defer func() {
		c.gateway.Disconnect(c.id, domain.ReasonClientClosed)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.gateway.pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		c.gateway.Heartbeat(c.id)
		if err := c.conn.SetReadDeadline(time.Now().Add(c.gateway.pongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.handleIncomingMessage(message)
	}
}

// writePump pumps payloads from the gateway to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.gateway.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The gateway closed the channel. Send close message.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// --- Incoming Message Handling ---

// ClientMessage is the structure for messages sent from the client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RoomPayload is the payload for join/leave messages.
type RoomPayload struct {
	Room string `json:"room"`
}

// handleIncomingMessage processes messages received from the client. Any
// inbound application message counts as activity.
func (c *Client) handleIncomingMessage(message []byte) {
	c.gateway.Heartbeat(c.id)

	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		return
	}

	switch msg.Type {
	case "JOIN_ROOM":
		c.handleJoin(msg.Payload)

	case "LEAVE_ROOM":
		c.handleLeave(msg.Payload)

	case "PING":
		// Application-level keep-alive, respond with pong
		c.sendPong()

	default:
		c.logger.Debug("received unknown message type", "type", msg.Type)
	}
}

func (c *Client) handleJoin(payload json.RawMessage) {
	var p RoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("failed to unmarshal join payload", "error", err)
		return
	}

	if err := c.gateway.JoinRoom(c.id, domain.RoomKey(p.Room)); err != nil {
		c.logger.Warn("join room rejected", "room", p.Room, "error", err)
	}
}

func (c *Client) handleLeave(payload json.RawMessage) {
	var p RoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("failed to unmarshal leave payload", "error", err)
		return
	}

	c.gateway.LeaveRoom(c.id, domain.RoomKey(p.Room))
}

func (c *Client) sendPong() {
	// Buffer full or connection closing, skip the pong response.
	_ = c.trySend([]byte(`{"type":"PONG"}`))
}
