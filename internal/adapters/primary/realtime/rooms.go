package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipstream/realtime-backend/internal/core/domain"
	"github.com/clipstream/realtime-backend/internal/core/ports"
)

// room tracks the current membership of one delivery scope.
type room struct {
	members    map[uuid.UUID]time.Time // connection ID -> last activity
	createdAt  time.Time
	emptySince time.Time // zero while the room has members
}

// Rooms manages dynamic topic subscriptions. Rooms are created lazily on
// first join and garbage-collected by Sweep once empty long enough.
// Delivery goes through the injected PayloadSender so the room lock is
// never held while writing to a socket.
type Rooms struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomKey]*room
	byConn map[uuid.UUID]map[domain.RoomKey]struct{}
	sender ports.PayloadSender
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.RoomManager = (*Rooms)(nil)

// NewRooms creates an empty room manager delivering through sender.
func NewRooms(sender ports.PayloadSender, logger *slog.Logger) *Rooms {
	return &Rooms{
		rooms:  make(map[domain.RoomKey]*room),
		byConn: make(map[uuid.UUID]map[domain.RoomKey]struct{}),
		sender: sender,
		logger: logger.With("component", "room_manager"),
		now:    time.Now,
	}
}

// Join adds a connection to a room, creating the room if needed.
// Joining twice is a no-op.
func (m *Rooms) Join(key domain.RoomKey, connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rm, ok := m.rooms[key]
	if !ok {
		rm = &room{members: make(map[uuid.UUID]time.Time), createdAt: now}
		m.rooms[key] = rm
	}
	rm.members[connID] = now
	rm.emptySince = time.Time{}

	if m.byConn[connID] == nil {
		m.byConn[connID] = make(map[domain.RoomKey]struct{})
	}
	m.byConn[connID][key] = struct{}{}

	m.logger.Debug("joined room",
		"room", key,
		"connection_id", connID,
		"members", len(rm.members),
	)
}

// Leave removes a connection from a room. Leaving a room the connection
// never joined is a no-op.
func (m *Rooms) Leave(key domain.RoomKey, connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.leaveLocked(key, connID)
}

func (m *Rooms) leaveLocked(key domain.RoomKey, connID uuid.UUID) {
	rm, ok := m.rooms[key]
	if !ok {
		return
	}
	if _, member := rm.members[connID]; !member {
		return
	}
	delete(rm.members, connID)
	if len(rm.members) == 0 {
		rm.emptySince = m.now()
	}

	if keys, ok := m.byConn[connID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(m.byConn, connID)
		}
	}

	m.logger.Debug("left room", "room", key, "connection_id", connID)
}

// DropConnection removes the connection from every room it joined. Called
// by the gateway on disconnect so memberships never outlive connections.
func (m *Rooms) DropConnection(connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, ok := m.byConn[connID]
	if !ok {
		return
	}
	for key := range keys {
		if rm, ok := m.rooms[key]; ok {
			delete(rm.members, connID)
			if len(rm.members) == 0 {
				rm.emptySince = m.now()
			}
		}
	}
	delete(m.byConn, connID)
}

// Broadcast delivers payload to every current member of the room. The
// member list is copied under the read lock, then sends happen outside
// it: a connection that closed mid-delivery is skipped and the remaining
// fan-out continues. Returns the number of successful deliveries.
func (m *Rooms) Broadcast(key domain.RoomKey, payload []byte) int {
	m.mu.RLock()
	rm, ok := m.rooms[key]
	if !ok {
		m.mu.RUnlock()
		return 0
	}
	members := make([]uuid.UUID, 0, len(rm.members))
	for connID := range rm.members {
		members = append(members, connID)
	}
	m.mu.RUnlock()

	delivered := 0
	for _, connID := range members {
		if err := m.sender.Send(connID, payload); err != nil {
			m.logger.Debug("skipping member during broadcast",
				"room", key,
				"connection_id", connID,
				"error", err,
			)
			continue
		}
		delivered++
	}

	m.logger.Debug("broadcast complete",
		"room", key,
		"members", len(members),
		"delivered", delivered,
	)
	return delivered
}

// MemberCount returns the number of connections currently in the room.
func (m *Rooms) MemberCount(key domain.RoomKey) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rm, ok := m.rooms[key]; ok {
		return len(rm.members)
	}
	return 0
}

// RoomCount returns the number of rooms currently tracked, empty ones
// awaiting sweep included.
func (m *Rooms) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Sweep deletes rooms that have been empty for longer than idleFor.
func (m *Rooms) Sweep(idleFor time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idleFor)
	removed := 0
	for key, rm := range m.rooms {
		if len(rm.members) == 0 && !rm.emptySince.IsZero() && rm.emptySince.Before(cutoff) {
			delete(m.rooms, key)
			removed++
		}
	}

	if removed > 0 {
		m.logger.Debug("swept empty rooms", "count", removed)
	}
	return removed
}
