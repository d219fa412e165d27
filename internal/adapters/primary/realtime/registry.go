package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipstream/realtime-backend/internal/core/domain"
	"github.com/clipstream/realtime-backend/internal/core/ports"
)

// session aggregates all open connections for one user. It outlives its
// last connection: an empty session is offline, not gone, until the
// gateway sweep purges it.
type session struct {
	userID         uuid.UUID
	conns          map[uuid.UUID]time.Time // connection ID -> opened at
	firstConnected time.Time
	lastSeen       time.Time
	reconnects     int
	connectedFor   time.Duration // accumulated across closed connections
	offlineSince   time.Time
}

func (s *session) online() bool {
	return len(s.conns) > 0
}

// Registry is the in-memory bidirectional index of connections and user
// identities. It is constructed explicitly and injected; there is no
// package-level instance.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*session   // user ID -> session
	owners   map[uuid.UUID]uuid.UUID  // connection ID -> user ID
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.SessionRegistry = (*Registry)(nil)

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*session),
		owners:   make(map[uuid.UUID]uuid.UUID),
		logger:   logger.With("component", "session_registry"),
		now:      time.Now,
	}
}

// Register binds a connection to a user. A second connection for an
// already-online user is additive and increments the reconnect counter;
// existing connections are untouched.
func (r *Registry) Register(connID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.owners[connID] = userID

	s, ok := r.sessions[userID]
	if !ok {
		s = &session{
			userID:         userID,
			conns:          make(map[uuid.UUID]time.Time),
			firstConnected: now,
		}
		r.sessions[userID] = s
	} else {
		s.reconnects++
	}

	s.conns[connID] = now
	s.lastSeen = now
	s.offlineSince = time.Time{}

	r.logger.Info("connection registered",
		"user_id", userID,
		"connection_id", connID,
		"total_connections", len(s.conns),
	)
}

// Unregister removes a connection from its session. The session flips to
// offline when its last connection goes, but stays queryable until purged.
// Unknown connection IDs are a no-op.
func (r *Registry) Unregister(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[connID]
	if !ok {
		return
	}
	delete(r.owners, connID)

	s, ok := r.sessions[userID]
	if !ok {
		return
	}

	now := r.now()
	if openedAt, ok := s.conns[connID]; ok {
		s.connectedFor += now.Sub(openedAt)
		delete(s.conns, connID)
	}
	s.lastSeen = now

	if len(s.conns) == 0 {
		s.offlineSince = now
		r.logger.Info("session offline", "user_id", userID)
	}
}

// Touch records activity on a connection's owning session.
func (r *Registry) Touch(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[connID]
	if !ok {
		return
	}
	if s, ok := r.sessions[userID]; ok {
		s.lastSeen = r.now()
	}
}

// IsOnline reports whether the user has at least one open connection.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	return ok && s.online()
}

// ActiveConnections returns the user's current connection IDs.
func (r *Registry) ActiveConnections(userID uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	if !ok {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	return ids
}

// OnlineUsers returns every user with at least one open connection.
func (r *Registry) OnlineUsers() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]uuid.UUID, 0, len(r.sessions))
	for id, s := range r.sessions {
		if s.online() {
			users = append(users, id)
		}
	}
	return users
}

// PresenceOf returns the user's presence. Users the registry has never
// seen report offline with no lastSeen.
func (r *Registry) PresenceOf(userID uuid.UUID) domain.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p := domain.Presence{UserID: userID, Status: domain.PresenceOffline}
	s, ok := r.sessions[userID]
	if !ok {
		return p
	}
	lastSeen := s.lastSeen
	p.LastSeen = &lastSeen
	if s.online() {
		p.Status = domain.PresenceOnline
	}
	return p
}

// SessionOf returns a snapshot of the user's session aggregate.
func (r *Registry) SessionOf(userID uuid.UUID) (domain.SessionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	if !ok {
		return domain.SessionInfo{}, false
	}

	connectedFor := s.connectedFor
	now := r.now()
	for _, openedAt := range s.conns {
		connectedFor += now.Sub(openedAt)
	}

	return domain.SessionInfo{
		UserID:         s.userID,
		Connections:    len(s.conns),
		FirstConnected: s.firstConnected,
		LastSeen:       s.lastSeen,
		Reconnects:     s.reconnects,
		ConnectedFor:   connectedFor,
		Online:         s.online(),
	}, true
}

// PurgeOffline deletes sessions that have been fully offline for longer
// than the retention window.
func (r *Registry) PurgeOffline(retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-retention)
	purged := 0
	for userID, s := range r.sessions {
		if !s.online() && !s.offlineSince.IsZero() && s.offlineSince.Before(cutoff) {
			delete(r.sessions, userID)
			purged++
		}
	}

	if purged > 0 {
		r.logger.Info("purged offline sessions", "count", purged)
	}
	return purged
}

// UserOf resolves the owning user of a connection.
func (r *Registry) UserOf(connID uuid.UUID) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.owners[connID]
	return userID, ok
}
