package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clipstream/realtime-backend/internal/core/domain"
)

// SessionRegistry maintains the user ↔ connection mapping and answers
// presence queries. Implementations must be safe for concurrent use;
// reads must not block on unrelated writes.
type SessionRegistry interface {
	// Register binds a connection to a user. A second connection for an
	// already-online user is additive (multi-device) and bumps the
	// session's reconnect counter.
	Register(connID, userID uuid.UUID)

	// Unregister removes a connection. Removing a user's last connection
	// flips the session offline but does not delete it.
	Unregister(connID uuid.UUID)

	// Touch records activity on a connection and its owning session.
	Touch(connID uuid.UUID)

	IsOnline(userID uuid.UUID) bool
	ActiveConnections(userID uuid.UUID) []uuid.UUID
	OnlineUsers() []uuid.UUID
	PresenceOf(userID uuid.UUID) domain.Presence
	SessionOf(userID uuid.UUID) (domain.SessionInfo, bool)

	// PurgeOffline deletes sessions that have been fully offline for
	// longer than the given retention and returns how many were removed.
	PurgeOffline(retention time.Duration) int
}

// RoomManager tracks dynamic topic subscriptions and fans payloads out to
// the current membership of a room.
type RoomManager interface {
	// Join and Leave are idempotent membership mutations.
	Join(room domain.RoomKey, connID uuid.UUID)
	Leave(room domain.RoomKey, connID uuid.UUID)

	// DropConnection removes the connection from every room it joined.
	DropConnection(connID uuid.UUID)

	// Broadcast delivers payload to every current member of the room. A
	// member that fails to receive is skipped; delivery to the rest
	// continues. Returns the number of successful deliveries.
	Broadcast(room domain.RoomKey, payload []byte) int

	MemberCount(room domain.RoomKey) int
	RoomCount() int

	// Sweep deletes rooms that have been empty for longer than idleFor
	// and returns how many were removed.
	Sweep(idleFor time.Duration) int
}

// PayloadSender delivers a payload to one connection. The Connection
// Gateway implements this for the Room Manager so broadcast code never
// touches sockets directly.
type PayloadSender interface {
	Send(connID uuid.UUID, payload []byte) error
}

// EventDispatcher is the single write entry point for the CRUD layer.
type EventDispatcher interface {
	// Emit validates, deduplicates, debounces, and routes a domain event.
	// It never blocks on delivery and never returns delivery errors; a
	// non-nil error always means the event was invalid and dropped.
	Emit(ctx context.Context, event domain.DomainEvent) (domain.DispatchResult, error)

	// Close flushes pending debounce windows and stops the dispatcher.
	Close()
}

// Broker is the shared distribution medium bridging sibling instances.
// Implementations degrade gracefully: a publish failure means the event
// is delivered locally only.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe registers a handler for a channel and starts consuming in
	// the background until the context is cancelled or the broker closed.
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error

	Close() error
}

// AuthorLookup resolves the author of a piece of content. Backed by the
// platform's relational store; results may be cached briefly since
// authorship changes are rare.
type AuthorLookup interface {
	GetAuthor(ctx context.Context, contentType domain.ContentType, contentID int64) (*domain.Author, error)
}

// TokenValidator validates a handshake token and resolves the identity
// behind it. Token issuance belongs to the platform's auth service.
type TokenValidator interface {
	Validate(token string) (domain.Identity, error)
}
