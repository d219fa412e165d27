package domain

import (
	"time"

	"github.com/google/uuid"
)

// PresenceStatus is a user's online/offline state.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// Presence is the answer to "is this user here right now".
type Presence struct {
	UserID   uuid.UUID      `json:"userId"`
	Status   PresenceStatus `json:"status"`
	LastSeen *time.Time     `json:"lastSeen,omitempty"`
}

// Identity is a validated user identity resolved from a handshake token.
type Identity struct {
	UserID      uuid.UUID
	DisplayName string
}

// Author identifies the owner of a piece of content.
type Author struct {
	ID          uuid.UUID
	DisplayName string
}

// SessionInfo is a read-only snapshot of one user's session aggregate.
type SessionInfo struct {
	UserID         uuid.UUID     `json:"userId"`
	Connections    int           `json:"connections"`
	FirstConnected time.Time     `json:"firstConnected"`
	LastSeen       time.Time     `json:"lastSeen"`
	Reconnects     int           `json:"reconnects"`
	ConnectedFor   time.Duration `json:"connectedFor"`
	Online         bool          `json:"online"`
}
