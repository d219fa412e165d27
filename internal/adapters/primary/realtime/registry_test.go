package realtime

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstream/realtime-backend/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_RegisterAndOnline(t *testing.T) {
	r := NewRegistry(testLogger())
	userID := uuid.New()
	connID := uuid.New()

	assert.False(t, r.IsOnline(userID))

	r.Register(connID, userID)

	assert.True(t, r.IsOnline(userID))
	assert.Equal(t, []uuid.UUID{connID}, r.ActiveConnections(userID))

	owner, ok := r.UserOf(connID)
	require.True(t, ok)
	assert.Equal(t, userID, owner)
}

func TestRegistry_MultiDevice(t *testing.T) {
	r := NewRegistry(testLogger())
	userID := uuid.New()
	conn1 := uuid.New()
	conn2 := uuid.New()

	r.Register(conn1, userID)
	r.Register(conn2, userID)

	assert.Len(t, r.ActiveConnections(userID), 2)

	info, ok := r.SessionOf(userID)
	require.True(t, ok)
	assert.Equal(t, 2, info.Connections)
	assert.Equal(t, 1, info.Reconnects)
	assert.True(t, info.Online)

	// Dropping one device keeps the user online.
	r.Unregister(conn1)
	assert.True(t, r.IsOnline(userID))
	assert.Equal(t, []uuid.UUID{conn2}, r.ActiveConnections(userID))
}

func TestRegistry_LastConnectionFlipsOffline(t *testing.T) {
	r := NewRegistry(testLogger())
	userID := uuid.New()
	connID := uuid.New()

	r.Register(connID, userID)
	r.Unregister(connID)

	assert.False(t, r.IsOnline(userID))

	// The session survives going offline and stays queryable.
	info, ok := r.SessionOf(userID)
	require.True(t, ok)
	assert.False(t, info.Online)
	assert.Equal(t, 0, info.Connections)

	p := r.PresenceOf(userID)
	assert.Equal(t, domain.PresenceOffline, p.Status)
	require.NotNil(t, p.LastSeen)
}

func TestRegistry_UnregisterUnknownConnection(t *testing.T) {
	r := NewRegistry(testLogger())

	// Must not panic or create state.
	r.Unregister(uuid.New())
	assert.Empty(t, r.OnlineUsers())
}

func TestRegistry_PresenceOfUnknownUser(t *testing.T) {
	r := NewRegistry(testLogger())

	p := r.PresenceOf(uuid.New())
	assert.Equal(t, domain.PresenceOffline, p.Status)
	assert.Nil(t, p.LastSeen)
}

func TestRegistry_OnlineUsers(t *testing.T) {
	r := NewRegistry(testLogger())
	online := uuid.New()
	offline := uuid.New()
	conn1 := uuid.New()
	conn2 := uuid.New()

	r.Register(conn1, online)
	r.Register(conn2, offline)
	r.Unregister(conn2)

	users := r.OnlineUsers()
	assert.Equal(t, []uuid.UUID{online}, users)
}

func TestRegistry_Touch(t *testing.T) {
	r := NewRegistry(testLogger())
	userID := uuid.New()
	connID := uuid.New()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := start
	r.now = func() time.Time { return current }

	r.Register(connID, userID)

	current = start.Add(90 * time.Second)
	r.Touch(connID)

	p := r.PresenceOf(userID)
	require.NotNil(t, p.LastSeen)
	assert.Equal(t, current, *p.LastSeen)
}

func TestRegistry_ConnectedForAccumulates(t *testing.T) {
	r := NewRegistry(testLogger())
	userID := uuid.New()
	conn1 := uuid.New()
	conn2 := uuid.New()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := start
	r.now = func() time.Time { return current }

	r.Register(conn1, userID)

	current = start.Add(time.Minute)
	r.Unregister(conn1)

	current = start.Add(2 * time.Minute)
	r.Register(conn2, userID)

	current = start.Add(5 * time.Minute)
	info, ok := r.SessionOf(userID)
	require.True(t, ok)

	// 1 minute from the closed connection plus 3 minutes live.
	assert.Equal(t, 4*time.Minute, info.ConnectedFor)
	assert.Equal(t, 1, info.Reconnects)
}

func TestRegistry_PurgeOffline(t *testing.T) {
	r := NewRegistry(testLogger())
	staleUser := uuid.New()
	freshUser := uuid.New()
	onlineUser := uuid.New()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := start
	r.now = func() time.Time { return current }

	staleConn := uuid.New()
	r.Register(staleConn, staleUser)
	r.Unregister(staleConn)

	current = start.Add(23 * time.Hour)
	freshConn := uuid.New()
	r.Register(freshConn, freshUser)
	r.Unregister(freshConn)

	r.Register(uuid.New(), onlineUser)

	current = start.Add(25 * time.Hour)
	purged := r.PurgeOffline(24 * time.Hour)

	assert.Equal(t, 1, purged)
	_, staleFound := r.SessionOf(staleUser)
	assert.False(t, staleFound)
	_, freshFound := r.SessionOf(freshUser)
	assert.True(t, freshFound)
	assert.True(t, r.IsOnline(onlineUser))
}

func TestRegistry_ReconnectClearsOfflineMark(t *testing.T) {
	r := NewRegistry(testLogger())
	userID := uuid.New()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := start
	r.now = func() time.Time { return current }

	conn1 := uuid.New()
	r.Register(conn1, userID)
	r.Unregister(conn1)

	// Reconnect just before the retention cutoff.
	current = start.Add(time.Hour)
	r.Register(uuid.New(), userID)

	current = start.Add(48 * time.Hour)
	// Still online, so the session must survive any purge.
	assert.Equal(t, 0, r.PurgeOffline(24*time.Hour))
	assert.True(t, r.IsOnline(userID))
}
