package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstream/realtime-backend/internal/core/domain"
	apperrors "github.com/clipstream/realtime-backend/internal/core/errors"
)

// newTestGateway builds a gateway over fresh registry and rooms. Tests
// accept connections with a nil socket; pumps are never started, so the
// send channel is the only delivery surface exercised.
func newTestGateway(t *testing.T, cfg GatewayConfig) (*Gateway, *Registry, *Rooms) {
	t.Helper()

	registry := NewRegistry(testLogger())
	rooms := NewRooms(nil, testLogger())
	gateway := NewGateway(registry, rooms, cfg, testLogger())
	return gateway, registry, rooms
}

func testIdentity() domain.Identity {
	return domain.Identity{UserID: uuid.New(), DisplayName: "casey"}
}

func TestGateway_AcceptRegistersAndJoinsInbox(t *testing.T) {
	gateway, registry, rooms := newTestGateway(t, DefaultGatewayConfig())
	identity := testIdentity()

	client, err := gateway.Accept(nil, identity)
	require.NoError(t, err)

	assert.Equal(t, identity.UserID, client.UserID())
	assert.True(t, registry.IsOnline(identity.UserID))
	assert.Equal(t, 1, rooms.MemberCount(domain.UserRoom(identity.UserID)))
	assert.Equal(t, domain.ConnActive, gateway.StateOf(client.ID()))
	assert.Equal(t, 1, gateway.ConnectionCount())
}

func TestGateway_AcceptEnforcesConnectionCap(t *testing.T) {
	cfg := DefaultGatewayConfig()
	cfg.MaxConnsPerUser = 2
	gateway, _, _ := newTestGateway(t, cfg)
	identity := testIdentity()

	_, err := gateway.Accept(nil, identity)
	require.NoError(t, err)
	_, err = gateway.Accept(nil, identity)
	require.NoError(t, err)

	_, err = gateway.Accept(nil, identity)
	assert.ErrorIs(t, err, apperrors.ErrConnectionLimit)

	// A different user is unaffected.
	_, err = gateway.Accept(nil, testIdentity())
	assert.NoError(t, err)
}

func TestGateway_DisconnectCleansUp(t *testing.T) {
	gateway, registry, rooms := newTestGateway(t, DefaultGatewayConfig())
	identity := testIdentity()

	client, err := gateway.Accept(nil, identity)
	require.NoError(t, err)

	viewerRoom := domain.ContentRoom(domain.ContentPost, 5)
	require.NoError(t, gateway.JoinRoom(client.ID(), viewerRoom))

	gateway.Disconnect(client.ID(), domain.ReasonClientClosed)

	assert.False(t, registry.IsOnline(identity.UserID))
	assert.Equal(t, 0, rooms.MemberCount(viewerRoom))
	assert.Equal(t, 0, rooms.MemberCount(domain.UserRoom(identity.UserID)))
	assert.Equal(t, domain.ConnDisconnected, gateway.StateOf(client.ID()))

	// Disconnecting again is a no-op.
	gateway.Disconnect(client.ID(), domain.ReasonClientClosed)
}

func TestGateway_SendDeliversToClientBuffer(t *testing.T) {
	gateway, _, _ := newTestGateway(t, DefaultGatewayConfig())

	client, err := gateway.Accept(nil, testIdentity())
	require.NoError(t, err)

	require.NoError(t, gateway.Send(client.ID(), []byte("hello")))

	select {
	case payload := <-client.send:
		assert.Equal(t, []byte("hello"), payload)
	default:
		t.Fatal("expected payload in send buffer")
	}
}

func TestGateway_SendToUnknownConnection(t *testing.T) {
	gateway, _, _ := newTestGateway(t, DefaultGatewayConfig())

	err := gateway.Send(uuid.New(), []byte("x"))
	assert.ErrorIs(t, err, apperrors.ErrConnectionNotFound)
}

func TestGateway_SendBufferFullDisconnects(t *testing.T) {
	cfg := DefaultGatewayConfig()
	cfg.SendBufferSize = 1
	gateway, _, _ := newTestGateway(t, cfg)

	client, err := gateway.Accept(nil, testIdentity())
	require.NoError(t, err)

	require.NoError(t, gateway.Send(client.ID(), []byte("first")))

	err = gateway.Send(client.ID(), []byte("second"))
	assert.ErrorIs(t, err, apperrors.ErrDeliveryFailed)

	// The slow connection is torn down asynchronously.
	require.Eventually(t, func() bool {
		return gateway.ConnectionCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestGateway_SendRacesDisconnectSafely(t *testing.T) {
	// A member closing mid-broadcast must fail that one delivery, never
	// panic the process. Runs enough interleavings to catch a send on
	// the closed channel under -race.
	for i := 0; i < 200; i++ {
		gateway, _, _ := newTestGateway(t, DefaultGatewayConfig())

		client, err := gateway.Accept(nil, testIdentity())
		require.NoError(t, err)

		var wg sync.WaitGroup
		for s := 0; s < 8; s++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = gateway.Send(client.ID(), []byte(`{"seq":1}`))
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			gateway.Disconnect(client.ID(), domain.ReasonClientClosed)
		}()
		wg.Wait()

		assert.Equal(t, 0, gateway.ConnectionCount())
	}
}

func TestGateway_SendAfterTeardownFailsCleanly(t *testing.T) {
	gateway, _, _ := newTestGateway(t, DefaultGatewayConfig())

	client, err := gateway.Accept(nil, testIdentity())
	require.NoError(t, err)

	gateway.Disconnect(client.ID(), domain.ReasonClientClosed)

	assert.ErrorIs(t, gateway.Send(client.ID(), []byte("late")), apperrors.ErrConnectionNotFound)
	assert.ErrorIs(t, client.trySend([]byte("late")), apperrors.ErrConnectionClosed)
}

func TestGateway_JoinRoomRules(t *testing.T) {
	gateway, _, _ := newTestGateway(t, DefaultGatewayConfig())

	client, err := gateway.Accept(nil, testIdentity())
	require.NoError(t, err)

	t.Run("content room is allowed", func(t *testing.T) {
		assert.NoError(t, gateway.JoinRoom(client.ID(), domain.ContentRoom(domain.ContentVideo, 3)))
	})

	t.Run("user inbox rooms are gateway-managed", func(t *testing.T) {
		err := gateway.JoinRoom(client.ID(), domain.UserRoom(uuid.New()))
		assert.ErrorIs(t, err, apperrors.ErrRoomForbidden)
	})

	t.Run("malformed room keys are rejected", func(t *testing.T) {
		err := gateway.JoinRoom(client.ID(), domain.RoomKey("content:story:1"))
		assert.ErrorIs(t, err, apperrors.ErrInvalidRoom)
	})

	t.Run("unknown connection", func(t *testing.T) {
		err := gateway.JoinRoom(uuid.New(), domain.ContentRoom(domain.ContentPost, 1))
		assert.ErrorIs(t, err, apperrors.ErrConnectionNotFound)
	})
}

func TestGateway_LeaveRoomIgnoresInbox(t *testing.T) {
	gateway, _, rooms := newTestGateway(t, DefaultGatewayConfig())
	identity := testIdentity()

	client, err := gateway.Accept(nil, identity)
	require.NoError(t, err)

	gateway.LeaveRoom(client.ID(), domain.UserRoom(identity.UserID))

	// The inbox membership must survive client-initiated leaves.
	assert.Equal(t, 1, rooms.MemberCount(domain.UserRoom(identity.UserID)))
}

func TestGateway_SweepLifecycle(t *testing.T) {
	gateway, _, _ := newTestGateway(t, DefaultGatewayConfig())

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := start
	gateway.now = func() time.Time { return current }

	client, err := gateway.Accept(nil, testIdentity())
	require.NoError(t, err)

	// Quiet past the idle threshold: active -> idle.
	current = start.Add(3 * time.Minute)
	gateway.sweep()
	assert.Equal(t, domain.ConnIdle, gateway.StateOf(client.ID()))

	// A heartbeat flips the connection back to active.
	gateway.Heartbeat(client.ID())
	assert.Equal(t, domain.ConnActive, gateway.StateOf(client.ID()))

	// Quiet past the inactivity threshold: force-disconnect.
	current = current.Add(6 * time.Minute)
	gateway.sweep()
	assert.Equal(t, domain.ConnDisconnected, gateway.StateOf(client.ID()))
	assert.Equal(t, 0, gateway.ConnectionCount())
}

func TestGateway_CloseDisconnectsEverything(t *testing.T) {
	gateway, registry, _ := newTestGateway(t, DefaultGatewayConfig())

	id1 := testIdentity()
	id2 := testIdentity()
	_, err := gateway.Accept(nil, id1)
	require.NoError(t, err)
	_, err = gateway.Accept(nil, id2)
	require.NoError(t, err)

	gateway.Close()

	assert.Equal(t, 0, gateway.ConnectionCount())
	assert.False(t, registry.IsOnline(id1.UserID))
	assert.False(t, registry.IsOnline(id2.UserID))
}

func TestGateway_AllowAttemptThrottles(t *testing.T) {
	cfg := DefaultGatewayConfig()
	cfg.ConnectRPS = 1
	cfg.ConnectBurst = 2
	gateway, _, _ := newTestGateway(t, cfg)
	userID := uuid.New()

	assert.True(t, gateway.AllowAttempt(userID))
	assert.True(t, gateway.AllowAttempt(userID))
	assert.False(t, gateway.AllowAttempt(userID))

	// Other identities have their own budget.
	assert.True(t, gateway.AllowAttempt(uuid.New()))
}
