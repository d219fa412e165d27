// Package mocks provides testify mocks for the core ports.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/clipstream/realtime-backend/internal/core/domain"
)

// MockSessionRegistry is a mock implementation of ports.SessionRegistry
type MockSessionRegistry struct {
	mock.Mock
}

func (m *MockSessionRegistry) Register(connID, userID uuid.UUID) {
	m.Called(connID, userID)
}

func (m *MockSessionRegistry) Unregister(connID uuid.UUID) {
	m.Called(connID)
}

func (m *MockSessionRegistry) Touch(connID uuid.UUID) {
	m.Called(connID)
}

func (m *MockSessionRegistry) IsOnline(userID uuid.UUID) bool {
	args := m.Called(userID)
	return args.Bool(0)
}

func (m *MockSessionRegistry) ActiveConnections(userID uuid.UUID) []uuid.UUID {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]uuid.UUID)
}

func (m *MockSessionRegistry) OnlineUsers() []uuid.UUID {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]uuid.UUID)
}

func (m *MockSessionRegistry) PresenceOf(userID uuid.UUID) domain.Presence {
	args := m.Called(userID)
	return args.Get(0).(domain.Presence)
}

func (m *MockSessionRegistry) SessionOf(userID uuid.UUID) (domain.SessionInfo, bool) {
	args := m.Called(userID)
	return args.Get(0).(domain.SessionInfo), args.Bool(1)
}

func (m *MockSessionRegistry) PurgeOffline(retention time.Duration) int {
	args := m.Called(retention)
	return args.Int(0)
}

// MockRoomManager is a mock implementation of ports.RoomManager
type MockRoomManager struct {
	mock.Mock
}

func (m *MockRoomManager) Join(room domain.RoomKey, connID uuid.UUID) {
	m.Called(room, connID)
}

func (m *MockRoomManager) Leave(room domain.RoomKey, connID uuid.UUID) {
	m.Called(room, connID)
}

func (m *MockRoomManager) DropConnection(connID uuid.UUID) {
	m.Called(connID)
}

func (m *MockRoomManager) Broadcast(room domain.RoomKey, payload []byte) int {
	args := m.Called(room, payload)
	return args.Int(0)
}

func (m *MockRoomManager) MemberCount(room domain.RoomKey) int {
	args := m.Called(room)
	return args.Int(0)
}

func (m *MockRoomManager) RoomCount() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockRoomManager) Sweep(idleFor time.Duration) int {
	args := m.Called(idleFor)
	return args.Int(0)
}

// MockPayloadSender is a mock implementation of ports.PayloadSender
type MockPayloadSender struct {
	mock.Mock
}

func (m *MockPayloadSender) Send(connID uuid.UUID, payload []byte) error {
	args := m.Called(connID, payload)
	return args.Error(0)
}

// MockEventDispatcher is a mock implementation of ports.EventDispatcher
type MockEventDispatcher struct {
	mock.Mock
}

func (m *MockEventDispatcher) Emit(ctx context.Context, event domain.DomainEvent) (domain.DispatchResult, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(domain.DispatchResult), args.Error(1)
}

func (m *MockEventDispatcher) Close() {
	m.Called()
}

// MockBroker is a mock implementation of ports.Broker
type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	args := m.Called(ctx, channel, payload)
	return args.Error(0)
}

func (m *MockBroker) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

func (m *MockBroker) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockAuthorLookup is a mock implementation of ports.AuthorLookup
type MockAuthorLookup struct {
	mock.Mock
}

func (m *MockAuthorLookup) GetAuthor(ctx context.Context, contentType domain.ContentType, contentID int64) (*domain.Author, error) {
	args := m.Called(ctx, contentType, contentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Author), args.Error(1)
}

// MockTokenValidator is a mock implementation of ports.TokenValidator
type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) Validate(token string) (domain.Identity, error) {
	args := m.Called(token)
	return args.Get(0).(domain.Identity), args.Error(1)
}
