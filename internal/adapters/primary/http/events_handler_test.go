package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clipstream/realtime-backend/internal/core/domain"
	apperrors "github.com/clipstream/realtime-backend/internal/core/errors"
	"github.com/clipstream/realtime-backend/internal/core/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEventsHandler(dispatcher *mocks.MockEventDispatcher) *EventsHandler {
	logger := testLogger()
	return NewEventsHandler(dispatcher, NewErrorHandler(logger), logger)
}

func TestEventsHandler_HandleEmit_Accepted(t *testing.T) {
	dispatcher := new(mocks.MockEventDispatcher)
	handler := newEventsHandler(dispatcher)

	actorID := uuid.New()
	dispatcher.On("Emit", mock.Anything, mock.MatchedBy(func(e domain.DomainEvent) bool {
		return e.Kind == domain.KindContentLiked &&
			e.ContentType == domain.ContentPost &&
			e.ContentID == 42 &&
			e.ActorID == actorID
	})).Return(domain.DispatchAccepted, nil)

	body, err := json.Marshal(EmitRequest{
		Kind:        "CONTENT_LIKED",
		ContentType: "post",
		ContentID:   42,
		ActorID:     actorID,
		ActorName:   "jordan",
		Count:       7,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleEmit(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp EmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.DispatchAccepted, resp.Result)
	dispatcher.AssertExpectations(t)
}

func TestEventsHandler_HandleEmit_InvalidBody(t *testing.T) {
	dispatcher := new(mocks.MockEventDispatcher)
	handler := newEventsHandler(dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	handler.HandleEmit(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	dispatcher.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
}

func TestEventsHandler_HandleEmit_FieldErrors(t *testing.T) {
	dispatcher := new(mocks.MockEventDispatcher)
	handler := newEventsHandler(dispatcher)

	// Missing kind, actor, and actor name plus a negative count: every
	// bad field is reported and the dispatcher is never reached.
	body, err := json.Marshal(EmitRequest{Count: -1})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleEmit(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)

	fields, ok := resp.Details["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, fields, "kind")
	assert.Contains(t, fields, "actorId")
	assert.Contains(t, fields, "actorName")
	assert.Contains(t, fields, "count")

	dispatcher.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
}

func TestEventsHandler_HandleEmit_ValidationFailure(t *testing.T) {
	dispatcher := new(mocks.MockEventDispatcher)
	handler := newEventsHandler(dispatcher)

	dispatcher.On("Emit", mock.Anything, mock.Anything).
		Return(domain.DispatchResult(""), apperrors.ErrValidationFailed)

	body, err := json.Marshal(EmitRequest{Kind: "CONTENT_SHARED", ActorID: uuid.New(), ActorName: "jordan"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleEmit(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
}

func TestEventsHandler_HandleEmit_ShuttingDown(t *testing.T) {
	dispatcher := new(mocks.MockEventDispatcher)
	handler := newEventsHandler(dispatcher)

	dispatcher.On("Emit", mock.Anything, mock.Anything).
		Return(domain.DispatchResult(""), apperrors.ErrDispatcherClosed)

	body, err := json.Marshal(EmitRequest{Kind: "CONTENT_LIKED", ContentType: "post", ContentID: 1, ActorID: uuid.New(), ActorName: "jordan"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleEmit(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
