package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/clipstream/realtime-backend/internal/adapters/primary/http/middleware"
	"github.com/clipstream/realtime-backend/internal/core/domain"
	apperrors "github.com/clipstream/realtime-backend/internal/core/errors"
	"github.com/clipstream/realtime-backend/internal/core/ports"
)

// EventsHandler exposes the Emit entry point to the CRUD layer. It is the
// only write surface into the subsystem; the CRUD service calls it after a
// mutation commits.
type EventsHandler struct {
	dispatcher   ports.EventDispatcher
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(dispatcher ports.EventDispatcher, errorHandler *ErrorHandler, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		dispatcher:   dispatcher,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// EmitRequest is the JSON body for POST /events.
type EmitRequest struct {
	Kind        string    `json:"kind"`
	ContentType string    `json:"contentType,omitempty"`
	ContentID   int64     `json:"contentId,omitempty"`
	AuthorID    uuid.UUID `json:"authorId,omitempty"`
	ActorID     uuid.UUID `json:"actorId"`
	ActorName   string    `json:"actorName"`
	Count       int64     `json:"count"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// Validate checks the request shape field by field. Deeper semantic
// checks (kind validity, author existence) belong to the dispatcher.
func (req *EmitRequest) Validate() *apperrors.ValidationErrors {
	ve := apperrors.NewValidationErrors()

	if req.Kind == "" {
		ve.Add("kind", "kind is required")
	}
	if req.ActorID == uuid.Nil {
		ve.Add("actorId", "actorId is required")
	}
	if req.ActorName == "" {
		ve.Add("actorName", "actorName is required")
	}
	if req.Count < 0 {
		ve.Add("count", "count cannot be negative")
	}

	return ve
}

// EmitResponse reports what the dispatcher did with the event.
type EmitResponse struct {
	Result domain.DispatchResult `json:"result"`
}

// HandleEmit accepts a domain event for best-effort delivery. The
// response never reflects delivery outcomes; 202 means the event was
// valid and queued.
func (h *EventsHandler) HandleEmit(w http.ResponseWriter, r *http.Request) {
	var req EmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid request body"))
		return
	}

	if ve := req.Validate(); ve.HasErrors() {
		h.errorHandler.Handle(w, r, apperrors.NewValidationError(ve, "Event validation failed",
			map[string]interface{}{"fields": ve.Errors}))
		return
	}

	event := domain.DomainEvent{
		Kind:        domain.EventKind(req.Kind),
		ContentType: domain.ContentType(req.ContentType),
		ContentID:   req.ContentID,
		AuthorID:    req.AuthorID,
		ActorID:     req.ActorID,
		ActorName:   req.ActorName,
		Count:       req.Count,
		CreatedAt:   req.CreatedAt,
	}

	result, err := h.dispatcher.Emit(r.Context(), event)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	logger := h.logger
	if claims, ok := mw.ClaimsFromContext(r.Context()); ok {
		logger = logger.With("emitted_by", claims.UserID)
	}
	logger.Debug("event accepted", "kind", req.Kind, "result", result)

	WriteJSON(w, http.StatusAccepted, EmitResponse{Result: result})
}

// RegisterRoutes registers event routes
func (h *EventsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandleEmit)
}
