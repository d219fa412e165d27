package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clipstream/realtime-backend/internal/core/domain"
	apperrors "github.com/clipstream/realtime-backend/internal/core/errors"
	"github.com/clipstream/realtime-backend/internal/core/ports"
)

// PresenceHandler exposes the read-only presence and membership queries
// used for "who's online" and "who's viewing" affordances.
type PresenceHandler struct {
	registry     ports.SessionRegistry
	rooms        ports.RoomManager
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(
	registry ports.SessionRegistry,
	rooms ports.RoomManager,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *PresenceHandler {
	return &PresenceHandler{
		registry:     registry,
		rooms:        rooms,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// HandleGetPresence returns one user's presence.
func (h *PresenceHandler) HandleGetPresence(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid user ID"))
		return
	}

	WriteSuccess(w, h.registry.PresenceOf(userID))
}

// HandleListOnline returns every currently online user.
func (h *PresenceHandler) HandleListOnline(w http.ResponseWriter, r *http.Request) {
	users := h.registry.OnlineUsers()
	WriteList(w, users)
}

// ViewerCountResponse reports how many connections are watching a piece
// of content right now.
type ViewerCountResponse struct {
	ContentType domain.ContentType `json:"contentType"`
	ContentID   int64              `json:"contentId"`
	Viewers     int                `json:"viewers"`
}

// HandleViewerCount returns the member count of a content viewer room.
func (h *PresenceHandler) HandleViewerCount(w http.ResponseWriter, r *http.Request) {
	contentType := domain.ContentType(chi.URLParam(r, "type"))
	if !contentType.Valid() {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(apperrors.ErrUnknownContent, "Unknown content type"))
		return
	}

	contentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || contentID <= 0 {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(apperrors.ErrContentIDRequired, "Invalid content ID"))
		return
	}

	room := domain.ContentRoom(contentType, contentID)
	WriteSuccess(w, ViewerCountResponse{
		ContentType: contentType,
		ContentID:   contentID,
		Viewers:     h.rooms.MemberCount(room),
	})
}

// RegisterRoutes registers presence routes
func (h *PresenceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/presence", h.HandleListOnline)
	r.Get("/presence/{userID}", h.HandleGetPresence)
	r.Get("/content/{type}/{id}/viewers", h.HandleViewerCount)
}
