package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/manru/manru-be/internal/services"
)

const maxEventLimit = 100

// EventHandler handles HTTP requests related to account events.
type EventHandler struct {
	service services.EventServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider) *EventHandler {
	return &EventHandler{service: service}
}

// GetRecent returns the recent events of the account in the URL. Only the
// account owner may read them.
func (h *EventHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if requesterID(r) != id {
		writeError(w, services.ErrUnauthorized)
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20 // Default limit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	events, err := h.service.GetRecentEvents(r.Context(), id, limit)
	if err != nil {
		log.Error().Err(err).Str("user_id", id).Msg("Failed to retrieve events")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, events)
}
