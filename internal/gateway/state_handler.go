package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"podium-backend/internal/room"
)

// StateHandler serves the diagnostic read surface: full snapshots of every
// live room. Read-only, no side effects.
type StateHandler struct {
	registry *room.Registry
}

func NewStateHandler(registry *room.Registry) *StateHandler {
	return &StateHandler{registry: registry}
}

// HandleListRooms handles GET /debug/rooms.
func (h *StateHandler) HandleListRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snaps := h.registry.Snapshots()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snaps); err != nil {
		log.Error().Err(err).Msg("failed to encode rooms response")
	}
}
