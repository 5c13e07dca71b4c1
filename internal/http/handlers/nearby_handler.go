// README: Nearby users handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pulse/internal/geo"
	"pulse/internal/http/middleware"
	"pulse/internal/modules/signal"
	"pulse/internal/modules/visibility"
	"pulse/internal/types"
)

type NearbyHandler struct {
	visibility *visibility.Service
	positions  signal.PositionProvider
}

func NewNearbyHandler(vis *visibility.Service, positions signal.PositionProvider) *NearbyHandler {
	return &NearbyHandler{visibility: vis, positions: positions}
}

type nearbyEntry struct {
	UserID      types.ID `json:"user_id"`
	SignalID    types.ID `json:"signal_id"`
	DisplayName string   `json:"display_name"`
	Avatar      string   `json:"avatar,omitempty"`
	Rating      float64  `json:"rating"`
	Activity    string   `json:"activity"`
	Color       string   `json:"color"`
	DistanceM   float64  `json:"distance_m"`
	Distance    string   `json:"distance"`
}

func (h *NearbyHandler) List(c *gin.Context) {
	uid := middleware.CallerUID(c)

	// No position yields an empty list, not an error: the map simply has
	// nothing to anchor on yet.
	pos := viewerPosition(c, h.positions)

	candidates := h.visibility.Nearby(c.Request.Context(), types.ID(uid), pos)
	entries := make([]nearbyEntry, 0, len(candidates))
	for _, cand := range candidates {
		entries = append(entries, nearbyEntry{
			UserID:      cand.UserID,
			SignalID:    cand.SignalID,
			DisplayName: cand.DisplayName,
			Avatar:      cand.Avatar,
			Rating:      cand.Rating,
			Activity:    string(cand.Activity),
			Color:       string(cand.Color),
			DistanceM:   cand.DistanceM,
			Distance:    geo.FormatDistance(cand.DistanceM),
		})
	}
	writeJSON(c, http.StatusOK, map[string]any{"users": entries})
}
