// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pulse/internal/modules/signal"
	"pulse/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// viewerPosition resolves the caller's position for viewer-scoped queries.
// Explicit lat/lng query params win over the process-wide watcher fix, so
// multiple clients behind one server each see their own surroundings.
func viewerPosition(c *gin.Context, positions signal.PositionProvider) *types.Point {
	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr != "" && lngStr != "" {
		lat, errLat := strconv.ParseFloat(latStr, 64)
		lng, errLng := strconv.ParseFloat(lngStr, 64)
		if errLat == nil && errLng == nil {
			return &types.Point{Lat: lat, Lng: lng}
		}
	}
	if p, err := positions.Current(c.Request.Context()); err == nil {
		return &p
	}
	return nil
}

func writeSignalError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, signal.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, signal.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, signal.ErrNoPosition):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, signal.ErrRateLimited):
		writeError(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, signal.ErrNotActive),
		errors.Is(err, signal.ErrAlreadyActive),
		errors.Is(err, signal.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
