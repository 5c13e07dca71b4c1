// README: Signal handlers for activate, color cycling, extend, deactivate.
package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pulse/internal/http/middleware"
	"pulse/internal/modules/matchmaker"
	"pulse/internal/modules/signal"
	"pulse/internal/types"
)

// MatchSessions is the slice of the matchmaker the handlers drive.
type MatchSessions interface {
	StartSession(ctx context.Context, viewer types.ID, activity signal.Activity, position types.Point) (*matchmaker.Session, error)
	StopSession(viewer types.ID)
}

type SignalHandler struct {
	signals *signal.Service
	matcher MatchSessions
	// appCtx bounds matching sessions to the process, not the request.
	appCtx context.Context
}

func NewSignalHandler(appCtx context.Context, signals *signal.Service, matcher MatchSessions) *SignalHandler {
	return &SignalHandler{signals: signals, matcher: matcher, appCtx: appCtx}
}

type activateReq struct {
	Activity            string `json:"activity"`
	LocationDescription string `json:"location_description"`
}

type signalResp struct {
	SignalID            types.ID  `json:"signal_id"`
	Activity            string    `json:"activity"`
	Color               string    `json:"color"`
	Status              string    `json:"status"`
	ExpiresAt           time.Time `json:"expires_at"`
	LocationDescription string    `json:"location_description,omitempty"`
}

func toSignalResp(sig *signal.Signal) signalResp {
	return signalResp{
		SignalID:            sig.ID,
		Activity:            string(sig.Activity),
		Color:               string(sig.Color),
		Status:              string(sig.Status),
		ExpiresAt:           sig.ExpiresAt,
		LocationDescription: sig.LocationDescription,
	}
}

func (h *SignalHandler) Activate(c *gin.Context) {
	uid := middleware.CallerUID(c)
	var req activateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	sig, err := h.signals.Activate(c.Request.Context(), signal.ActivateCommand{
		UserID:              types.ID(uid),
		Activity:            signal.Activity(req.Activity),
		LocationDescription: req.LocationDescription,
	})
	if err != nil {
		writeSignalError(c, err)
		return
	}
	// Matching runs for as long as the signal is live, not the request.
	if _, err := h.matcher.StartSession(h.appCtx, sig.UserID, sig.Activity, sig.Position); err != nil {
		log.Printf("match session for %s not started: %v", sig.UserID, err)
	}
	writeJSON(c, http.StatusCreated, toSignalResp(sig))
}

func (h *SignalHandler) CycleColor(c *gin.Context) {
	uid := middleware.CallerUID(c)
	sig, err := h.signals.CycleColor(c.Request.Context(), types.ID(uid))
	if err != nil {
		writeSignalError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toSignalResp(sig))
}

func (h *SignalHandler) Extend(c *gin.Context) {
	uid := middleware.CallerUID(c)
	sig, err := h.signals.Extend(c.Request.Context(), types.ID(uid))
	if err != nil {
		writeSignalError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toSignalResp(sig))
}

func (h *SignalHandler) Deactivate(c *gin.Context) {
	uid := middleware.CallerUID(c)
	if err := h.signals.Deactivate(c.Request.Context(), types.ID(uid)); err != nil {
		// The signal is still active (or already gone); either way its
		// matching session must not be torn down on a failed deactivate.
		writeSignalError(c, err)
		return
	}
	h.matcher.StopSession(types.ID(uid))
	writeJSON(c, http.StatusOK, map[string]any{"status": signal.StatusInactive})
}

func (h *SignalHandler) Get(c *gin.Context) {
	uid := middleware.CallerUID(c)
	sig, err := h.signals.Active(c.Request.Context(), types.ID(uid))
	if errors.Is(err, signal.ErrNotActive) {
		writeError(c, http.StatusNotFound, "no active signal")
		return
	}
	if err != nil {
		writeSignalError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toSignalResp(sig))
}
