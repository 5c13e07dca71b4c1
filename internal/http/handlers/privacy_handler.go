// README: Reveal and message-quota handlers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulse/internal/geo"
	"pulse/internal/http/middleware"
	"pulse/internal/modules/ratelimit"
	"pulse/internal/modules/signal"
	"pulse/internal/modules/visibility"
	"pulse/internal/types"
)

type PrivacyHandler struct {
	visibility *visibility.Service
	policy     visibility.PolicyStore
	signals    *signal.Service
	positions  signal.PositionProvider
	reveals    *ratelimit.Limiter
	messages   *ratelimit.Cap
}

func NewPrivacyHandler(
	vis *visibility.Service,
	policy visibility.PolicyStore,
	signals *signal.Service,
	positions signal.PositionProvider,
	reveals *ratelimit.Limiter,
	messages *ratelimit.Cap,
) *PrivacyHandler {
	return &PrivacyHandler{
		visibility: vis,
		policy:     policy,
		signals:    signals,
		positions:  positions,
		reveals:    reveals,
		messages:   messages,
	}
}

// Reveal returns the target's public profile, spending one reveal from the
// caller's hourly allowance. A target that is out of range, ghosted, or
// blocked reads the same as one with no signal at all.
func (h *PrivacyHandler) Reveal(c *gin.Context) {
	uid := types.ID(middleware.CallerUID(c))
	target := types.ID(c.Param("id"))
	if target == "" || target == uid {
		writeError(c, http.StatusBadRequest, "invalid target")
		return
	}
	ctx := c.Request.Context()

	decision := h.reveals.CheckAllowed(ctx, uid)
	if !decision.Allowed {
		writeError(c, http.StatusTooManyRequests, "reveal limit reached")
		return
	}

	viewerPos, err := h.positions.Current(ctx)
	if err != nil {
		writeError(c, http.StatusUnprocessableEntity, "position unavailable")
		return
	}
	sig, err := h.signals.Active(ctx, target)
	if errors.Is(err, signal.ErrNotActive) {
		writeError(c, http.StatusNotFound, "user not nearby")
		return
	}
	if err != nil {
		writeSignalError(c, err)
		return
	}

	// Reveals always respect the visibility radius, including for users in
	// unlimited mode: seeing a pin far away is not the same as unmasking it.
	settings := h.visibility.ViewerSettings(ctx, uid)
	dist := geo.DistanceMeters(viewerPos, sig.Position)
	if dist > settings.VisibilityM {
		writeError(c, http.StatusNotFound, "user not nearby")
		return
	}
	if ghosted, err := h.policy.GhostMode(ctx, target); err != nil || ghosted {
		writeError(c, http.StatusNotFound, "user not nearby")
		return
	}
	if blocked, err := h.policy.IsBlocked(ctx, uid, target); err != nil || blocked {
		writeError(c, http.StatusNotFound, "user not nearby")
		return
	}

	profile, err := h.policy.PublicProfile(ctx, target)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	h.reveals.RecordEvent(ctx, uid)

	writeJSON(c, http.StatusOK, map[string]any{
		"user_id":      target,
		"display_name": profile.DisplayName,
		"avatar":       profile.Avatar,
		"rating":       profile.Rating,
		"distance":     geo.FormatDistance(dist),
		"distance_m":   dist,
	})
}

// MessageQuota reports the remaining lifetime message allowance for an
// interaction.
func (h *PrivacyHandler) MessageQuota(c *gin.Context) {
	interaction := types.ID(c.Param("interaction"))
	if interaction == "" {
		writeError(c, http.StatusBadRequest, "missing interaction id")
		return
	}
	decision := h.messages.CheckAllowed(c.Request.Context(), interaction)
	writeJSON(c, http.StatusOK, map[string]any{
		"remaining": decision.Remaining,
		"max":       h.messages.Max(),
	})
}

// ConsumeMessage spends one message from an interaction's allowance.
func (h *PrivacyHandler) ConsumeMessage(c *gin.Context) {
	interaction := types.ID(c.Param("interaction"))
	if interaction == "" {
		writeError(c, http.StatusBadRequest, "missing interaction id")
		return
	}
	ctx := c.Request.Context()
	decision := h.messages.CheckAllowed(ctx, interaction)
	if !decision.Allowed {
		writeJSON(c, http.StatusTooManyRequests, map[string]any{
			"error":     "message limit reached",
			"remaining": 0,
			"max":       h.messages.Max(),
		})
		return
	}
	h.messages.RecordEvent(ctx, interaction)
	writeJSON(c, http.StatusOK, map[string]any{
		"remaining": decision.Remaining - 1,
		"max":       h.messages.Max(),
	})
}
