// README: HTTP router registration.
package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulse/internal/http/handlers"
	"pulse/internal/http/middleware"
	"pulse/internal/modules/matchmaker"
	"pulse/internal/modules/ratelimit"
	"pulse/internal/modules/signal"
	"pulse/internal/modules/visibility"
)

type RouterDeps struct {
	Signals    *signal.Service
	Matcher    *matchmaker.Service
	Visibility *visibility.Service
	Policy     visibility.PolicyStore
	Positions  signal.PositionProvider
	Reveals    *ratelimit.Limiter
	Messages   *ratelimit.Cap
}

func NewRouter(appCtx context.Context, deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Identity())

	signalHandler := handlers.NewSignalHandler(appCtx, deps.Signals, deps.Matcher)
	api.POST("/signals", signalHandler.Activate)
	api.GET("/signals", signalHandler.Get)
	api.POST("/signals/color", signalHandler.CycleColor)
	api.POST("/signals/extend", signalHandler.Extend)
	api.DELETE("/signals", signalHandler.Deactivate)

	nearbyHandler := handlers.NewNearbyHandler(deps.Visibility, deps.Positions)
	api.GET("/nearby", nearbyHandler.List)

	mapHandler := handlers.NewMapHandler(deps.Visibility, deps.Positions)
	api.GET("/map/clusters", mapHandler.Clusters)
	api.GET("/map/clusters/:id/expansion", mapHandler.Expansion)
	api.GET("/map/clusters/:id/leaves", mapHandler.Leaves)

	privacyHandler := handlers.NewPrivacyHandler(
		deps.Visibility, deps.Policy, deps.Signals, deps.Positions, deps.Reveals, deps.Messages)
	api.POST("/users/:id/reveal", privacyHandler.Reveal)
	api.GET("/messages/:interaction/quota", privacyHandler.MessageQuota)
	api.POST("/messages/:interaction", privacyHandler.ConsumeMessage)

	return r
}
