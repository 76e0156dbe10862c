package api

import (
	"github.com/gin-gonic/gin"

	"github.com/nullwave/edgetun/internal/api/handlers"
	"github.com/nullwave/edgetun/internal/api/middleware"
)

// RegisterRoutes wires the thin admin surface: a public liveness banner plus
// an API-key-protected group for everything that exposes UUID or traffic
// data.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, apiKey string) {
	r.GET("/", h.Liveness)

	protected := r.Group("/")
	protected.Use(middleware.RequireAPIKey(apiKey))

	protected.GET("/:uuid", h.UUIDLookup)

	apiGroup := protected.Group("/api")
	apiGroup.GET("/uuids", h.UUIDs)
	apiGroup.GET("/uuids/refresh", h.RefreshUUIDs)
	apiGroup.GET("/stats", h.Stats)
}
