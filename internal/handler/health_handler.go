package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StatsSource reports live session and connection counts.
type StatsSource interface {
	Stats() (sessions, clients int)
}

// HealthHandler serves liveness information.
type HealthHandler struct {
	stats   StatsSource
	service string
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(stats StatsSource, service string) *HealthHandler {
	return &HealthHandler{stats: stats, service: service}
}

// RegisterRoutes registers /health.
func (h *HealthHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	sessions, clients := h.stats.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"service":    h.service,
		"ws_clients": clients,
		"sessions":   sessions,
	})
}
