package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/application"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/platform/response"
)

// RouteHandler handles one-shot route lookups.
type RouteHandler struct {
	service *application.RouteService
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(service *application.RouteService) *RouteHandler {
	return &RouteHandler{service: service}
}

// RegisterRoutes registers the route lookup endpoints.
func (h *RouteHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/route", h.GetRoute)
	r.GET("/route/enriched", h.GetEnrichedRoute)
}

// RouteRequest is the query string of a route lookup.
type RouteRequest struct {
	StartLat     *float64 `form:"start_lat" binding:"required,latitude"`
	StartLng     *float64 `form:"start_lng" binding:"required,longitude"`
	EndLat       *float64 `form:"end_lat" binding:"required,latitude"`
	EndLng       *float64 `form:"end_lng" binding:"required,longitude"`
	Alternatives *bool    `form:"alternatives"`
}

func (r RouteRequest) query() application.RouteQuery {
	alternatives := true
	if r.Alternatives != nil {
		alternatives = *r.Alternatives
	}
	return application.RouteQuery{
		Start:        geo.NewCoordinate(*r.StartLat, *r.StartLng),
		End:          geo.NewCoordinate(*r.EndLat, *r.EndLng),
		Alternatives: alternatives,
	}
}

// GetRoute handles GET /route.
func (h *RouteHandler) GetRoute(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.GetRoute(c.Request.Context(), req.query())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// GetEnrichedRoute handles GET /route/enriched.
func (h *RouteHandler) GetEnrichedRoute(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.GetEnrichedRoute(c.Request.Context(), req.query())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
