package audit

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the ledger and event type endpoints under api. Every
// route sits behind requireAuth.
func RegisterRoutes(api *echo.Group, h *Handler, requireAuth echo.MiddlewareFunc) {
	logs := api.Group("/audit-logs", requireAuth)
	logs.GET("/person/:accountId", h.ListForAccount)
	logs.POST("", h.Create)

	types := api.Group("/event-types", requireAuth)
	types.GET("", h.ListEventTypes)
	types.GET("/code/:code", h.GetEventTypeByCode)
	types.GET("/:id", h.GetEventType)
	types.POST("", h.CreateEventType)
	types.PUT("/:id", h.UpdateEventType)
	types.DELETE("/:id", h.DeactivateEventType)
}
