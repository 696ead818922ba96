package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the auth endpoints under api. loginLimit guards the
// login endpoint; it may be nil.
func RegisterRoutes(api *echo.Group, h *Handler, service AuthService, loginLimit echo.MiddlewareFunc) {
	g := api.Group("/auth")

	if loginLimit != nil {
		g.POST("/login", h.Login, loginLimit)
	} else {
		g.POST("/login", h.Login)
	}

	g.GET("/me", h.Me, RequireAuth(service))
}
