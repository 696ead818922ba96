package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins is the list of origins permitted to make cross-origin
	// requests. Use ["*"] to allow all (not recommended for production).
	AllowedOrigins []string

	// AllowCredentials indicates whether the browser may send credentials
	// with cross-origin requests.
	AllowCredentials bool
}

// CORS returns middleware that handles Cross-Origin Resource Sharing headers
// for the admin frontend, which is served from a different origin than the
// API. Requests from unlisted origins pass through without CORS headers and
// are blocked by the browser.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	allowAll := false
	originSet := make(map[string]bool)
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[o] = true
	}

	// Wildcard origin with credentials would let any site make
	// authenticated requests.
	if allowAll && cfg.AllowCredentials {
		slog.Warn("CORS: wildcard origin with credentials is insecure; credentials disabled")
		cfg.AllowCredentials = false
	}

	allowMethods := strings.Join([]string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
		http.MethodOptions,
	}, ", ")
	allowHeaders := strings.Join([]string{
		echo.HeaderContentType,
		echo.HeaderAuthorization,
		echo.HeaderXRequestID,
	}, ", ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			origin := req.Header.Get("Origin")

			if origin == "" || !(allowAll || originSet[origin]) {
				return next(c)
			}

			res.Header().Set("Access-Control-Allow-Origin", origin)
			res.Header().Add("Vary", "Origin")
			if cfg.AllowCredentials {
				res.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if req.Method == http.MethodOptions {
				res.Header().Set("Access-Control-Allow-Methods", allowMethods)
				res.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				res.Header().Set("Access-Control-Max-Age", "3600")
				return c.NoContent(http.StatusNoContent)
			}

			res.Header().Set("Access-Control-Expose-Headers", echo.HeaderXRequestID)
			return next(c)
		}
	}
}
