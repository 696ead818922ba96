package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Context keys for storing token data in Echo context. Other plugins use
// the exported getters below to read them.
const (
	contextKeyClaims = "auth_claims"
	contextKeyUserID = "auth_user_id"
)

// RequireAuth returns middleware that validates the bearer token and
// injects its claims into the request context. Rejections are 401 JSON
// with a machine-readable error code.
func RequireAuth(service AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request())
			if token == "" {
				return unauthenticated(c, "MISSING_TOKEN", "authentication required")
			}

			claims, err := service.VerifyToken(c.Request().Context(), token)
			if err != nil {
				code := TokenInvalid.Code()
				if te, ok := IsTokenError(err); ok {
					code = te.Kind.Code()
				}
				return unauthenticated(c, code, tokenMessage(code))
			}

			c.Set(contextKeyClaims, claims)
			c.Set(contextKeyUserID, claims.UserID)

			return next(c)
		}
	}
}

func unauthenticated(c echo.Context, code, message string) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"error":   code,
		"message": message,
	})
}

func tokenMessage(code string) string {
	switch code {
	case "TOKEN_EXPIRED":
		return "session expired, please log in again"
	case "INVALID_TOKEN":
		return "invalid token"
	default:
		return "authentication failed"
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// --- Exported getters for other plugins ---

// GetClaims retrieves the verified token claims from the Echo context.
// Returns nil if the request is not authenticated.
func GetClaims(c echo.Context) *Claims {
	claims, ok := c.Get(contextKeyClaims).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetUserID retrieves the authenticated account ID from the Echo context.
// Returns empty string if the request is not authenticated.
func GetUserID(c echo.Context) string {
	id, ok := c.Get(contextKeyUserID).(string)
	if !ok {
		return ""
	}
	return id
}
