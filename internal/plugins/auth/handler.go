package auth

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/bizdir/internal/apperror"
)

// Client-facing messages. The credentials message is identical for unknown
// emails and wrong passwords.
const (
	msgInvalidCredentials = "Invalid credentials"
	msgAccountLocked      = "Account temporarily locked due to multiple failed login attempts"
	msgAccountInactive    = "Account is inactive. Contact an administrator."
)

// Handler handles HTTP requests for authentication. Handlers are thin: they
// bind the request, call the service, and render the response.
type Handler struct {
	service AuthService
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service AuthService) *Handler {
	return &Handler{service: service}
}

// Login processes a login attempt (POST /api/auth/login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	r := c.Request()
	outcome, err := h.service.AttemptLogin(r.Context(),
		LoginInput{Email: req.Email, Password: req.Password},
		RequestContext{Header: r.Header, RemoteAddr: r.RemoteAddr, UserAgent: r.UserAgent()},
	)
	if err != nil {
		return err
	}

	switch outcome.Kind {
	case OutcomeSuccess:
		return c.JSON(http.StatusOK, map[string]any{
			"token":      outcome.Token,
			"expires_at": outcome.TokenExpiresAt.UTC().Format(time.RFC3339),
			"user":       outcome.Account,
		})

	case OutcomeAccountLocked:
		body := map[string]any{"message": lockedMessage(outcome)}
		if outcome.LockedUntil != nil {
			body["blocked_until"] = outcome.LockedUntil.UTC().Format(time.RFC3339)
		}
		if outcome.Attempts != nil {
			body["failed_login_attempts"] = *outcome.Attempts
		}
		return c.JSON(http.StatusLocked, body)

	case OutcomeAccountInactive:
		return c.JSON(http.StatusLocked, map[string]any{
			"message":   msgAccountInactive,
			"is_active": false,
		})

	default:
		body := map[string]any{"message": msgInvalidCredentials}
		if outcome.Attempts != nil {
			body["failed_login_attempts"] = *outcome.Attempts
		}
		return c.JSON(http.StatusUnauthorized, body)
	}
}

// lockedMessage names the remaining lock time in whole minutes when known.
func lockedMessage(outcome *LoginOutcome) string {
	if outcome.LockedUntil == nil {
		return msgAccountLocked
	}
	remaining := time.Until(*outcome.LockedUntil)
	if remaining <= 0 {
		return msgAccountLocked
	}
	minutes := int(math.Ceil(remaining.Minutes()))
	return fmt.Sprintf("%s. Try again in %d minute(s).", msgAccountLocked, minutes)
}

// Me returns the claims of the current token (GET /api/auth/me).
func (h *Handler) Me(c echo.Context) error {
	claims := GetClaims(c)
	if claims == nil {
		return apperror.NewUnauthorized("authentication required")
	}
	body := map[string]any{
		"id":          claims.UserID,
		"person_id":   claims.PersonID,
		"email":       claims.Email,
		"first_name":  claims.FirstName,
		"last_name":   claims.LastName,
		"role":        claims.Role,
		"user_type":   claims.UserType,
		"permissions": claims.Permissions,
	}
	if claims.ExpiresAt != nil {
		body["expires_at"] = claims.ExpiresAt.Time.UTC().Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, body)
}
