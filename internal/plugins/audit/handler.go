package audit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/bizdir/internal/apperror"
)

// ActorFunc returns the authenticated account ID for a request, or "".
type ActorFunc func(c echo.Context) string

// Handler handles HTTP requests for the ledger and event types. Handlers are
// thin: bind request, call service, render response.
type Handler struct {
	service AuditService
	actor   ActorFunc
}

// NewHandler creates a new audit handler. actor identifies the caller for
// created_by bookkeeping.
func NewHandler(service AuditService, actor ActorFunc) *Handler {
	return &Handler{service: service, actor: actor}
}

// bindAndValidate binds the JSON body into dst and runs struct validation.
func bindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	return c.Validate(dst)
}

// ListForAccount returns an account's audit history
// (GET /api/audit-logs/person/:accountId).
func (h *Handler) ListForAccount(c echo.Context) error {
	entries, err := h.service.ListForAccount(c.Request().Context(), c.Param("accountId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data":  entries,
		"total": len(entries),
	})
}

// Create records an audit entry (POST /api/audit-logs) performed by the
// authenticated account.
func (h *Handler) Create(c echo.Context) error {
	var input CreateEntryInput
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	// The bearer is always the actor; a body-supplied performer is ignored.
	if actor := h.actor(c); actor != "" {
		input.ActorID = actor
	}
	if err := c.Validate(&input); err != nil {
		return err
	}

	entry, err := h.service.Create(c.Request().Context(), input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, entry)
}

// ListEventTypes returns the active catalogue (GET /api/event-types).
func (h *Handler) ListEventTypes(c echo.Context) error {
	types, err := h.service.ListEventTypes(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, types)
}

// GetEventTypeByCode returns an active event type (GET /api/event-types/code/:code).
func (h *Handler) GetEventTypeByCode(c echo.Context) error {
	et, err := h.service.FindEventTypeByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, et)
}

// GetEventType returns an event type by ID (GET /api/event-types/:id).
func (h *Handler) GetEventType(c echo.Context) error {
	et, err := h.service.GetEventType(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, et)
}

// CreateEventType adds an event type (POST /api/event-types).
func (h *Handler) CreateEventType(c echo.Context) error {
	var input EventTypeInput
	if err := bindAndValidate(c, &input); err != nil {
		return err
	}

	et, err := h.service.CreateEventType(c.Request().Context(), input, h.actor(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, et)
}

// UpdateEventType edits an event type (PUT /api/event-types/:id).
func (h *Handler) UpdateEventType(c echo.Context) error {
	var input EventTypeInput
	if err := bindAndValidate(c, &input); err != nil {
		return err
	}

	et, err := h.service.UpdateEventType(c.Request().Context(), c.Param("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, et)
}

// DeactivateEventType soft-deletes an event type (DELETE /api/event-types/:id).
func (h *Handler) DeactivateEventType(c echo.Context) error {
	if err := h.service.DeactivateEventType(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
