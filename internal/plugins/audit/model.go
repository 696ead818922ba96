// Package audit provides the append-only audit ledger. Authentication
// events (every login attempt, whatever its outcome) and administrative
// actions are recorded as AuditEntry rows in audit_log, each optionally
// tagged with an EventType from a small catalogue.
//
// Entries are never updated or deleted. Writers in the login path treat
// the ledger as best effort: a failed write is logged, never surfaced.
package audit

import "time"

// --- Event Codes ---
// Codes follow "resource.outcome" and are seeded by migration 000002.

const (
	// EventLoginSuccess is recorded when credentials match an active account.
	EventLoginSuccess = "login.success"

	// EventLoginUnknownIdentity is recorded when no account matches the email.
	EventLoginUnknownIdentity = "login.unknown_identity"

	// EventLoginBadPassword is recorded when the password does not match.
	EventLoginBadPassword = "login.bad_password"

	// EventLoginLocked is recorded when an account is locked, newly or already.
	EventLoginLocked = "login.locked"

	// EventLoginInactive is recorded when credentials match a deactivated account.
	EventLoginInactive = "login.inactive"
)

// LoginEventCodes lists every code the login flow writes.
var LoginEventCodes = []string{
	EventLoginSuccess,
	EventLoginUnknownIdentity,
	EventLoginBadPassword,
	EventLoginLocked,
	EventLoginInactive,
}

// TableAppUser is the record table referenced by login audit entries.
const TableAppUser = "app_user"

// AuditEntry is one immutable ledger row. SubjectID is the account the
// event is about and is nil when no account could be resolved, such as a
// login attempt for an unknown email. EventTypeID is nil when the code was
// not found in the catalogue.
type AuditEntry struct {
	ID          string         `json:"id"`
	SubjectID   *string        `json:"app_user_id"`
	ActorID     *string        `json:"performed_by_id"`
	EventDate   time.Time      `json:"event_date"`
	EventTypeID *string        `json:"event_type_id"`
	TableName   *string        `json:"table_name,omitempty"`
	RecordID    *string        `json:"record_id,omitempty"`
	Details     map[string]any `json:"event_details,omitempty"`

	// EventTypeName is joined from event_type for display. Not stored in
	// audit_log.
	EventTypeName string `json:"event_type_name,omitempty"`
}

// EventType classifies audit entries. Deactivated types stay referenced by
// old entries but are no longer returned by code lookups.
type EventType struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	IsActive  bool       `json:"is_active"`
	CreatedBy *string    `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// CreateEntryInput is the payload for recording an entry through the API.
type CreateEntryInput struct {
	SubjectID   string         `json:"app_user_id" validate:"required,uuid"`
	ActorID     string         `json:"performed_by_id" validate:"required,uuid"`
	EventTypeID string         `json:"event_type_id" validate:"required,uuid"`
	TableName   string         `json:"table_name" validate:"omitempty,max=100"`
	RecordID    string         `json:"record_id" validate:"required,uuid"`
	Details     map[string]any `json:"event_details"`
}

// EventTypeInput is the payload for creating or updating an event type.
// IsActive is only honoured on update.
type EventTypeInput struct {
	Code     string `json:"code" validate:"required,max=100"`
	Name     string `json:"name" validate:"required,max=150"`
	IsActive *bool  `json:"is_active"`
}
