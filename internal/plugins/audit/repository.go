package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/keyxmakerx/bizdir/internal/apperror"
)

// AuditRepository defines the data access contract for the ledger and the
// event type catalogue. All SQL lives in the concrete implementation. There
// is deliberately no update or delete for audit entries.
type AuditRepository interface {
	// Log appends an entry. ID and EventDate are filled in when empty.
	Log(ctx context.Context, entry *AuditEntry) error

	// ListByAccount returns entries where the account is subject or actor,
	// newest first, with the event type name joined in.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]AuditEntry, error)

	// FindEventTypeByCode returns the active event type with the given code.
	FindEventTypeByCode(ctx context.Context, code string) (*EventType, error)

	FindEventTypeByID(ctx context.Context, id string) (*EventType, error)
	ListEventTypes(ctx context.Context) ([]EventType, error)

	// EventTypeCodeTaken reports whether another event type (active or not)
	// already uses code. excludeID is ignored when empty.
	EventTypeCodeTaken(ctx context.Context, code, excludeID string) (bool, error)

	CreateEventType(ctx context.Context, et *EventType) error
	UpdateEventType(ctx context.Context, et *EventType) error
	DeactivateEventType(ctx context.Context, id string) error
}

// auditRepository implements AuditRepository on sqlx. Queries use '?'
// placeholders and are rebound for the connected driver.
type auditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new repository backed by the given DB pool.
func NewAuditRepository(db *sqlx.DB) AuditRepository {
	return &auditRepository{db: db}
}

// auditRow is the scan target for audit_log queries.
type auditRow struct {
	ID            string    `db:"id"`
	SubjectID     *string   `db:"app_user_id"`
	ActorID       *string   `db:"performed_by_id"`
	EventDate     time.Time `db:"event_date"`
	EventTypeID   *string   `db:"event_type_id"`
	TableName     *string   `db:"table_name"`
	RecordID      *string   `db:"record_id"`
	Details       []byte    `db:"event_details"`
	EventTypeName string    `db:"event_type_name"`
}

func (r auditRow) toEntry() AuditEntry {
	e := AuditEntry{
		ID:            r.ID,
		SubjectID:     r.SubjectID,
		ActorID:       r.ActorID,
		EventDate:     r.EventDate,
		EventTypeID:   r.EventTypeID,
		TableName:     r.TableName,
		RecordID:      r.RecordID,
		EventTypeName: r.EventTypeName,
	}
	if len(r.Details) > 0 {
		if err := json.Unmarshal(r.Details, &e.Details); err != nil {
			// Non-fatal: keep the history readable.
			e.Details = map[string]any{"_parse_error": "invalid JSON"}
		}
	}
	return e
}

// eventTypeRow is the scan target for event_type queries.
type eventTypeRow struct {
	ID        string     `db:"id"`
	Code      string     `db:"code"`
	Name      string     `db:"name"`
	IsActive  bool       `db:"is_active"`
	CreatedBy *string    `db:"created_by"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
}

func (r eventTypeRow) toEventType() EventType {
	return EventType(r)
}

const eventTypeColumns = `id, code, name, is_active, created_by, created_at, updated_at`

// Log inserts a new audit entry. Details are serialized to a JSON string
// (text binds cleanly to JSON, JSONB and TEXT columns alike); nil details
// are stored as SQL NULL.
func (r *auditRepository) Log(ctx context.Context, entry *AuditEntry) error {
	var details any
	if entry.Details != nil {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshaling audit details: %w", err)
		}
		details = string(raw)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.EventDate.IsZero() {
		entry.EventDate = time.Now().UTC()
	}

	query := r.db.Rebind(`INSERT INTO audit_log
	          (id, app_user_id, performed_by_id, event_date, event_type_id, table_name, record_id, event_details)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	if _, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.SubjectID, entry.ActorID, entry.EventDate,
		entry.EventTypeID, entry.TableName, entry.RecordID, details,
	); err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListByAccount returns the account's history, newest first.
func (r *auditRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]AuditEntry, error) {
	query := r.db.Rebind(`SELECT a.id, a.app_user_id, a.performed_by_id, a.event_date,
	                 a.event_type_id, a.table_name, a.record_id, a.event_details,
	                 COALESCE(et.name, '') AS event_type_name
	          FROM audit_log a
	          LEFT JOIN event_type et ON et.id = a.event_type_id
	          WHERE a.app_user_id = ? OR a.performed_by_id = ?
	          ORDER BY a.event_date DESC
	          LIMIT ?`)

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, accountID, accountID, limit); err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}

	entries := make([]AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toEntry())
	}
	return entries, nil
}

// FindEventTypeByCode returns the active event type with the given code.
func (r *auditRepository) FindEventTypeByCode(ctx context.Context, code string) (*EventType, error) {
	query := r.db.Rebind(`SELECT ` + eventTypeColumns + `
	          FROM event_type WHERE code = ? AND is_active = TRUE`)
	return r.getEventType(ctx, query, code)
}

// FindEventTypeByID returns an event type by ID regardless of status.
func (r *auditRepository) FindEventTypeByID(ctx context.Context, id string) (*EventType, error) {
	query := r.db.Rebind(`SELECT ` + eventTypeColumns + ` FROM event_type WHERE id = ?`)
	return r.getEventType(ctx, query, id)
}

func (r *auditRepository) getEventType(ctx context.Context, query string, arg any) (*EventType, error) {
	var row eventTypeRow
	err := r.db.GetContext(ctx, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("event type not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying event type: %w", err)
	}
	et := row.toEventType()
	return &et, nil
}

// ListEventTypes returns all active event types ordered by code.
func (r *auditRepository) ListEventTypes(ctx context.Context) ([]EventType, error) {
	query := `SELECT ` + eventTypeColumns + ` FROM event_type WHERE is_active = TRUE ORDER BY code`

	var rows []eventTypeRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("listing event types: %w", err)
	}

	types := make([]EventType, 0, len(rows))
	for _, row := range rows {
		types = append(types, row.toEventType())
	}
	return types, nil
}

// EventTypeCodeTaken checks code uniqueness across active and inactive types.
func (r *auditRepository) EventTypeCodeTaken(ctx context.Context, code, excludeID string) (bool, error) {
	query := `SELECT COUNT(*) FROM event_type WHERE code = ?`
	args := []any{code}
	if excludeID != "" {
		query += ` AND id <> ?`
		args = append(args, excludeID)
	}

	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), args...); err != nil {
		return false, fmt.Errorf("checking event type code: %w", err)
	}
	return n > 0, nil
}

// CreateEventType inserts a new active event type.
func (r *auditRepository) CreateEventType(ctx context.Context, et *EventType) error {
	if et.ID == "" {
		et.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	et.CreatedAt = now
	et.UpdatedAt = &now
	et.IsActive = true

	query := r.db.Rebind(`INSERT INTO event_type (id, code, name, is_active, created_by, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, query,
		et.ID, et.Code, et.Name, et.IsActive, et.CreatedBy, et.CreatedAt, now,
	); err != nil {
		return fmt.Errorf("inserting event type: %w", err)
	}
	return nil
}

// UpdateEventType rewrites code, name and status.
func (r *auditRepository) UpdateEventType(ctx context.Context, et *EventType) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`UPDATE event_type SET code = ?, name = ?, is_active = ?, updated_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, et.Code, et.Name, et.IsActive, now, et.ID); err != nil {
		return fmt.Errorf("updating event type: %w", err)
	}
	et.UpdatedAt = &now
	return nil
}

// DeactivateEventType soft-deletes an event type. Entries referencing it
// keep the reference.
func (r *auditRepository) DeactivateEventType(ctx context.Context, id string) error {
	query := r.db.Rebind(`UPDATE event_type SET is_active = FALSE, updated_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("deactivating event type: %w", err)
	}
	return nil
}
