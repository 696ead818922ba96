package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/keyxmakerx/bizdir/internal/apperror"
	"github.com/keyxmakerx/bizdir/internal/sanitize"
)

// maxAccountHistoryEntries caps the number of entries returned for a single
// account to prevent unbounded result sets.
const maxAccountHistoryEntries = 200

// AuditService handles business logic for the ledger and the event type
// catalogue. It validates inputs and delegates persistence to the repository.
type AuditService interface {
	// Record appends an entry as-is. Subject and event type may be nil.
	// Callers on the login path ignore the returned error after logging it.
	Record(ctx context.Context, entry *AuditEntry) error

	// Create appends an entry submitted through the API, where subject,
	// actor, event type and record are all required.
	Create(ctx context.Context, input CreateEntryInput) (*AuditEntry, error)

	// ListForAccount returns the account's history, newest first.
	ListForAccount(ctx context.Context, accountID string) ([]AuditEntry, error)

	// FindEventTypeByCode returns the active event type for code, or a
	// not_found AppError.
	FindEventTypeByCode(ctx context.Context, code string) (*EventType, error)

	GetEventType(ctx context.Context, id string) (*EventType, error)
	ListEventTypes(ctx context.Context) ([]EventType, error)
	CreateEventType(ctx context.Context, input EventTypeInput, createdBy string) (*EventType, error)
	UpdateEventType(ctx context.Context, id string, input EventTypeInput) (*EventType, error)
	DeactivateEventType(ctx context.Context, id string) error
}

// auditService implements AuditService.
type auditService struct {
	repo AuditRepository
	now  func() time.Time
}

// NewAuditService creates a new audit service with the given repository.
func NewAuditService(repo AuditRepository) AuditService {
	return &auditService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Record persists an entry. Failures are logged here and returned wrapped
// as an internal error; the ledger never retries.
func (s *auditService) Record(ctx context.Context, entry *AuditEntry) error {
	if entry.EventDate.IsZero() {
		entry.EventDate = s.now()
	}
	entry.Details = sanitize.Details(entry.Details)

	if err := s.repo.Log(ctx, entry); err != nil {
		slog.Error("failed to write audit log entry",
			slog.Any("event_type_id", entry.EventTypeID),
			slog.Any("app_user_id", entry.SubjectID),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("writing audit entry: %w", err))
	}
	return nil
}

// Create validates the referenced event type and appends the entry.
func (s *auditService) Create(ctx context.Context, input CreateEntryInput) (*AuditEntry, error) {
	if _, err := s.repo.FindEventTypeByID(ctx, input.EventTypeID); err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewBadRequest("event type does not exist")
		}
		return nil, apperror.NewInternal(fmt.Errorf("checking event type: %w", err))
	}

	entry := &AuditEntry{
		SubjectID:   &input.SubjectID,
		ActorID:     &input.ActorID,
		EventTypeID: &input.EventTypeID,
		RecordID:    &input.RecordID,
		Details:     input.Details,
	}
	if input.TableName != "" {
		entry.TableName = &input.TableName
	}

	if err := s.Record(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListForAccount returns up to maxAccountHistoryEntries entries.
func (s *auditService) ListForAccount(ctx context.Context, accountID string) ([]AuditEntry, error) {
	if accountID == "" {
		return nil, apperror.NewBadRequest("account ID is required")
	}

	entries, err := s.repo.ListByAccount(ctx, accountID, maxAccountHistoryEntries)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing account history: %w", err))
	}
	return entries, nil
}

func (s *auditService) FindEventTypeByCode(ctx context.Context, code string) (*EventType, error) {
	et, err := s.repo.FindEventTypeByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding event type by code: %w", err))
	}
	return et, nil
}

func (s *auditService) GetEventType(ctx context.Context, id string) (*EventType, error) {
	et, err := s.repo.FindEventTypeByID(ctx, id)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding event type: %w", err))
	}
	return et, nil
}

func (s *auditService) ListEventTypes(ctx context.Context) ([]EventType, error) {
	types, err := s.repo.ListEventTypes(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing event types: %w", err))
	}
	return types, nil
}

// CreateEventType adds a catalogue entry. Codes are unique across active
// and inactive types.
func (s *auditService) CreateEventType(ctx context.Context, input EventTypeInput, createdBy string) (*EventType, error) {
	code := strings.TrimSpace(input.Code)
	name := sanitize.Text(strings.TrimSpace(input.Name))
	if code == "" || name == "" {
		return nil, apperror.NewValidation("code and name are required")
	}

	taken, err := s.repo.EventTypeCodeTaken(ctx, code, "")
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if taken {
		return nil, apperror.NewConflict("an event type with this code already exists")
	}

	et := &EventType{Code: code, Name: name}
	if createdBy != "" {
		et.CreatedBy = &createdBy
	}
	if err := s.repo.CreateEventType(ctx, et); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating event type: %w", err))
	}

	slog.Info("event type created", slog.String("code", et.Code), slog.String("id", et.ID))
	return et, nil
}

// UpdateEventType changes code, name and optionally the active flag.
func (s *auditService) UpdateEventType(ctx context.Context, id string, input EventTypeInput) (*EventType, error) {
	et, err := s.GetEventType(ctx, id)
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(input.Code)
	name := sanitize.Text(strings.TrimSpace(input.Name))
	if code == "" || name == "" {
		return nil, apperror.NewValidation("code and name are required")
	}

	if code != et.Code {
		taken, err := s.repo.EventTypeCodeTaken(ctx, code, id)
		if err != nil {
			return nil, apperror.NewInternal(err)
		}
		if taken {
			return nil, apperror.NewConflict("an event type with this code already exists")
		}
	}

	et.Code = code
	et.Name = name
	if input.IsActive != nil {
		et.IsActive = *input.IsActive
	}

	if err := s.repo.UpdateEventType(ctx, et); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("updating event type: %w", err))
	}
	return et, nil
}

// DeactivateEventType soft-deletes an event type.
func (s *auditService) DeactivateEventType(ctx context.Context, id string) error {
	if _, err := s.GetEventType(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeactivateEventType(ctx, id); err != nil {
		return apperror.NewInternal(fmt.Errorf("deactivating event type: %w", err))
	}
	return nil
}
