package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/bizdir/internal/apperror"
	"github.com/keyxmakerx/bizdir/internal/database/dbtest"
)

func seedEventType(t *testing.T, repo AuditRepository, code string) *EventType {
	t.Helper()
	et := &EventType{Code: code, Name: code}
	require.NoError(t, repo.CreateEventType(context.Background(), et))
	return et
}

func TestAuditRepository_LogAndList(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	success := seedEventType(t, repo, EventLoginSuccess)
	subject := "11111111-1111-1111-1111-111111111111"
	other := "22222222-2222-2222-2222-222222222222"
	table := TableAppUser
	base := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Log(ctx, &AuditEntry{
		SubjectID: &subject, ActorID: &subject, EventDate: base,
		EventTypeID: &success.ID, TableName: &table, RecordID: &subject,
		Details: map[string]any{"ip": "8.8.8.8", "failed_login_attempts": 0},
	}))
	require.NoError(t, repo.Log(ctx, &AuditEntry{
		SubjectID: &subject, EventDate: base.Add(time.Minute),
		Details: map[string]any{"comment": "no event type"},
	}))
	// Performed by the subject on someone else.
	require.NoError(t, repo.Log(ctx, &AuditEntry{
		SubjectID: &other, ActorID: &subject, EventDate: base.Add(2 * time.Minute),
	}))
	// Unrelated, and an unknown-identity attempt with no subject.
	require.NoError(t, repo.Log(ctx, &AuditEntry{SubjectID: &other, EventDate: base}))
	require.NoError(t, repo.Log(ctx, &AuditEntry{EventDate: base}))

	entries, err := repo.ListByAccount(ctx, subject, 50)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.True(t, entries[0].EventDate.After(entries[1].EventDate), "newest first")
	assert.Nil(t, entries[0].Details)
	assert.Equal(t, "no event type", entries[1].Details["comment"])
	assert.Nil(t, entries[1].EventTypeID)

	oldest := entries[2]
	assert.Equal(t, EventLoginSuccess, oldest.EventTypeName)
	assert.Equal(t, "8.8.8.8", oldest.Details["ip"])
	assert.EqualValues(t, 0, oldest.Details["failed_login_attempts"])
	assert.NotEmpty(t, oldest.ID)
}

func TestAuditRepository_ListRespectsLimit(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()
	subject := "11111111-1111-1111-1111-111111111111"

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Log(ctx, &AuditEntry{SubjectID: &subject}))
	}

	entries, err := repo.ListByAccount(ctx, subject, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestAuditRepository_EventTypeLifecycle(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	locked := seedEventType(t, repo, EventLoginLocked)

	found, err := repo.FindEventTypeByCode(ctx, EventLoginLocked)
	require.NoError(t, err)
	assert.Equal(t, locked.ID, found.ID)
	assert.True(t, found.IsActive)

	taken, err := repo.EventTypeCodeTaken(ctx, EventLoginLocked, "")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = repo.EventTypeCodeTaken(ctx, EventLoginLocked, locked.ID)
	require.NoError(t, err)
	assert.False(t, taken, "a row never conflicts with itself")

	require.NoError(t, repo.DeactivateEventType(ctx, locked.ID))

	_, err = repo.FindEventTypeByCode(ctx, EventLoginLocked)
	assert.True(t, apperror.IsNotFound(err), "inactive types are hidden from code lookup")

	byID, err := repo.FindEventTypeByID(ctx, locked.ID)
	require.NoError(t, err)
	assert.False(t, byID.IsActive)

	list, err := repo.ListEventTypes(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	byID.IsActive = true
	byID.Name = "Account locked"
	require.NoError(t, repo.UpdateEventType(ctx, byID))

	list, err = repo.ListEventTypes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Account locked", list[0].Name)
}

func TestAuditRepository_FindEventTypeMissing(t *testing.T) {
	repo := NewAuditRepository(dbtest.Open(t))

	_, err := repo.FindEventTypeByCode(context.Background(), "nope")
	assert.True(t, apperror.IsNotFound(err))

	_, err = repo.FindEventTypeByID(context.Background(), "nope")
	assert.True(t, apperror.IsNotFound(err))
}
