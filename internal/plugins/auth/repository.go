package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/keyxmakerx/bizdir/internal/apperror"
)

// CredentialStore defines the data access contract for login accounts and
// their lockout counters. All SQL lives in the concrete implementation.
type CredentialStore interface {
	// FindByEmail resolves an active person's login account with role and
	// permissions. Returns a not_found AppError when nothing matches.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// SetFailedAttempts overwrites the failure counter.
	SetFailedAttempts(ctx context.Context, accountID string, attempts int) error

	// IncrementFailedAttempts adds one to the counter in a single statement
	// and returns the new value.
	IncrementFailedAttempts(ctx context.Context, accountID string) (int, error)

	// Lock sets locked_until unconditionally.
	Lock(ctx context.Context, accountID string, until time.Time) error

	// LockIfUnlocked sets locked_until only when no lock is recorded and
	// reports whether this call applied it.
	LockIfUnlocked(ctx context.Context, accountID string, until time.Time) (bool, error)

	// ResetLockout clears the counter and the lock together.
	ResetLockout(ctx context.Context, accountID string) error
}

// credentialStore implements CredentialStore on sqlx.
type credentialStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewCredentialStore creates a new store backed by the given DB pool.
func NewCredentialStore(db *sqlx.DB) CredentialStore {
	return &credentialStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// accountRow is the scan target for FindByEmail.
type accountRow struct {
	ID                  string     `db:"id"`
	PersonID            string     `db:"person_id"`
	Email               string     `db:"email"`
	FirstName           string     `db:"first_name"`
	LastName            string     `db:"last_name"`
	PasswordHash        string     `db:"password_hash"`
	UserType            string     `db:"user_type"`
	IsActive            bool       `db:"is_active"`
	FailedLoginAttempts int        `db:"failed_login_attempts"`
	LockedUntil         *time.Time `db:"locked_until"`
	RoleID              string     `db:"role_id"`
	RoleName            string     `db:"role_name"`
}

// FindByEmail matches case-insensitively. When an account holds several
// roles the first by name wins, keeping the result deterministic.
func (s *credentialStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	query := s.db.Rebind(`SELECT u.id, u.person_id, p.email, p.first_name, p.last_name,
	                 u.password_hash, u.user_type, u.is_active,
	                 u.failed_login_attempts, u.locked_until,
	                 r.id AS role_id, r.name AS role_name
	          FROM person p
	          JOIN app_user u ON u.person_id = p.id
	          JOIN app_user_role ur ON ur.app_user_id = u.id
	          JOIN role r ON r.id = ur.role_id
	          WHERE LOWER(p.email) = ? AND p.is_active = TRUE
	          ORDER BY r.name
	          LIMIT 1`)

	var row accountRow
	err := s.db.GetContext(ctx, &row, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying account by email: %w", err)
	}

	perms, err := s.permissionsForRole(ctx, row.RoleID)
	if err != nil {
		return nil, err
	}

	var lockedUntil *time.Time
	if row.LockedUntil != nil {
		t := row.LockedUntil.UTC()
		lockedUntil = &t
	}

	return &Account{
		ID:                  row.ID,
		PersonID:            row.PersonID,
		Email:               row.Email,
		FirstName:           row.FirstName,
		LastName:            row.LastName,
		PasswordHash:        row.PasswordHash,
		UserType:            row.UserType,
		IsActive:            row.IsActive,
		FailedLoginAttempts: row.FailedLoginAttempts,
		LockedUntil:         lockedUntil,
		RoleID:              row.RoleID,
		RoleName:            row.RoleName,
		Permissions:         perms,
	}, nil
}

func (s *credentialStore) permissionsForRole(ctx context.Context, roleID string) ([]Permission, error) {
	query := s.db.Rebind(`SELECT perm.id, perm.code
	          FROM role_permission rp
	          JOIN permission perm ON perm.id = rp.permission_id
	          WHERE rp.role_id = ?
	          ORDER BY perm.code`)

	perms := []Permission{}
	if err := s.db.SelectContext(ctx, &perms, query, roleID); err != nil {
		return nil, fmt.Errorf("querying role permissions: %w", err)
	}
	return perms, nil
}

func (s *credentialStore) SetFailedAttempts(ctx context.Context, accountID string, attempts int) error {
	query := s.db.Rebind(`UPDATE app_user SET failed_login_attempts = ?, updated_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, attempts, s.now(), accountID); err != nil {
		return fmt.Errorf("updating failed attempts: %w", err)
	}
	return nil
}

// IncrementFailedAttempts runs UPDATE ... SET n = n + 1 and reads the value
// back. Concurrent increments are never lost; the read may observe a later
// increment, which only makes locking sooner.
func (s *credentialStore) IncrementFailedAttempts(ctx context.Context, accountID string) (int, error) {
	update := s.db.Rebind(`UPDATE app_user SET failed_login_attempts = failed_login_attempts + 1, updated_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, update, s.now(), accountID); err != nil {
		return 0, fmt.Errorf("incrementing failed attempts: %w", err)
	}

	var attempts int
	read := s.db.Rebind(`SELECT failed_login_attempts FROM app_user WHERE id = ?`)
	if err := s.db.GetContext(ctx, &attempts, read, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperror.NewNotFound("account not found")
		}
		return 0, fmt.Errorf("reading failed attempts: %w", err)
	}
	return attempts, nil
}

func (s *credentialStore) Lock(ctx context.Context, accountID string, until time.Time) error {
	query := s.db.Rebind(`UPDATE app_user SET locked_until = ?, updated_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, until.UTC(), s.now(), accountID); err != nil {
		return fmt.Errorf("locking account: %w", err)
	}
	return nil
}

func (s *credentialStore) LockIfUnlocked(ctx context.Context, accountID string, until time.Time) (bool, error) {
	query := s.db.Rebind(`UPDATE app_user SET locked_until = ?, updated_at = ? WHERE id = ? AND locked_until IS NULL`)
	res, err := s.db.ExecContext(ctx, query, until.UTC(), s.now(), accountID)
	if err != nil {
		return false, fmt.Errorf("locking account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading lock result: %w", err)
	}
	return n > 0, nil
}

func (s *credentialStore) ResetLockout(ctx context.Context, accountID string) error {
	query := s.db.Rebind(`UPDATE app_user SET failed_login_attempts = 0, locked_until = NULL, updated_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, s.now(), accountID); err != nil {
		return fmt.Errorf("resetting lockout: %w", err)
	}
	return nil
}
