// Package auth handles login, account lockout and session tokens for bizdir.
// Accounts are looked up by email, passwords verified against bcrypt (or
// argon2id) hashes, and repeated failures lock the account for a fixed
// window. Every attempt is written to the audit ledger with the client's
// address and location. Successful logins receive a signed JWT.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"
)

// Permission is a capability granted through the account's role.
type Permission struct {
	ID   string `json:"id" db:"id"`
	Code string `json:"code" db:"code"`
}

// Account is a login identity joined with its person and role. Only active
// persons resolve to an Account.
type Account struct {
	ID                  string
	PersonID            string
	Email               string
	FirstName           string
	LastName            string
	PasswordHash        string
	UserType            string
	IsActive            bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	RoleID              string
	RoleName            string
	Permissions         []Permission
}

// IsLocked reports whether the lock window is still running at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// PermissionSet returns the permission codes as a lookup set.
func (a *Account) PermissionSet() map[string]bool {
	set := make(map[string]bool, len(a.Permissions))
	for _, p := range a.Permissions {
		set[p.Code] = true
	}
	return set
}

// Summary returns the public view of the account embedded in tokens and
// login responses.
func (a *Account) Summary() AccountSummary {
	perms := a.Permissions
	if perms == nil {
		perms = []Permission{}
	}
	return AccountSummary{
		ID:          a.ID,
		PersonID:    a.PersonID,
		Email:       a.Email,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		Role:        a.RoleName,
		UserType:    a.UserType,
		Permissions: perms,
	}
}

// AccountSummary is the client-visible identity of a logged-in account.
type AccountSummary struct {
	ID          string       `json:"id"`
	PersonID    string       `json:"person_id"`
	Email       string       `json:"email"`
	FirstName   string       `json:"first_name"`
	LastName    string       `json:"last_name"`
	Role        string       `json:"role"`
	UserType    string       `json:"user_type"`
	Permissions []Permission `json:"permissions"`
}

// --- Lockout policy ---

// LockoutPolicy bounds failed attempts. Built from config at startup and
// never mutated.
type LockoutPolicy struct {
	// MaxAttempts is the failure count at which the account is locked.
	MaxAttempts int

	// LockDuration is how long a lock lasts.
	LockDuration time.Duration

	// EnforceLockOnSuccess rejects correct passwords while locked. When
	// false a correct password clears a running lock.
	EnforceLockOnSuccess bool

	// AtomicLockout makes the counter increment and lock write single
	// conditional statements instead of read-modify-write.
	AtomicLockout bool
}

// DefaultLockoutPolicy is five failures, fifteen minutes.
var DefaultLockoutPolicy = LockoutPolicy{
	MaxAttempts:  5,
	LockDuration: 15 * time.Minute,
}

// --- Login outcomes ---

// OutcomeKind classifies a completed login attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeInvalidCredentials
	OutcomeAccountLocked
	OutcomeAccountInactive
)

// String returns the metric label for the outcome.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidCredentials:
		return "invalid_credentials"
	case OutcomeAccountLocked:
		return "account_locked"
	case OutcomeAccountInactive:
		return "account_inactive"
	default:
		return "unknown"
	}
}

// LoginOutcome is the result of AttemptLogin. Expected failures (unknown
// email, wrong password, lock, inactive) are outcomes, not errors.
type LoginOutcome struct {
	Kind OutcomeKind

	// Token and Account are set on success.
	Token          string
	TokenExpiresAt time.Time
	Account        *AccountSummary

	// Attempts is the persisted failure count after this attempt. Nil when
	// no account was resolved or the count is not reported.
	Attempts *int

	// LockedUntil is set on OutcomeAccountLocked.
	LockedUntil *time.Time
}

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest holds the login payload. Email format is not validated so
// that malformed identities still reach the audit trail as unknown.
type LoginRequest struct {
	Email    string `json:"email" form:"email" validate:"required,max=255"`
	Password string `json:"password" form:"password" validate:"required,max=1024"`
}

// --- Service Input DTOs (passed from handler to service) ---

// LoginInput is the input for one login attempt.
type LoginInput struct {
	Email    string
	Password string
}
