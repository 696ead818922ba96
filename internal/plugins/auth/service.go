package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/keyxmakerx/bizdir/internal/apperror"
	"github.com/keyxmakerx/bizdir/internal/geoip"
	"github.com/keyxmakerx/bizdir/internal/metrics"
	"github.com/keyxmakerx/bizdir/internal/plugins/audit"
)

// verifyPassword is swapped in tests.
var verifyPassword = VerifyPassword

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the store directly.
type AuthService interface {
	// AttemptLogin runs one login attempt through the lockout state machine
	// and records it in the audit ledger. Expected failures come back as
	// outcomes; only infrastructure failures are errors.
	AttemptLogin(ctx context.Context, input LoginInput, rc RequestContext) (*LoginOutcome, error)

	// VerifyToken validates a bearer token. Errors are *TokenError.
	VerifyToken(ctx context.Context, token string) (*Claims, error)

	// Unlock clears the lockout state of the account with the given email.
	Unlock(ctx context.Context, email string) (*Account, error)
}

// RequestContext carries the request metadata written to audit details.
type RequestContext struct {
	Header     http.Header
	RemoteAddr string
	UserAgent  string
}

// AuditRecorder is the slice of the audit service the login flow uses.
type AuditRecorder interface {
	FindEventTypeByCode(ctx context.Context, code string) (*audit.EventType, error)
	Record(ctx context.Context, entry *audit.AuditEntry) error
}

// Locator resolves client addresses and locations for audit details. It
// never fails; unknowns come back as geoip.NotAvailable.
type Locator interface {
	ResolveClientAddress(ctx context.Context, header http.Header, remoteAddr string) string
	ResolveLocation(ctx context.Context, ip string) string
}

// authService implements AuthService.
type authService struct {
	store   CredentialStore
	tokens  *TokenIssuer
	ledger  AuditRecorder
	locator Locator
	policy  LockoutPolicy
	now     func() time.Time
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(store CredentialStore, tokens *TokenIssuer, ledger AuditRecorder, locator Locator, policy LockoutPolicy) AuthService {
	return &authService{
		store:   store,
		tokens:  tokens,
		ledger:  ledger,
		locator: locator,
		policy:  policy,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AttemptLogin resolves the identity, checks the password, and walks the
// lockout rules. Exactly one audit entry is written per completed attempt.
func (s *authService) AttemptLogin(ctx context.Context, input LoginInput, rc RequestContext) (*LoginOutcome, error) {
	email := normalizeEmail(input.Email)

	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if apperror.IsNotFound(err) {
			verifyPassword(decoyHash(), input.Password)
			s.recordEvent(ctx, audit.EventLoginUnknownIdentity, nil, email, rc, "unknown email", nil)
			return s.finish(&LoginOutcome{Kind: OutcomeInvalidCredentials}), nil
		}
		return s.fail(fmt.Errorf("finding account: %w", err))
	}

	if !verifyPassword(account.PasswordHash, input.Password) {
		return s.handleMismatch(ctx, account, email, rc)
	}

	if !account.IsActive {
		s.recordEvent(ctx, audit.EventLoginInactive, account, email, rc, "account inactive", nil)
		return s.finish(&LoginOutcome{Kind: OutcomeAccountInactive}), nil
	}

	if s.policy.EnforceLockOnSuccess && account.IsLocked(s.now()) {
		s.recordEvent(ctx, audit.EventLoginLocked, account, email, rc, "correct password while locked", nil)
		return s.finish(&LoginOutcome{Kind: OutcomeAccountLocked, LockedUntil: account.LockedUntil}), nil
	}

	return s.succeed(ctx, account, email, rc)
}

// handleMismatch applies a wrong password: count it, then decide between
// expired-lock reset, still locked, newly locked and plain failure.
func (s *authService) handleMismatch(ctx context.Context, account *Account, email string, rc RequestContext) (*LoginOutcome, error) {
	now := s.now()

	attempts, err := s.incrementAttempts(ctx, account)
	if err != nil {
		return s.fail(err)
	}

	if account.LockedUntil != nil {
		if !now.Before(*account.LockedUntil) {
			// The lock ran out: wipe the history. This attempt still fails
			// but is not counted against the fresh window.
			if err := s.store.ResetLockout(ctx, account.ID); err != nil {
				return s.fail(fmt.Errorf("clearing expired lock: %w", err))
			}
			slog.Info("expired account lock cleared",
				slog.String("account_id", account.ID),
			)
			zero := 0
			s.recordEvent(ctx, audit.EventLoginBadPassword, account, email, rc,
				"wrong password after lock expired", map[string]any{"failed_login_attempts": zero})
			return s.finish(&LoginOutcome{Kind: OutcomeInvalidCredentials, Attempts: &zero}), nil
		}

		s.recordEvent(ctx, audit.EventLoginLocked, account, email, rc,
			"wrong password while locked", map[string]any{"failed_login_attempts": attempts})
		return s.finish(&LoginOutcome{Kind: OutcomeAccountLocked, LockedUntil: account.LockedUntil}), nil
	}

	if attempts >= s.policy.MaxAttempts {
		until, err := s.lock(ctx, account, now.Add(s.policy.LockDuration))
		if err != nil {
			return s.fail(err)
		}
		metrics.AccountLocksTotal.Inc()
		slog.Warn("account locked after repeated failures",
			slog.String("account_id", account.ID),
			slog.Int("failed_login_attempts", attempts),
			slog.Time("locked_until", until),
		)
		s.recordEvent(ctx, audit.EventLoginLocked, account, email, rc,
			"account locked after repeated failures", map[string]any{
				"failed_login_attempts": attempts,
				"locked_until":          until.Format(time.RFC3339),
			})
		return s.finish(&LoginOutcome{Kind: OutcomeAccountLocked, LockedUntil: &until, Attempts: &attempts}), nil
	}

	s.recordEvent(ctx, audit.EventLoginBadPassword, account, email, rc,
		"wrong password", map[string]any{"failed_login_attempts": attempts})
	return s.finish(&LoginOutcome{Kind: OutcomeInvalidCredentials, Attempts: &attempts}), nil
}

// incrementAttempts persists attempts+1 and returns the new count.
func (s *authService) incrementAttempts(ctx context.Context, account *Account) (int, error) {
	if s.policy.AtomicLockout {
		n, err := s.store.IncrementFailedAttempts(ctx, account.ID)
		if err != nil {
			return 0, fmt.Errorf("incrementing failed attempts: %w", err)
		}
		return n, nil
	}

	n := account.FailedLoginAttempts + 1
	if err := s.store.SetFailedAttempts(ctx, account.ID, n); err != nil {
		return 0, fmt.Errorf("updating failed attempts: %w", err)
	}
	return n, nil
}

// lock persists the lock and returns the effective expiry. In atomic mode a
// concurrent request may have locked first; its expiry wins.
func (s *authService) lock(ctx context.Context, account *Account, until time.Time) (time.Time, error) {
	if !s.policy.AtomicLockout {
		if err := s.store.Lock(ctx, account.ID, until); err != nil {
			return time.Time{}, fmt.Errorf("locking account: %w", err)
		}
		return until, nil
	}

	applied, err := s.store.LockIfUnlocked(ctx, account.ID, until)
	if err != nil {
		return time.Time{}, fmt.Errorf("locking account: %w", err)
	}
	if applied {
		return until, nil
	}

	current, err := s.store.FindByEmail(ctx, normalizeEmail(account.Email))
	if err != nil {
		return time.Time{}, fmt.Errorf("re-reading locked account: %w", err)
	}
	if current.LockedUntil != nil {
		return *current.LockedUntil, nil
	}
	return until, nil
}

// succeed clears lockout state, issues the token and audits the login.
func (s *authService) succeed(ctx context.Context, account *Account, email string, rc RequestContext) (*LoginOutcome, error) {
	if err := s.store.ResetLockout(ctx, account.ID); err != nil {
		return s.fail(fmt.Errorf("resetting lockout: %w", err))
	}

	summary := account.Summary()
	token, expiresAt, err := s.tokens.Issue(summary)
	if err != nil {
		return s.fail(fmt.Errorf("issuing token: %w", err))
	}

	s.recordEvent(ctx, audit.EventLoginSuccess, account, email, rc, "login succeeded", nil)

	slog.Info("user logged in",
		slog.String("account_id", account.ID),
		slog.String("role", account.RoleName),
	)

	return s.finish(&LoginOutcome{
		Kind:           OutcomeSuccess,
		Token:          token,
		TokenExpiresAt: expiresAt,
		Account:        &summary,
	}), nil
}

// recordEvent writes one audit entry. It never fails the login: a missing
// event type is recorded as a nil reference and write errors are logged.
func (s *authService) recordEvent(ctx context.Context, code string, account *Account, email string, rc RequestContext, comment string, extra map[string]any) {
	ip := s.locator.ResolveClientAddress(ctx, rc.Header, rc.RemoteAddr)

	userAgent := rc.UserAgent
	if userAgent == "" {
		userAgent = geoip.NotAvailable
	}

	details := map[string]any{
		"ip":                 ip,
		"location":           s.locator.ResolveLocation(ctx, ip),
		"username_attempted": email,
		"user_agent":         userAgent,
	}
	if comment != "" {
		details["comment"] = comment
	}
	for k, v := range extra {
		details[k] = v
	}

	entry := &audit.AuditEntry{
		EventDate: s.now(),
		Details:   details,
	}
	if account != nil {
		table := audit.TableAppUser
		entry.SubjectID = &account.ID
		entry.ActorID = &account.ID
		entry.TableName = &table
		entry.RecordID = &account.ID
	}

	eventType, err := s.ledger.FindEventTypeByCode(ctx, code)
	switch {
	case err == nil:
		entry.EventTypeID = &eventType.ID
	case apperror.IsNotFound(err):
		slog.Warn("audit event type not configured", slog.String("code", code))
	default:
		slog.Warn("failed to look up audit event type",
			slog.String("code", code),
			slog.Any("error", err),
		)
	}

	// The ledger logs its own write failures; login proceeds regardless.
	if err := s.ledger.Record(ctx, entry); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
	}
}

func (s *authService) finish(outcome *LoginOutcome) *LoginOutcome {
	metrics.LoginAttemptsTotal.WithLabelValues(outcome.Kind.String()).Inc()
	return outcome
}

func (s *authService) fail(err error) (*LoginOutcome, error) {
	metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
	return nil, apperror.NewInternal(err)
}

// VerifyToken delegates to the token issuer.
func (s *authService) VerifyToken(_ context.Context, token string) (*Claims, error) {
	return s.tokens.Verify(token)
}

// Unlock resets the failure counter and lock for an account.
func (s *authService) Unlock(ctx context.Context, email string) (*Account, error) {
	account, err := s.store.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding account: %w", err))
	}

	if err := s.store.ResetLockout(ctx, account.ID); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("resetting lockout: %w", err))
	}

	slog.Info("account unlocked",
		slog.String("account_id", account.ID),
		slog.Int("previous_attempts", account.FailedLoginAttempts),
	)

	account.FailedLoginAttempts = 0
	account.LockedUntil = nil
	return account, nil
}

// normalizeEmail trims and lower-cases an email for lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsTokenError reports whether err is a *TokenError and returns it.
func IsTokenError(err error) (*TokenError, bool) {
	var te *TokenError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
