package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenIssuer is the "iss" claim on every session token.
const tokenIssuer = "bizdir"

// Claims is the payload of a session token: the account summary plus the
// registered claims. UserID is the account ID; the registered "jti" lives
// in RegisteredClaims.ID.
type Claims struct {
	UserID      string       `json:"id"`
	PersonID    string       `json:"person_id"`
	Email       string       `json:"email"`
	FirstName   string       `json:"first_name"`
	LastName    string       `json:"last_name"`
	Role        string       `json:"role"`
	UserType    string       `json:"user_type"`
	Permissions []Permission `json:"permissions"`
	jwt.RegisteredClaims
}

// TokenErrorKind classifies token verification failures.
type TokenErrorKind int

const (
	// TokenInvalid covers anything not more specifically classified.
	TokenInvalid TokenErrorKind = iota
	// TokenExpired means the signature is valid but exp has passed.
	TokenExpired
	// TokenMalformed means the token could not be parsed or its signature
	// does not verify.
	TokenMalformed
)

// Code returns the wire error code for the kind.
func (k TokenErrorKind) Code() string {
	switch k {
	case TokenExpired:
		return "TOKEN_EXPIRED"
	case TokenMalformed:
		return "INVALID_TOKEN"
	default:
		return "AUTH_ERROR"
	}
}

// TokenError is returned by Verify.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind.Code(), e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer with the given HMAC secret and lifetime.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for the account and returns it with its expiry.
func (t *TokenIssuer) Issue(a AccountSummary) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)

	claims := Claims{
		UserID:      a.ID,
		PersonID:    a.PersonID,
		Email:       a.Email,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		Role:        a.Role,
		UserType:    a.UserType,
		Permissions: a.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   a.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a token. Failures are always *TokenError.
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, &TokenError{Kind: classifyTokenError(err), Err: err}
	}
	if !token.Valid {
		return nil, &TokenError{Kind: TokenInvalid, Err: errors.New("token is not valid")}
	}
	return claims, nil
}

func classifyTokenError(err error) TokenErrorKind {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return TokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return TokenMalformed
	default:
		return TokenInvalid
	}
}
