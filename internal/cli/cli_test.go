package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/bizdir/internal/apperror"
	"github.com/keyxmakerx/bizdir/internal/config"
	"github.com/keyxmakerx/bizdir/internal/plugins/auth"
)

const secret = "cli-test-secret-that-is-long-enough!"

func stubConfig(t *testing.T) {
	t.Helper()
	orig := loadConfig
	loadConfig = func() (*config.Config, error) {
		return &config.Config{
			Env:  "development",
			Auth: config.AuthConfig{SecretKey: secret, TokenTTL: time.Hour},
		}, nil
	}
	t.Cleanup(func() { loadConfig = orig })
}

func run(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, NewRootCmd(nil), "", "hash-password", "s3cret")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.True(t, auth.VerifyPassword(hash, "s3cret"))
}

func TestHashPassword_Stdin(t *testing.T) {
	out, err := run(t, NewRootCmd(nil), "from-stdin\n", "hash-password", "--algo", auth.AlgoArgon2id)
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))
	assert.True(t, auth.VerifyPassword(hash, "from-stdin"))
}

func TestHashPassword_Errors(t *testing.T) {
	_, err := run(t, NewRootCmd(nil), "", "hash-password")
	assert.Error(t, err)

	_, err = run(t, NewRootCmd(nil), "", "hash-password", "--algo", "md5", "x")
	assert.Error(t, err)
}

func TestVerifyToken(t *testing.T) {
	stubConfig(t)

	token, _, err := auth.NewTokenIssuer(secret, time.Hour).Issue(auth.AccountSummary{
		ID: "acc-1", Email: "ana@example.com", Role: "Administrator",
	})
	require.NoError(t, err)

	out, err := run(t, NewRootCmd(nil), "", "verify-token", token)
	require.NoError(t, err)

	var claims map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &claims))
	assert.Equal(t, "acc-1", claims["id"])
	assert.Equal(t, "ana@example.com", claims["email"])
}

func TestVerifyToken_Invalid(t *testing.T) {
	stubConfig(t)

	_, err := run(t, NewRootCmd(nil), "", "verify-token", "garbage")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "INVALID_TOKEN"), err.Error())

	expired, _, err := auth.NewTokenIssuer(secret, -time.Minute).Issue(auth.AccountSummary{ID: "acc-1"})
	require.NoError(t, err)
	_, err = run(t, NewRootCmd(nil), "", "verify-token", expired)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "TOKEN_EXPIRED"), err.Error())
}

// fakeUnlocker implements the one AuthService method unlock uses.
type fakeUnlocker struct {
	auth.AuthService
	email string
}

func (f *fakeUnlocker) Unlock(_ context.Context, email string) (*auth.Account, error) {
	f.email = email
	if email != "ana@example.com" {
		return nil, apperror.NewNotFound("account not found")
	}
	return &auth.Account{ID: "acc-1", Email: email}, nil
}

func TestUnlock(t *testing.T) {
	stubConfig(t)
	fake := &fakeUnlocker{}
	closed := false
	open := func(*config.Config) (auth.AuthService, func(), error) {
		return fake, func() { closed = true }, nil
	}

	cmd := newUnlockCmd(open)
	out, err := run(t, cmd, "", "--email", "ana@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "unlocked ana@example.com (acc-1)")
	assert.True(t, closed)

	_, err = run(t, newUnlockCmd(open), "", "--email", "nobody@example.com")
	assert.True(t, apperror.IsNotFound(err))

	_, err = run(t, newUnlockCmd(open), "")
	assert.Error(t, err, "email flag is required")
}
