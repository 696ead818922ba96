package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/bizdir/internal/config"
	"github.com/keyxmakerx/bizdir/internal/database"
	"github.com/keyxmakerx/bizdir/internal/geoip"
	"github.com/keyxmakerx/bizdir/internal/plugins/audit"
	"github.com/keyxmakerx/bizdir/internal/plugins/auth"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.NewDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.RunMigrations(db, cfg.MigrationsDir()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied from %s\n", cfg.MigrationsDir())
			return nil
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	var algo string

	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a password hash suitable for app_user.password_hash",
		Long: `Hash a password for seeding accounts. The password is read from the
first argument, or from the first line of stdin when no argument is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no password given")
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			hash, err := auth.HashPassword(password, algo)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&algo, "algo", auth.AlgoBcrypt, "Hash algorithm: bcrypt or argon2id")
	return cmd
}

// serviceOpener builds an AuthService from config and returns a cleanup.
type serviceOpener func(cfg *config.Config) (auth.AuthService, func(), error)

// openAuthService wires the service the same way the server does, with
// geolocation off since nothing here is audited.
func openAuthService(cfg *config.Config) (auth.AuthService, func(), error) {
	db, err := database.NewDB(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	geoCfg := cfg.GeoIP
	geoCfg.Enabled = false

	svc := auth.NewAuthService(
		auth.NewCredentialStore(db),
		auth.NewTokenIssuer(cfg.Auth.SecretKey, cfg.Auth.TokenTTL),
		audit.NewAuditService(audit.NewAuditRepository(db)),
		geoip.NewResolver(geoCfg, nil),
		auth.LockoutPolicy{
			MaxAttempts:  cfg.Auth.MaxFailedAttempts,
			LockDuration: cfg.Auth.LockDuration,
		},
	)
	return svc, func() { db.Close() }, nil
}

func newUnlockCmd(open serviceOpener) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Clear the failure counter and lock of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, cleanup, err := open(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			account, err := svc.Unlock(cmd.Context(), email)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unlocked %s (%s)\n", account.Email, account.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email of the account to unlock")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newVerifyTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-token <token>",
		Short: "Verify a session token and print its claims",
		Long: `Verify a session token against JWT_SECRET. Valid tokens print their
claims as JSON; invalid ones fail with TOKEN_EXPIRED, INVALID_TOKEN or
AUTH_ERROR.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			issuer := auth.NewTokenIssuer(cfg.Auth.SecretKey, cfg.Auth.TokenTTL)
			claims, err := issuer.Verify(strings.TrimSpace(args[0]))
			if err != nil {
				if te, ok := auth.IsTokenError(err); ok {
					return fmt.Errorf("%s: %v", te.Kind.Code(), te.Err)
				}
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims)
		},
	}
}
