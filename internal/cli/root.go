// Package cli implements bizctl, the operator command line for bizdir:
// migrations, password hashing for seed data, account unlocks and token
// inspection.
package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/bizdir/internal/config"
)

// loadConfig is swapped in tests.
var loadConfig = config.Load

// NewRootCmd builds the bizctl command tree writing to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "bizctl",
		Short: "Operator tooling for the bizdir API",
		Long: `bizctl runs maintenance tasks against a bizdir deployment.

It reads the same environment (and optional .env file) as the server:
  DB_DRIVER, DATABASE_URL or DB_HOST/DB_USER/DB_PASSWORD/DB_NAME
  JWT_SECRET, AUTH_MAX_FAILED_ATTEMPTS, AUTH_LOCK_DURATION`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.SetOut(out)
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		newMigrateCmd(),
		newHashPasswordCmd(),
		newUnlockCmd(openAuthService),
		newVerifyTokenCmd(),
	)
	return root
}

// Execute runs bizctl with the process arguments.
func Execute() error {
	return NewRootCmd(os.Stdout).Execute()
}
