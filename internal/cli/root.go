// Package cli implements the lakegate command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lakegate/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code. SIGTERM and
// SIGINT cancel the command context so an in-flight run can abort and
// still record its outcome.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		envFile string
		output  string
	)

	rootCmd := &cobra.Command{
		Use:   "lakegate",
		Short: "Write-audit-publish coordinator for branch-versioned lakehouse tables",
		Long: `lakegate stages raw data on an isolated table branch, audits the
staged result, and publishes the branch by policy: merge it into the
base ref, keep it for inspection, or delete it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// Shell environment takes precedence over the env file.
			if err := config.LoadDotEnv(envFile); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file read before config (missing file is ignored)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newChecksCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
