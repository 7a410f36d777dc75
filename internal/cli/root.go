// Package cli implements the journal command line: the HTTP server and the
// operator commands that share its configuration.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

// NewRootCommand builds the journal command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "journal",
		Short: "Multi-tenant trading journal",
		Long: `Journal records trades reported by trading terminals and manual entry,
and keeps per-user performance metrics.

It provides:
  - A webhook that opens and closes trades per API key
  - A dashboard API with equity curve, win rate and drawdown
  - Operator commands for accounts and snapshots`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "./configs", "directory containing config.yml")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newUserCommand(opts),
		newSnapshotCommand(opts),
		newVersionCommand(opts),
	)
	return rootCmd
}

// Execute loads .env if present and runs the root command.
func Execute() error {
	_ = godotenv.Load()
	return NewRootCommand().Execute()
}
