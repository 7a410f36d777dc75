package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"trading-journal/internal/config"
)

func newVersionCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the configured server version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(root.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Server.Version)
			return nil
		},
	}
}
