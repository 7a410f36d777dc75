package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"trading-journal/internal/scheduler"
)

func newSnapshotCommand(root *rootOptions) *cobra.Command {
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Maintain daily balance snapshots",
	}

	var userID string
	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute today's snapshot for one user or all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if userID != "" {
				m, err := a.metrics.RefreshDailySnapshot(cmd.Context(), userID, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\t%s\tbalance=%.2f\tequity=%.2f\n", m.UserID, m.Date.Format(time.DateOnly), m.Balance, m.Equity)
				return nil
			}

			n, err := scheduler.New(a.log, a.store, a.metrics, 0).RefreshAll(cmd.Context())
			fmt.Fprintf(out, "Refreshed %d snapshot(s)\n", n)
			return err
		},
	}
	refreshCmd.Flags().StringVar(&userID, "user", "", "refresh a single user by ID")

	snapshotCmd.AddCommand(refreshCmd)
	return snapshotCmd
}
