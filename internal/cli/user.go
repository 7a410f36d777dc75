package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"trading-journal/internal/auth"
)

func newUserCommand(root *rootOptions) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage journal accounts",
	}
	userCmd.AddCommand(newUserCreateCommand(root), newUserListCommand(root))
	return userCmd
}

func newUserCreateCommand(root *rootOptions) *cobra.Command {
	var (
		in              auth.RegisterInput
		startingBalance float64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account and print its webhook API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("starting-balance") {
				in.StartingBalance = &startingBalance
			}

			user, err := a.auth.CreateUser(cmd.Context(), in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s user %s (%s)\n", user.Role, user.Email, user.ID)
			fmt.Fprintf(out, "API key: %s\n", user.APIKey)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "login email")
	cmd.Flags().StringVar(&in.Password, "password", "", "login password")
	cmd.Flags().StringVar(&in.Role, "role", "TRADER", "TRADER or ADMIN")
	cmd.Flags().Float64Var(&startingBalance, "starting-balance", 0, "account size, defaults to journal.starting_balance")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newUserListCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			users, err := a.store.ListUsers(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, u := range users {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", u.ID, u.Role, u.Email, u.Name)
			}
			return nil
		},
	}
}
