package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewUserCommand creates the user command group.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserCreateCommand(rootOpts))
	cmd.AddCommand(newUserShowCommand(rootOpts))
	return cmd
}

func newUserCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var at atFlag

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Register a user and record their first login",
		Long: `Register a user. A new account is signed in on creation, so the
first login is recorded at --at (default now).

Example:
  palabria user create ana
  palabria user create ana --at 2025-03-10T12:00:00Z --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			now, err := at.resolve(a.engine)
			if err != nil {
				return err
			}
			u, err := a.engine.CreateUser(cmd.Context(), args[0], now)
			if err != nil {
				return a.out.Fail("failed to create user", err)
			}

			if a.out.Format == "json" {
				return a.out.Success(u)
			}
			fmt.Fprintf(a.out.Writer, "Created user %s (id %d)\n", u.Username, u.ID)
			return nil
		},
	}
	at.register(cmd)
	return cmd
}

func newUserShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <username>",
		Short:         "Show a user",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.user(cmd, args[0])
			if err != nil {
				return err
			}

			if a.out.Format == "json" {
				return a.out.Success(u)
			}
			fmt.Fprintf(a.out.Writer, "%s (id %d, created %s)\n", u.Username, u.ID, u.CreatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}
