package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/palabria/internal/engine"
)

// OutcomeResult is the JSON payload of heartbeat, logout and reconcile.
type OutcomeResult struct {
	UserID  int64          `json:"user_id"`
	Outcome engine.Outcome `json:"outcome"`
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var at atFlag

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Record a login",
		Long: `Record a login: the login marker, the login_ts that anchors the new
session, and a heartbeat at the same instant.

Example:
  palabria login ana
  palabria login ana --at 2025-03-10T12:00:00Z`,
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
			now, err := at.resolve(a.engine)
			if err != nil {
				return err
			}
			if err := a.engine.RecordLogin(cmd.Context(), u.ID, now); err != nil {
				return a.out.Fail("failed to record login", err)
			}

			if a.out.Format == "json" {
				return a.out.Success(map[string]any{"user_id": u.ID, "at": now})
			}
			fmt.Fprintf(a.out.Writer, "Login recorded for %s\n", u.Username)
			return nil
		},
	}
	at.register(cmd)
	return cmd
}

// NewHeartbeatCommand creates the heartbeat command.
func NewHeartbeatCommand(rootOpts *RootOptions) *cobra.Command {
	return newOutcomeCommand(rootOpts, outcomeCommand{
		use:   "heartbeat <username>",
		short: "Record a heartbeat and reconcile the open session",
		long: `Record a heartbeat. Unless reconcile_on_heartbeat is disabled, the
user's open session is then reconciled. A reconciliation failure is logged
and reported as the "failed" outcome; the heartbeat itself stays recorded.

Example:
  palabria heartbeat ana`,
		verb: "Heartbeat",
		run: func(a *app, cmd *cobra.Command, userID int64, at atFlag) (engine.Outcome, error) {
			now, err := at.resolve(a.engine)
			if err != nil {
				return "", err
			}
			return a.engine.RecordHeartbeat(cmd.Context(), userID, now)
		},
	})
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return newOutcomeCommand(rootOpts, outcomeCommand{
		use:   "logout <username>",
		short: "Close the user's open session",
		long: `Reconcile the user's open session as of --at (default now). Logging out
twice is not an error; the second call reports "already_closed".

Example:
  palabria logout ana`,
		verb: "Logout",
		run: func(a *app, cmd *cobra.Command, userID int64, at atFlag) (engine.Outcome, error) {
			now, err := at.resolve(a.engine)
			if err != nil {
				return "", err
			}
			return a.engine.RecordLogout(cmd.Context(), userID, now)
		},
	})
}

// outcomeCommand describes a per-user command that yields an Outcome.
type outcomeCommand struct {
	use, short, long string
	verb             string
	run              func(a *app, cmd *cobra.Command, userID int64, at atFlag) (engine.Outcome, error)
}

func newOutcomeCommand(rootOpts *RootOptions, oc outcomeCommand) *cobra.Command {
	var at atFlag

	cmd := &cobra.Command{
		Use:           oc.use,
		Short:         oc.short,
		Long:          oc.long,
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
			outcome, err := oc.run(a, cmd, u.ID, at)
			if err != nil {
				if isExitError(err) {
					return err
				}
				return a.out.Fail(fmt.Sprintf("%s failed", oc.verb), err)
			}

			if a.out.Format == "json" {
				return a.out.Success(OutcomeResult{UserID: u.ID, Outcome: outcome})
			}
			fmt.Fprintf(a.out.Writer, "%s for %s: %s\n", oc.verb, u.Username, outcome)
			return nil
		},
	}
	at.register(cmd)
	return cmd
}
