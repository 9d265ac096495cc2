package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/palabria/internal/engine"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	All  bool
	Idle bool
	At   atFlag
}

// SweepOutput is the JSON payload of reconcile --all and --idle.
type SweepOutput struct {
	Results []engine.SweepResult `json:"results"`
	Closed  int                  `json:"closed"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{}

	cmd := &cobra.Command{
		Use:   "reconcile [username]",
		Short: "Close open sessions",
		Long: `Reconcile open sessions as of --at (default now).

With a username, that user's open session is closed. --all closes every
open session; --idle closes only sessions whose last heartbeat is older
than the idle grace period plus slack.

Example:
  palabria reconcile ana
  palabria reconcile --idle
  palabria reconcile --all --at 2025-03-10T18:00:00Z`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(rootOpts, opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "reconcile every open session")
	cmd.Flags().BoolVar(&opts.Idle, "idle", false, "reconcile only idle sessions")
	cmd.MarkFlagsMutuallyExclusive("all", "idle")
	opts.At.register(cmd)

	return cmd
}

func runReconcile(rootOpts *RootOptions, opts *ReconcileOptions, cmd *cobra.Command, args []string) error {
	sweeping := opts.All || opts.Idle
	if sweeping == (len(args) == 1) {
		return NewExitError(ExitCommandError, "give either a username or one of --all, --idle")
	}

	a, err := openApp(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	now, err := opts.At.resolve(a.engine)
	if err != nil {
		return err
	}

	if !sweeping {
		u, err := a.user(cmd, args[0])
		if err != nil {
			return err
		}
		outcome, err := a.engine.Reconcile(cmd.Context(), u.ID, now)
		if err != nil {
			return a.out.Fail("reconcile failed", err)
		}
		if a.out.Format == "json" {
			return a.out.Success(OutcomeResult{UserID: u.ID, Outcome: outcome})
		}
		fmt.Fprintf(a.out.Writer, "Reconcile for %s: %s\n", u.Username, outcome)
		return nil
	}

	var results []engine.SweepResult
	if opts.All {
		results, err = a.engine.ReconcileOpen(cmd.Context(), now)
	} else {
		results, err = a.engine.ReconcileIdle(cmd.Context(), now)
	}
	if err != nil {
		return a.out.Fail("sweep failed", err)
	}

	closed := 0
	for _, r := range results {
		if r.Outcome == engine.OutcomeClosed {
			closed++
		}
	}
	if a.out.Format == "json" {
		return a.out.Success(SweepOutput{Results: results, Closed: closed})
	}
	for _, r := range results {
		fmt.Fprintf(a.out.Writer, "  user %d: %s\n", r.UserID, r.Outcome)
	}
	fmt.Fprintf(a.out.Writer, "Closed %d of %d open sessions\n", closed, len(results))
	return nil
}
