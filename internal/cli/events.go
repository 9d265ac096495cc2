package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/palabria/internal/model"
)

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "events <username>",
		Short: "Print a user's usage ledger",
		Long: `Print the user's usage events in seq order, optionally filtered to one
kind.

Example:
  palabria events ana
  palabria events ana --kind session_duration --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var k model.EventKind
			if kind != "" {
				parsed, err := model.ParseEventKind(kind)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --kind", err)
				}
				k = parsed
			}

			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.user(cmd, args[0])
			if err != nil {
				return err
			}
			events, err := a.engine.UserEvents(cmd.Context(), u.ID, k)
			if err != nil {
				return a.out.Fail("failed to read events", err)
			}

			if a.out.Format == "json" {
				return a.out.Success(events)
			}
			tw := tabwriter.NewWriter(a.out.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tKIND\tVALUE\tANCHOR\tCREATED")
			for _, ev := range events {
				value := "-"
				if ev.HasValue() {
					value = fmt.Sprintf("%.3f", *ev.Value)
				}
				anchor := "-"
				if ev.AnchorSeq > 0 {
					anchor = fmt.Sprintf("%d", ev.AnchorSeq)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", ev.Seq, ev.Kind, value, anchor, ev.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only show events of this kind")
	return cmd
}
