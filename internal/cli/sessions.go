package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "sessions <username>",
		Short:         "List a user's sessions, open and closed",
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
			sessions, err := a.engine.Sessions(cmd.Context(), u.ID)
			if err != nil {
				return a.out.Fail("failed to read sessions", err)
			}

			if a.out.Format == "json" {
				return a.out.Success(sessions)
			}
			tw := tabwriter.NewWriter(a.out.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "LOGIN SEQ\tLOGIN AT\tSTATE\tDURATION")
			for _, s := range sessions {
				loginAt := time.Unix(0, int64(s.LoginAt*1e9)).UTC().Format("2006-01-02 15:04:05")
				state, duration := "open", "-"
				if s.Closed {
					state = "closed"
					if s.DurationSec != nil {
						duration = fmt.Sprintf("%.0fs", *s.DurationSec)
					}
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.LoginSeq, loginAt, state, duration)
			}
			return tw.Flush()
		},
	}
}
