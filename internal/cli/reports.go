package cli

import (
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/palabria/internal/engine"
)

// NewOverviewCommand creates the overview command.
func NewOverviewCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "overview <username>",
		Short: "Summarise a user's documents and usage",
		Long: `Print the user's overview: document count, the average of each
document metric, usage per event kind, distinct login days, average session
length and the document percentages.

Example:
  palabria overview ana
  palabria overview ana --format json`,
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
			report, err := a.engine.Overview(cmd.Context(), u.ID)
			if err != nil {
				return a.out.Fail("failed to build overview", err)
			}

			if a.out.Format == "json" {
				return a.out.Success(report)
			}
			writeOverview(a.out, u.Username, report)
			return nil
		},
	}
}

func writeOverview(out *OutputFormatter, username string, r engine.OverviewReport) {
	w := out.Writer
	fmt.Fprintf(w, "Overview for %s\n", username)
	fmt.Fprintf(w, "  Documents:          %d\n", r.Documents)
	fmt.Fprintf(w, "  Login days:         %d\n", r.LoginDays)
	if r.AvgSessionSeconds != nil {
		fmt.Fprintf(w, "  Avg session:        %.1fs\n", *r.AvgSessionSeconds)
	} else {
		fmt.Fprintf(w, "  Avg session:        -\n")
	}
	fmt.Fprintf(w, "  Docs with tú:       %.2f%%\n", r.DocsWithTuPercent)
	fmt.Fprintf(w, "  Docs unchanged:     %.2f%%\n", r.DocsNoChangesPercent)

	if len(r.MetricAverages) > 0 {
		fmt.Fprintln(w, "\nMetric averages:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, name := range slices.Sorted(maps.Keys(r.MetricAverages)) {
			fmt.Fprintf(tw, "  %s\t%.2f\n", name, r.MetricAverages[name])
		}
		tw.Flush()
	}

	if len(r.Usage) > 0 {
		fmt.Fprintln(w, "\nUsage:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  KIND\tCOUNT\tAVG")
		for _, s := range r.Usage {
			avg := "-"
			if s.Avg != nil {
				avg = fmt.Sprintf("%.2f", *s.Avg)
			}
			fmt.Fprintf(tw, "  %s\t%d\t%s\n", s.Kind, s.Count, avg)
		}
		tw.Flush()
	}
}

// NewWeeklyCommand creates the weekly command.
func NewWeeklyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "weekly <username>",
		Short: "Show the last seven days of session activity",
		Long: `Print one row per UTC day for the last seven days, oldest first, with
the total session time and its activity label.

Example:
  palabria weekly ana`,
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
			buckets, err := a.engine.WeeklyActivity(cmd.Context(), u.ID)
			if err != nil {
				return a.out.Fail("failed to build weekly activity", err)
			}

			if a.out.Format == "json" {
				return a.out.Success(buckets)
			}
			tw := tabwriter.NewWriter(a.out.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tSECONDS\tACTIVITY")
			for _, b := range buckets {
				fmt.Fprintf(tw, "%s\t%.0f\t%s\n", b.Date, b.TotalSeconds, b.Label)
			}
			return tw.Flush()
		},
	}
}
