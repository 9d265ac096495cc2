package cli

import (
	"cmp"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/palabria/internal/engine"
	"github.com/roach88/palabria/internal/model"
	"github.com/roach88/palabria/internal/store"
)

// NewDocsCommand creates the docs command group.
func NewDocsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage analysed documents and their metrics",
	}
	cmd.AddCommand(newDocsListCommand(rootOpts))
	cmd.AddCommand(newDocsAddCommand(rootOpts))
	cmd.AddCommand(newDocsMetricsCommand(rootOpts))
	cmd.AddCommand(newDocsMetricCommand(rootOpts))
	cmd.AddCommand(newDocsChangesCommand(rootOpts))
	cmd.AddCommand(newDocsDeleteCommand(rootOpts))
	return cmd
}

func newDocsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <username>",
		Short:         "List a user's documents, newest first",
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
			docs, err := a.engine.ListDocuments(cmd.Context(), u.ID)
			if err != nil {
				return a.out.Fail("failed to list documents", err)
			}

			if a.out.Format == "json" {
				return a.out.Success(docs)
			}
			if len(docs) == 0 {
				fmt.Fprintf(a.out.Writer, "No documents for %s\n", u.Username)
				return nil
			}
			tw := tabwriter.NewWriter(a.out.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFILENAME\tUPLOADED")
			for _, d := range docs {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", d.ID, d.Filename, d.UploadedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
}

// DocsAddOptions holds flags for docs add.
type DocsAddOptions struct {
	File     string
	Text     string
	Filename string
	Source   string
	Metrics  []string
}

func newDocsAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocsAddOptions{}

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Store an analysed document with its initial metrics",
		Long: `Store a document, its initial metric batch and the upload event in
one transaction. The text comes from --file or --text.

Example:
  palabria docs add ana --file ensayo.txt --metric total_frases=12 --metric frases_con_tu_impersonal=3
  palabria docs add ana --text "Cuando tú estudias, aprendes." --source text`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocsAdd(rootOpts, opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "read the document text from this file")
	cmd.Flags().StringVar(&opts.Text, "text", "", "document text")
	cmd.Flags().StringVar(&opts.Filename, "filename", "", "stored filename (default: base of --file, or text.txt)")
	cmd.Flags().StringVar(&opts.Source, "source", engine.SourceText, "upload source: pdf or text")
	cmd.Flags().StringArrayVar(&opts.Metrics, "metric", nil, "initial metric as name=value (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("file", "text")
	cmd.MarkFlagsOneRequired("file", "text")

	return cmd
}

func runDocsAdd(rootOpts *RootOptions, opts *DocsAddOptions, cmd *cobra.Command, username string) error {
	text := opts.Text
	filename := opts.Filename
	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read document", err)
		}
		text = string(data)
		filename = cmp.Or(filename, filepath.Base(opts.File))
	}
	filename = cmp.Or(filename, "text.txt")

	metrics, err := parseMetricFlags(opts.Metrics)
	if err != nil {
		return err
	}

	a, err := openApp(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.user(cmd, username)
	if err != nil {
		return err
	}
	doc, err := a.engine.SubmitDocument(cmd.Context(), engine.SubmitDocument{
		UserID:   u.ID,
		Filename: filename,
		Text:     text,
		Source:   opts.Source,
		Metrics:  metrics,
	})
	if err != nil {
		return a.out.Fail("failed to store document", err)
	}

	if a.out.Format == "json" {
		return a.out.Success(doc)
	}
	fmt.Fprintf(a.out.Writer, "Stored document %d (%s) with %d metrics\n", doc.ID, doc.Filename, len(metrics))
	return nil
}

// parseMetricFlags parses name=value pairs in flag order.
func parseMetricFlags(pairs []string) ([]store.MetricValue, error) {
	metrics := make([]store.MetricValue, 0, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --metric %q: want name=value", pair))
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --metric %q: value is not a number", pair))
		}
		metrics = append(metrics, store.MetricValue{Name: name, Value: value})
	}
	return metrics, nil
}

func newDocsMetricsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <document-id>",
		Short: "Show every metric record of a document",
		Long: `Print the document's metric log in seq order. For each metric name the
last record is the current value.

Example:
  palabria docs metrics 3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("document", args[0])
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.engine.DocumentMetrics(cmd.Context(), id)
			if err != nil {
				return a.out.Fail("failed to read document metrics", err)
			}

			if a.out.Format == "json" {
				return a.out.Success(records)
			}
			tw := tabwriter.NewWriter(a.out.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tMETRIC\tVALUE")
			for _, r := range records {
				fmt.Fprintf(tw, "%d\t%s\t%g\n", r.Seq, r.Name, r.Value)
			}
			return tw.Flush()
		},
	}
}

func newDocsMetricCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metric <document-id> <name> <value>",
		Short: "Record a new value for a document metric",
		Long: `Append a metric value. Earlier values stay in the log; the new record
becomes the current value.

Example:
  palabria docs metric 3 frases_con_tu_impersonal 0`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("document", args[0])
			if err != nil {
				return err
			}
			value, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid metric value %q", args[2]))
			}
			return appendMetric(rootOpts, cmd, "failed to record metric", func(a *app) (model.MetricRecord, error) {
				return a.engine.AddMetric(cmd.Context(), id, args[1], value)
			})
		},
	}
}

func newDocsChangesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "changes <document-id> <count>",
		Short: "Record how many changes the user made to the corrected text",
		Args:  cobra.ExactArgs(2),
		Example: `  palabria docs changes 3 0
  palabria docs changes 3 4`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("document", args[0])
			if err != nil {
				return err
			}
			changes, err := strconv.Atoi(args[1])
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid change count %q", args[1]))
			}
			return appendMetric(rootOpts, cmd, "failed to record changes", func(a *app) (model.MetricRecord, error) {
				return a.engine.RecordUserChanges(cmd.Context(), id, changes)
			})
		},
	}
}

func appendMetric(rootOpts *RootOptions, cmd *cobra.Command, failure string, fn func(*app) (model.MetricRecord, error)) error {
	a, err := openApp(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := fn(a)
	if err != nil {
		return a.out.Fail(failure, err)
	}

	if a.out.Format == "json" {
		return a.out.Success(rec)
	}
	fmt.Fprintf(a.out.Writer, "Recorded %s = %g on document %d (seq %d)\n", rec.Name, rec.Value, rec.DocumentID, rec.Seq)
	return nil
}

func newDocsDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and its metric records",
		Long: `Delete the document and every metric record it owns. Deleting a
document that does not exist is not an error.

Example:
  palabria docs delete 3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("document", args[0])
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, err := a.engine.DeleteDocument(cmd.Context(), id)
			if err != nil {
				return a.out.Fail("failed to delete document", err)
			}

			if a.out.Format == "json" {
				return a.out.Success(map[string]any{"document_id": id, "deleted": deleted})
			}
			if deleted {
				fmt.Fprintf(a.out.Writer, "Deleted document %d\n", id)
			} else {
				fmt.Fprintf(a.out.Writer, "Document %d does not exist\n", id)
			}
			return nil
		},
	}
}
