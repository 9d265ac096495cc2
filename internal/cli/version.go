package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/palabria/internal/model"
)

// VersionInfo is the JSON payload of the version command.
type VersionInfo struct {
	Engine string `json:"engine"`
	Schema int    `json:"schema"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print the engine and ledger schema versions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			if out.Format == "json" {
				return out.Success(VersionInfo{Engine: model.EngineVersion, Schema: model.SchemaVersion})
			}
			fmt.Fprintf(out.Writer, "palabria %s (schema %d)\n", model.EngineVersion, model.SchemaVersion)
			return nil
		},
	}
}
