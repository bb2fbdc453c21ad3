package commands

import (
	"github.com/spf13/cobra"

	"github.com/lightcast-mcp/lightcast-mcp/internal/appctx"
	"github.com/lightcast-mcp/lightcast-mcp/internal/output"
	"github.com/lightcast-mcp/lightcast-mcp/internal/version"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version": version.Version,
				"commit":  version.Commit,
				"date":    version.Date,
			}
			// version runs without loading config, so there may be no app.
			if app := appctx.FromContext(cmd.Context()); app != nil {
				return app.OK(info, output.WithSummary(version.Full()))
			}
			w := output.New(output.Options{Format: output.FormatAuto, Writer: cmd.OutOrStdout()})
			return w.OK(info, output.WithSummary(version.Full()))
		},
	}
}
