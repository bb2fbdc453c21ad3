// Package commands implements the CLI commands.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lightcast-mcp/lightcast-mcp/internal/appctx"
)

// All returns every top-level command.
func All() []*cobra.Command {
	return []*cobra.Command{
		NewServeCmd(),
		NewAuthCmd(),
		NewAPICmd(),
		NewConfigCmd(),
		NewVersionCmd(),
	}
}

// appFrom returns the app stored on the command's context.
func appFrom(cmd *cobra.Command) (*appctx.App, error) {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	return app, nil
}
