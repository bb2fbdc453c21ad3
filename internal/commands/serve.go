package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lightcast-mcp/lightcast-mcp/internal/apierr"
	"github.com/lightcast-mcp/lightcast-mcp/internal/appctx"
	"github.com/lightcast-mcp/lightcast-mcp/internal/output"
	"github.com/lightcast-mcp/lightcast-mcp/internal/tools"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run the Lightcast MCP server.

By default the server speaks MCP over stdin/stdout. With --http it serves the
streamable HTTP transport on the given address instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if err := app.RequireCredentials(); err != nil {
				return err
			}
			if err := verifyAuth(cmd.Context(), app); err != nil {
				return err
			}

			server := tools.NewServer(app.ToolDeps())
			defer logSession(app)

			if addr == "" {
				app.Log.Info().Str("transport", "stdio").Msg("MCP server starting")
				err = server.Run(cmd.Context(), &mcp.StdioTransport{})
			} else {
				err = serveHTTP(cmd.Context(), app, server, addr)
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "http", "", "Serve streamable HTTP on this address (e.g. :8080)")

	return cmd
}

// verifyAuth requests a token for every scope the tools use before the
// server starts. A failure on the default scope is fatal; other scopes only
// disable their own tools, so those failures are logged.
func verifyAuth(ctx context.Context, app *appctx.App) error {
	def := app.Config.DefaultScope
	if _, err := app.Tokens.Token(ctx, def); err != nil {
		if apierr.IsKind(err, apierr.KindUnauthorized) {
			e := output.ErrAuth(fmt.Sprintf("authentication failed for scope %s: %s", def, describe(err)))
			e.Cause = err
			return e
		}
		return fmt.Errorf("authenticating scope %s: %w", def, err)
	}

	var others []string
	for _, scope := range app.Service.Scopes.Distinct() {
		if scope != def {
			others = append(others, scope)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, scope := range others {
		g.Go(func() error {
			if _, err := app.Tokens.Token(gctx, scope); err != nil {
				app.Log.Warn().Err(err).Str("scope", scope).Msg("scope unavailable, its tools will fail")
			}
			return nil
		})
	}
	_ = g.Wait()

	app.Log.Info().Str("scope", def).Msg("authentication verified")
	return ctx.Err()
}

// serveHTTP runs the streamable HTTP transport until ctx is done.
func serveHTTP(ctx context.Context, app *appctx.App, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.Log.Info().Str("transport", "http").Str("addr", addr).Msg("MCP server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func logSession(app *appctx.App) {
	s := app.Collector.Summary()
	app.Log.Info().
		Int("requests", s.TotalRequests).
		Int("failed", s.FailedRequests).
		Int("retries", s.TotalRetries).
		Int("rate_limited", s.RateLimited).
		Int("tool_calls", s.ToolCalls).
		Str("uptime", s.Uptime).
		Msg("MCP server stopped")
}
