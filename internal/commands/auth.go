package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lightcast-mcp/lightcast-mcp/internal/apierr"
	"github.com/lightcast-mcp/lightcast-mcp/internal/auth"
	"github.com/lightcast-mcp/lightcast-mcp/internal/config"
	"github.com/lightcast-mcp/lightcast-mcp/internal/lightcast"
	"github.com/lightcast-mcp/lightcast-mcp/internal/output"
	"github.com/lightcast-mcp/lightcast-mcp/internal/prompt"
)

// Overridable in tests.
var (
	newPrompter   = prompt.New
	isInteractive = func() bool { return term.IsTerminal(os.Stdin.Fd()) && term.IsTerminal(os.Stdout.Fd()) }
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage Lightcast credentials and tokens",
		Long:  "Check credentials, print access tokens, and store the client secret in the system keyring.",
	}

	cmd.AddCommand(
		newAuthTokenCmd(),
		newAuthStatusCmd(),
		newAuthSetupCmd(),
		newAuthForgetCmd(),
	)

	return cmd
}

// tokenInfo is the printable view of a token.
type tokenInfo struct {
	Scope       string    `json:"scope"`
	AccessToken string    `json:"access_token,omitempty"`
	TokenType   string    `json:"token_type,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	TTL         string    `json:"ttl"`
}

func newAuthTokenCmd() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an access token",
		Long:  "Request an access token for a scope and print it. Useful for calling the API with other tools.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if err := app.RequireCredentials(); err != nil {
				return err
			}
			if scope == "" {
				scope = app.Config.DefaultScope
			}

			tok, err := app.Tokens.Token(cmd.Context(), scope)
			if err != nil {
				return err
			}

			return app.OK(tokenInfo{
				Scope:       tok.Scope,
				AccessToken: tok.AccessToken,
				TokenType:   tok.TokenType,
				ExpiresAt:   tok.ExpiresAt.UTC(),
				TTL:         tok.TTL(time.Now()).Round(time.Second).String(),
			}, output.WithSummary(fmt.Sprintf("Token for %s", scope)))
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "OAuth scope (default: default_scope from config)")

	return cmd
}

// scopeStatus is one row of auth status.
type scopeStatus struct {
	Scope     string `json:"scope"`
	Families  string `json:"families"`
	OK        bool   `json:"ok"`
	ExpiresIn string `json:"expires_in,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check credentials against every configured scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if err := app.RequireCredentials(); err != nil {
				return err
			}

			rows := checkScopes(cmd.Context(), app.Tokens, app.Service.Scopes)

			ok := 0
			for _, r := range rows {
				if r.OK {
					ok++
				}
			}
			return app.OK(rows,
				output.WithSummary(fmt.Sprintf("%d of %d scopes authorized for %s", ok, len(rows), app.Config.ClientID)),
				output.WithMeta("oauth_url", app.Config.OAuthURL),
			)
		},
	}
}

// checkScopes requests a token for every distinct scope concurrently.
func checkScopes(ctx context.Context, tokens *auth.Manager, scopes lightcast.Scopes) []scopeStatus {
	byScope := map[string]string{}
	for _, f := range lightcast.Families() {
		s := scopes.For(f)
		if byScope[s] != "" {
			byScope[s] += ", "
		}
		byScope[s] += string(f)
	}

	distinct := scopes.Distinct(lightcast.Families()...)
	rows := make([]scopeStatus, len(distinct))

	g, gctx := errgroup.WithContext(ctx)
	for i, scope := range distinct {
		g.Go(func() error {
			row := scopeStatus{Scope: scope, Families: byScope[scope]}
			tok, err := tokens.Token(gctx, scope)
			if err != nil {
				row.Error = describe(err)
			} else {
				row.OK = true
				row.ExpiresIn = tok.TTL(time.Now()).Round(time.Second).String()
			}
			rows[i] = row
			return nil
		})
	}
	_ = g.Wait()
	return rows
}

func describe(err error) string {
	if e, ok := apierr.As(err); ok {
		return string(e.Kind) + ": " + e.Message
	}
	return err.Error()
}

func newAuthSetupCmd() *cobra.Command {
	var clientID, clientSecret string
	var skipVerify bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Store Lightcast client credentials",
		Long: `Store the client ID in the config file and the client secret in the
system keyring. Without flags the credentials are prompted for interactively.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if app.Secrets == nil {
				return fmt.Errorf("secret store not initialized")
			}

			creds := prompt.Credentials{ClientID: clientID, ClientSecret: clientSecret, Save: true}
			if creds.ClientID == "" || creds.ClientSecret == "" {
				if !isInteractive() {
					return output.ErrUsageHint("Client ID and secret required",
						"Pass --client-id and --client-secret, or run in a terminal")
				}
				if creds.ClientID == "" {
					creds.ClientID = app.Config.ClientID
				}
				creds, err = newPrompter().Credentials(creds)
				if prompt.IsAborted(err) {
					return output.ErrUsage("setup canceled")
				}
				if err != nil {
					return err
				}
			}

			if !skipVerify {
				verifier := auth.NewManager(config.Credentials{
					ClientID:     creds.ClientID,
					ClientSecret: creds.ClientSecret,
					OAuthURL:     app.Config.OAuthURL,
					BaseURL:      app.Config.BaseURL,
				}, auth.WithRequestTimeout(app.Config.Timeout), auth.WithLogger(app.Log))
				if _, err := verifier.Token(cmd.Context(), app.Config.DefaultScope); err != nil {
					return fmt.Errorf("verifying credentials: %w", err)
				}
			}

			if err := app.Secrets.Set(creds.ClientID, creds.ClientSecret); err != nil {
				return fmt.Errorf("storing client secret: %w", err)
			}

			configPath := ""
			if creds.Save {
				configPath = app.Flags.ConfigFile
				if configPath == "" {
					configPath = config.GlobalConfigPath()
				}
				if err := config.SaveGlobal(configPath, map[string]string{"client_id": creds.ClientID}); err != nil {
					return fmt.Errorf("saving config: %w", err)
				}
			}

			storage := "keyring"
			if !app.Secrets.UsingKeyring() {
				storage = app.Secrets.Path()
			}
			return app.OK(map[string]any{
				"client_id":      creds.ClientID,
				"secret_storage": storage,
				"config_path":    configPath,
				"verified":       !skipVerify,
			}, output.WithSummary("Credentials saved"))
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "Lightcast client ID")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "Lightcast client secret")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Store the credentials without requesting a token first")

	return cmd
}

func newAuthForgetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "forget",
		Short: "Remove the stored client secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if app.Secrets == nil {
				return fmt.Errorf("secret store not initialized")
			}
			if app.Config.ClientID == "" {
				return output.ErrUsage("No client ID configured")
			}

			if !yes && isInteractive() {
				ok, err := newPrompter().Confirm(fmt.Sprintf("Remove the stored secret for %s?", app.Config.ClientID), false)
				if err != nil && !prompt.IsAborted(err) {
					return err
				}
				if !ok {
					return output.ErrUsage("forget canceled")
				}
			}

			if err := app.Secrets.Delete(app.Config.ClientID); err != nil && !errors.Is(err, auth.ErrSecretNotFound) {
				return fmt.Errorf("removing client secret: %w", err)
			}
			return app.OK(map[string]any{
				"client_id": app.Config.ClientID,
				"status":    "forgotten",
			}, output.WithSummary("Client secret removed"))
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	return cmd
}
