package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lightcast-mcp/lightcast-mcp/internal/config"
	"github.com/lightcast-mcp/lightcast-mcp/internal/output"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long: `Inspect the resolved configuration.

Values are resolved from defaults, the system and user config files,
LIGHTCAST_* environment variables and flags, in that order.`,
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// configEntry is one resolved setting.
type configEntry struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Display the effective configuration with the source of each value. Secrets are redacted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			entries := configEntries(app.Config)
			path := app.Flags.ConfigFile
			if path == "" {
				path = config.GlobalConfigPath()
			}
			return app.OK(entries,
				output.WithSummary("Effective configuration"),
				output.WithMeta("config_path", path),
			)
		},
	}
}

func configEntries(c *config.Config) []configEntry {
	values := []struct{ key, value string }{
		{"client_id", c.ClientID},
		{"client_secret", config.Redact(c.ClientSecret)},
		{"base_url", c.BaseURL},
		{"oauth_url", c.OAuthURL},
		{"default_scope", c.DefaultScope},
		{"safety_margin", c.SafetyMargin.String()},
		{"timeout", c.Timeout.String()},
		{"rate_limit_per_hour", strconv.Itoa(c.RateLimitPerHour)},
		{"max_in_flight", strconv.Itoa(c.MaxInFlight)},
		{"retry.max_attempts", strconv.Itoa(c.Retry.MaxAttempts)},
		{"retry.base_delay", c.Retry.BaseDelay.String()},
		{"retry.max_delay", c.Retry.MaxDelay.String()},
		{"retry.auto_wait", strconv.FormatBool(c.Retry.AutoWait)},
		{"retry.max_wait", c.Retry.MaxWait.String()},
		{"state_dir", c.StateDir},
		{"server_name", c.ServerName},
		{"log_level", c.LogLevel},
		{"mask_error_details", strconv.FormatBool(c.MaskErrorDetails)},
	}

	entries := make([]configEntry, 0, len(values)+len(c.Scopes))
	for _, v := range values {
		entries = append(entries, configEntry{Key: v.key, Value: v.value, Source: sourceOf(c, v.key)})
	}

	families := make([]string, 0, len(c.Scopes))
	for f := range c.Scopes {
		families = append(families, f)
	}
	sort.Strings(families)
	for _, f := range families {
		entries = append(entries, configEntry{
			Key:    fmt.Sprintf("scopes.%s", f),
			Value:  c.Scopes[f],
			Source: sourceOf(c, "scopes"),
		})
	}
	return entries
}

// sourceOf reports where key came from. Nested keys inherit the source of
// their section.
func sourceOf(c *config.Config, key string) string {
	if s := c.Sources[key]; s != "" {
		return s
	}
	if section, _, ok := strings.Cut(key, "."); ok {
		if s := c.Sources[section]; s != "" {
			return s
		}
	}
	return string(config.SourceDefault)
}
