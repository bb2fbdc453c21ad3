package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightcast-mcp/lightcast-mcp/internal/auth"
	"github.com/lightcast-mcp/lightcast-mcp/internal/output"
)

// isolate points every config and state location at temp dirs.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv(auth.NoKeyringEnv, "1")
	for _, k := range []string{
		"LIGHTCAST_CLIENT_ID", "LIGHTCAST_CLIENT_SECRET", "LIGHTCAST_BASE_URL",
		"LIGHTCAST_OAUTH_URL", "LIGHTCAST_STATE_DIR", "LIGHTCAST_RATE_LIMIT",
		"MCP_SERVER_NAME", "LOG_LEVEL", "MASK_ERROR_DETAILS",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func TestRootCommandTree(t *testing.T) {
	cmd := NewRootCmd()

	for _, name := range []string{"serve", "auth", "api", "config", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	pf := cmd.PersistentFlags()
	for _, name := range []string{"config", "json", "quiet", "verbose", "no-state"} {
		assert.NotNil(t, pf.Lookup(name), name)
	}
	assert.Equal(t, "v", pf.Lookup("verbose").Shorthand)
	assert.Empty(t, pf.Lookup("quiet").Shorthand, "-q belongs to api --query")
}

func TestRunVersion(t *testing.T) {
	isolate(t)
	var out bytes.Buffer

	code := run(context.Background(), []string{"version", "--json"}, &out)
	assert.Equal(t, output.ExitOK, code)
	assert.Contains(t, out.String(), `"version"`)
}

func TestRunMissingCredentials(t *testing.T) {
	isolate(t)
	var out bytes.Buffer

	code := run(context.Background(), []string{"auth", "token", "--json", "--no-state"}, &out)
	assert.Equal(t, output.ExitAuth, code)

	var resp output.ErrorResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp), out.String())
	assert.Equal(t, output.CodeAuth, resp.Code)
}

func TestRunConfigShowFromFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client_id: from-file\nclient_secret: hidden-secret\n"), 0600))
	var out bytes.Buffer

	code := run(context.Background(), []string{"config", "show", "--json", "--config", path}, &out)
	require.Equal(t, output.ExitOK, code, out.String())
	assert.Contains(t, out.String(), "from-file")
	assert.NotContains(t, out.String(), "hidden-secret")
}

func TestRunResolvesSecretFromStore(t *testing.T) {
	dir := isolate(t)
	store := auth.NewSecretStore(filepath.Join(dir, "config", "lightcast-mcp"), zerolog.Nop())
	require.NoError(t, store.Set("stored-id", "stored-secret-value"))
	t.Setenv("LIGHTCAST_CLIENT_ID", "stored-id")
	var out bytes.Buffer

	code := run(context.Background(), []string{"config", "show", "--json"}, &out)
	require.Equal(t, output.ExitOK, code, out.String())
	assert.Contains(t, out.String(), "stor****")
	assert.Contains(t, out.String(), `"keyring"`)
}

func TestRunMissingConfigFile(t *testing.T) {
	dir := isolate(t)
	var out bytes.Buffer

	code := run(context.Background(), []string{"config", "show", "--json", "--config", filepath.Join(dir, "nope.yaml")}, &out)
	assert.Equal(t, output.ExitUsage, code)
}

func TestRunUnknownFlag(t *testing.T) {
	isolate(t)
	var out bytes.Buffer

	code := run(context.Background(), []string{"version", "--bogus", "--json"}, &out)
	assert.Equal(t, output.ExitUsage, code)
}

func TestTransformCobraError(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"flag needs an argument: --scope", "--scope requires a value"},
		{"unknown flag: --bogus", "Unknown option: --bogus"},
		{"unknown shorthand flag: 'x' in -x", "Unknown option: -x"},
		{`required flag(s) "data" not set`, "--data is required"},
		{"accepts 1 arg(s), received 0", "accepts 1 arg(s), received 0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := transformCobraError(errors.New(tt.in))
			var oe *output.Error
			require.True(t, errors.As(err, &oe))
			assert.Equal(t, output.CodeUsage, oe.Code)
			assert.Equal(t, tt.want, oe.Message)
		})
	}

	other := errors.New("something else")
	assert.Same(t, other, transformCobraError(other))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	assert.Equal(t, zerolog.InfoLevel, NewLogger(&buf, "", 0).GetLevel())
	assert.Equal(t, zerolog.WarnLevel, NewLogger(&buf, "WARN", 0).GetLevel())
	assert.Equal(t, zerolog.DebugLevel, NewLogger(&buf, "warn", 1).GetLevel())
	assert.Equal(t, zerolog.TraceLevel, NewLogger(&buf, "info", 2).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, NewLogger(&buf, "nonsense", 0).GetLevel())

	logger := NewLogger(&buf, "info", 0)
	logger.Info().Str("k", "v").Msg("hello")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), "non-TTY output is JSON")
	assert.Equal(t, "hello", line["message"])
}
