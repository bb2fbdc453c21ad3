// Package appctx wires the application's shared components together.
package appctx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lightcast-mcp/lightcast-mcp/internal/api"
	"github.com/lightcast-mcp/lightcast-mcp/internal/auth"
	"github.com/lightcast-mcp/lightcast-mcp/internal/config"
	"github.com/lightcast-mcp/lightcast-mcp/internal/lightcast"
	"github.com/lightcast-mcp/lightcast-mcp/internal/observability"
	"github.com/lightcast-mcp/lightcast-mcp/internal/output"
	"github.com/lightcast-mcp/lightcast-mcp/internal/resilience"
	"github.com/lightcast-mcp/lightcast-mcp/internal/tools"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config  *config.Config
	Tokens  *auth.Manager
	Client  *api.Client
	Guards  *resilience.Guards
	Service *lightcast.Service
	Output  *output.Writer
	Log     zerolog.Logger

	// Secrets stores the client secret. Set by the CLI after NewApp.
	Secrets *auth.SecretStore

	// Observability
	Collector *observability.SessionCollector
	Hooks     *observability.LogHooks

	// Flags holds the global flag values
	Flags GlobalFlags
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	ConfigFile string
	JSON       bool
	Quiet      bool
	Verbose    int // 0=info, 1=debug, 2=trace (stacks with -v -v or -vv)
	NoState    bool
}

// Option customizes NewApp.
type Option func(*options)

type options struct {
	stdout io.Writer
	now    func() time.Time
}

// WithStdout redirects command output (for tests).
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithClock overrides the time source of the token manager and API client.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewApp builds every component from cfg. Nothing here touches the network.
func NewApp(cfg *config.Config, flags GlobalFlags, log zerolog.Logger, opts ...Option) *App {
	o := options{stdout: os.Stdout, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	collector := observability.NewSessionCollector()
	hooks := observability.NewLogHooks(flags.Verbose, collector, log)

	guards := resilience.DefaultConfig().
		WithStateDir(cfg.StateDir).
		WithRequestsPerHour(cfg.RateLimitPerHour).
		WithMaxInFlight(cfg.MaxInFlight)
	if flags.NoState {
		guards.Shared = false
	}
	g := guards.Build()

	creds := cfg.Credentials()
	tokens := auth.NewManager(creds,
		auth.WithSafetyMargin(cfg.SafetyMargin),
		auth.WithRequestTimeout(cfg.Timeout),
		auth.WithLogger(log.With().Str("component", "auth").Logger()),
		auth.WithRefreshHook(collector.RecordTokenRefresh),
		auth.WithClock(o.now),
	)

	client := api.NewClient(creds, tokens,
		api.WithRetryPolicy(RetryPolicy(cfg.Retry)),
		api.WithRateLimits(g.Tracker),
		api.WithBudget(g.Budget),
		api.WithBulkhead(g.Bulkhead),
		api.WithHooks(hooks),
		api.WithTimeout(cfg.Timeout),
		api.WithLogger(log.With().Str("component", "api").Logger()),
		api.WithClock(o.now),
	)

	service := lightcast.NewService(client, lightcast.NewScopes(cfg.DefaultScope, cfg.Scopes))

	return &App{
		Config:    cfg,
		Tokens:    tokens,
		Client:    client,
		Guards:    g,
		Service:   service,
		Output:    output.New(output.Options{Format: outputFormat(flags), Writer: o.stdout}),
		Log:       log,
		Collector: collector,
		Hooks:     hooks,
		Flags:     flags,
	}
}

// RetryPolicy converts the configured retry settings into an api policy.
func RetryPolicy(rc config.RetryConfig) api.RetryPolicy {
	p := api.DefaultRetryPolicy()
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	if rc.BaseDelay > 0 {
		p.BaseDelay = rc.BaseDelay
	}
	if rc.MaxDelay > 0 {
		p.MaxDelay = rc.MaxDelay
	}
	if rc.MaxWait > 0 {
		p.MaxWait = rc.MaxWait
	}
	p.AutoWait = rc.AutoWait
	return p
}

func outputFormat(flags GlobalFlags) output.Format {
	switch {
	case flags.Quiet:
		return output.FormatQuiet
	case flags.JSON:
		return output.FormatJSON
	default:
		return output.FormatAuto
	}
}

// ToolDeps returns the dependencies for the MCP tool layer.
func (a *App) ToolDeps() tools.Deps {
	return tools.Deps{
		Service:    a.Service,
		Tokens:     a.Tokens,
		Limits:     a.Guards.Tracker,
		Collector:  a.Collector,
		Hooks:      a.Hooks,
		Log:        a.Log.With().Str("component", "tools").Logger(),
		ServerName: a.Config.ServerName,
		BaseURL:    a.Config.BaseURL,
		MaskErrors: a.Config.MaskErrorDetails,
	}
}

// RequireCredentials validates the configuration before any remote call.
func (a *App) RequireCredentials() error {
	err := a.Config.Validate()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, config.ErrMissingCredentials):
		return output.ErrAuth(err.Error())
	default:
		return output.ErrUsage(err.Error())
	}
}

// OK outputs a success response.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	return a.Output.OK(data, opts...)
}

// Err outputs an error response, then a one-line session summary on
// stderr when verbose.
func (a *App) Err(err error) error {
	if outputErr := a.Output.Err(err); outputErr != nil {
		return outputErr
	}
	if a.Flags.Verbose > 0 && a.Output.Format() != output.FormatQuiet {
		fmt.Fprintln(os.Stderr, StatsLine(a.Collector.Summary()))
	}
	return nil
}

// StatsLine formats session metrics compactly.
func StatsLine(m observability.SessionMetrics) string {
	parts := []string{fmt.Sprintf("%d requests", m.TotalRequests)}
	if m.TotalRetries > 0 {
		parts = append(parts, fmt.Sprintf("%d retries", m.TotalRetries))
	}
	if m.FailedRequests > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", m.FailedRequests))
	}
	if m.RateLimited > 0 {
		parts = append(parts, fmt.Sprintf("%d rate limited", m.RateLimited))
	}
	if m.TotalRequests > 0 {
		parts = append(parts, fmt.Sprintf("avg %dms", m.AvgLatencyMS))
	}
	return "Stats: " + strings.Join(parts, " | ")
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
