// Package tools exposes the Lightcast clients as MCP tools and resources.
package tools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/lightcast-mcp/lightcast-mcp/internal/auth"
	"github.com/lightcast-mcp/lightcast-mcp/internal/lightcast"
	"github.com/lightcast-mcp/lightcast-mcp/internal/observability"
	"github.com/lightcast-mcp/lightcast-mcp/internal/resilience"
	"github.com/lightcast-mcp/lightcast-mcp/internal/version"
)

// TokenSource mints tokens per scope. *auth.Manager satisfies it.
type TokenSource interface {
	Token(ctx context.Context, scope string) (*auth.Token, error)
}

// Deps are the collaborators the tools need.
type Deps struct {
	Service *lightcast.Service
	Tokens  TokenSource

	// Optional.
	Limits    *resilience.Tracker
	Collector *observability.SessionCollector
	Hooks     *observability.LogHooks
	Log       zerolog.Logger

	ServerName string
	BaseURL    string

	// MaskErrors replaces error messages in tool results with generic text.
	MaskErrors bool

	// HealthTimeout bounds the health check. Zero uses 10s.
	HealthTimeout time.Duration
}

// NewServer creates an MCP server with every tool and resource registered.
func NewServer(deps Deps) *mcp.Server {
	name := deps.ServerName
	if name == "" {
		name = version.Name
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version.Version,
	}, nil)
	Register(server, deps)
	return server
}

// Register adds the tools and resources to server.
func Register(server *mcp.Server, deps Deps) {
	r := &registrar{deps: deps}
	registerSkills(server, r)
	registerTitles(server, r)
	registerClassification(server, r)
	registerResources(server, r)
}

// registrar carries deps into the tool handlers.
type registrar struct {
	deps Deps
}

func (r *registrar) svc() *lightcast.Service {
	return r.deps.Service
}

// handle adapts fn into an MCP tool handler. Successful results are
// returned as JSON text; errors become isError results and never fail the
// session.
func handle[In any](r *registrar, name string, fn func(ctx context.Context, in In) (any, error)) mcp.ToolHandlerFor[In, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		out, err := fn(ctx, in)
		r.record(name, err, time.Since(start))
		if err != nil {
			return r.errorResult(name, err), nil, nil
		}
		res, err := jsonResult(out)
		if err != nil {
			return r.errorResult(name, err), nil, nil
		}
		return res, nil, nil
	}
}

func (r *registrar) record(name string, err error, d time.Duration) {
	switch {
	case r.deps.Hooks != nil:
		r.deps.Hooks.ToolCall(name, err, d)
	case r.deps.Collector != nil:
		r.deps.Collector.RecordToolCall(observability.ToolMetrics{Name: name, Duration: d, Error: err})
	}
}

// readOnly is shared by every tool: all of them only read the taxonomy.
var readOnly = &mcp.ToolAnnotations{ReadOnlyHint: true, OpenWorldHint: ptr(true)}

func ptr[T any](v T) *T { return &v }
