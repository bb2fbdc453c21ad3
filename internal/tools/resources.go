package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/lightcast-mcp/lightcast-mcp/internal/lightcast"
	"github.com/lightcast-mcp/lightcast-mcp/internal/observability"
	"github.com/lightcast-mcp/lightcast-mcp/internal/resilience"
	"github.com/lightcast-mcp/lightcast-mcp/internal/version"
)

const (
	InfoURI   = "lightcast://server/info"
	HealthURI = "lightcast://server/health"

	defaultHealthTimeout = 10 * time.Second
)

// ServerInfo is the body of the info resource.
type ServerInfo struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Description   string            `json:"description"`
	BaseURL       string            `json:"base_url,omitempty"`
	SupportedAPIs []string          `json:"supported_apis"`
	Auth          string            `json:"authentication"`
	Scopes        map[string]string `json:"scopes"`
}

// ScopeHealth is the outcome of fetching a token for one scope.
type ScopeHealth struct {
	Scope   string `json:"scope"`
	OK      bool   `json:"ok"`
	TTL     string `json:"ttl,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Health is the body of the health resource.
type Health struct {
	Status     string                               `json:"status"`
	CheckedAt  time.Time                            `json:"checked_at"`
	Scopes     []ScopeHealth                        `json:"scopes"`
	RateLimits map[string]resilience.RateLimitState `json:"rate_limits,omitempty"`
	Session    *observability.SessionMetrics        `json:"session,omitempty"`
}

func registerResources(server *mcp.Server, r *registrar) {
	server.AddResource(&mcp.Resource{
		URI:         InfoURI,
		Name:        "server-info",
		Description: "Server name, version and the Lightcast APIs it covers.",
		MIMEType:    "application/json",
	}, func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return resourceJSON(InfoURI, r.info())
	})

	server.AddResource(&mcp.Resource{
		URI:         HealthURI,
		Name:        "server-health",
		Description: "Token status for each configured scope plus session metrics.",
		MIMEType:    "application/json",
	}, func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return resourceJSON(HealthURI, r.health(ctx))
	})
}

func (r *registrar) info() ServerInfo {
	name := r.deps.ServerName
	if name == "" {
		name = version.Name
	}
	scopes := make(map[string]string)
	if r.deps.Service != nil {
		for f, s := range r.deps.Service.Scopes.Table() {
			scopes[string(f)] = s
		}
	}
	return ServerInfo{
		Name:          name,
		Version:       version.Version,
		Description:   "MCP server for the Lightcast skills, titles and classification APIs",
		BaseURL:       r.deps.BaseURL,
		SupportedAPIs: []string{"skills", "titles", "classification"},
		Auth:          "OAuth2 client credentials",
		Scopes:        scopes,
	}
}

// health fetches a token for every scope the tools use. Individual
// failures are reported per scope; the overall status degrades but the
// read itself never fails.
func (r *registrar) health(ctx context.Context) Health {
	timeout := r.deps.HealthTimeout
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var scopes []string
	if r.deps.Service != nil {
		scopes = r.deps.Service.Scopes.Distinct()
	} else {
		scopes = lightcast.NewScopes("", nil).Distinct()
	}

	results := make([]ScopeHealth, len(scopes))
	g, gctx := errgroup.WithContext(ctx)
	for i, scope := range scopes {
		g.Go(func() error {
			results[i] = r.checkScope(gctx, scope)
			return nil
		})
	}
	_ = g.Wait() // checkScope never fails the group

	h := Health{
		Status:    "healthy",
		CheckedAt: time.Now().UTC(),
		Scopes:    results,
	}
	for _, res := range results {
		if !res.OK {
			h.Status = "degraded"
		}
	}
	if r.deps.Limits != nil {
		h.RateLimits = r.deps.Limits.Snapshot()
	}
	if r.deps.Collector != nil {
		s := r.deps.Collector.Summary()
		h.Session = &s
	}
	return h
}

func (r *registrar) checkScope(ctx context.Context, scope string) ScopeHealth {
	res := ScopeHealth{Scope: scope}
	if r.deps.Tokens == nil {
		res.Kind = KindInternal
		res.Message = "no token source configured"
		return res
	}

	tok, err := r.deps.Tokens.Token(ctx, scope)
	if err != nil {
		body := classify(err)
		if r.deps.MaskErrors {
			body = mask(body)
		}
		res.Kind = body.Kind
		res.Message = body.Message
		r.deps.Log.Warn().Err(err).Str("scope", scope).Msg("health check failed")
		return res
	}

	res.OK = true
	res.TTL = tok.TTL(time.Now()).Round(time.Second).String()
	return res
}

func resourceJSON(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
