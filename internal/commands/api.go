package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lightcast-mcp/lightcast-mcp/internal/api"
	"github.com/lightcast-mcp/lightcast-mcp/internal/appctx"
	"github.com/lightcast-mcp/lightcast-mcp/internal/lightcast"
	"github.com/lightcast-mcp/lightcast-mcp/internal/output"
)

// NewAPICmd creates the api command for raw API access.
func NewAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api <verb> <path>",
		Short: "Raw API access",
		Long: `Make raw requests to any Lightcast API endpoint through the same client the
MCP tools use, including token management and retries.

The OAuth scope is chosen from the first path segment (the API family) unless
--scope is given.`,
	}

	cmd.AddCommand(
		newAPIGetCmd(),
		newAPIPostCmd(),
	)

	return cmd
}

// apiFlags are shared by every verb.
type apiFlags struct {
	scope string
	query []string
	jq    string
}

func (f *apiFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.scope, "scope", "", "OAuth scope (default: from the API family)")
	fs.StringArrayVarP(&f.query, "query", "q", nil, "Query parameter as key=value (repeatable)")
	fs.StringVar(&f.jq, "jq", "", "Filter the response with a jq expression")
}

func newAPIGetCmd() *cobra.Command {
	var f apiFlags

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "GET request to API",
		Long:  "Make a raw GET request, e.g. api get /skills/versions/latest/skills -q q=python -q limit=5",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAPI(cmd, http.MethodGet, args[0], "", f)
		},
	}
	f.register(cmd.Flags())

	return cmd
}

func newAPIPostCmd() *cobra.Command {
	var f apiFlags
	var data string

	cmd := &cobra.Command{
		Use:   "post <path>",
		Short: "POST request to API",
		Long:  `Make a raw POST request, e.g. api post /skills/versions/latest/skills --data '{"ids":["KS1"]}'`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if data == "" {
				return output.ErrUsage("--data is required")
			}
			return runAPI(cmd, http.MethodPost, args[0], data, f)
		},
	}
	f.register(cmd.Flags())
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body (required)")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runAPI(cmd *cobra.Command, method, rawPath, data string, f apiFlags) error {
	app, err := appFrom(cmd)
	if err != nil {
		return err
	}
	if err := app.RequireCredentials(); err != nil {
		return err
	}

	query, err := parseQuery(f.query)
	if err != nil {
		return err
	}

	var filter *gojq.Code
	if f.jq != "" {
		if filter, err = compileJQ(f.jq); err != nil {
			return err
		}
	}

	req := api.Request{
		Method: method,
		Path:   parsePath(rawPath, app.Client.BaseURL()),
		Query:  query,
	}
	req.Scope = f.scope
	if req.Scope == "" {
		req.Scope = scopeForPath(app, req.Path)
	}
	if data != "" {
		if !json.Valid([]byte(data)) {
			return output.ErrUsageHint("Invalid JSON data", "--data must be a JSON document")
		}
		req.Body = json.RawMessage(data)
	}

	resp, err := app.Client.Do(cmd.Context(), req)
	if errors.Is(err, api.ErrInvalidPath) {
		return output.ErrUsage(err.Error())
	}
	if err != nil {
		return err
	}

	var result any = resp.Data
	if filter != nil {
		if result, err = runJQ(cmd.Context(), filter, resp.Data); err != nil {
			return err
		}
	}

	return app.OK(result,
		output.WithSummary(fmt.Sprintf("%s %s: %s", method, req.Path, apiSummary(resp.Data))),
		output.WithMeta("status", resp.StatusCode),
		output.WithMeta("scope", req.Scope),
		output.WithMeta("request_id", resp.RequestID),
	)
}

// parsePath accepts a full URL under the base URL or a relative path.
func parsePath(input, baseURL string) string {
	if baseURL != "" && strings.HasPrefix(input, baseURL) {
		input = strings.TrimPrefix(input, baseURL)
	} else if u, err := url.Parse(input); err == nil && u.IsAbs() {
		input = u.Path
	}
	if !strings.HasPrefix(input, "/") {
		input = "/" + input
	}
	return input
}

// scopeForPath picks the scope of the API family named by the first path
// segment, falling back to the default scope.
func scopeForPath(app *appctx.App, path string) string {
	family, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if _, ok := lightcast.DefaultScopes[lightcast.Family(family)]; ok {
		return app.Service.Scopes.For(lightcast.Family(family))
	}
	return app.Config.DefaultScope
}

func parseQuery(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	q := url.Values{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, output.ErrUsageHint("Invalid query parameter: "+p, "Use key=value")
		}
		q.Add(k, v)
	}
	return q, nil
}

func compileJQ(expr string) (*gojq.Code, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, output.ErrUsageHint("Invalid --jq expression", err.Error())
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, output.ErrUsageHint("Invalid --jq expression", err.Error())
	}
	return code, nil
}

// runJQ applies code to data. A single result is returned as is; several
// results are collected into a slice.
func runJQ(ctx context.Context, code *gojq.Code, data json.RawMessage) (any, error) {
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("decoding response for --jq: %w", err)
	}

	var results []any
	iter := code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if haltErr, ok := err.(*gojq.HaltError); ok && haltErr.Value() == nil {
				break
			}
			return nil, output.ErrUsageHint("--jq failed", err.Error())
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// apiSummary describes a response body briefly.
func apiSummary(data json.RawMessage) string {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Data) > 0 {
		data = envelope.Data
	}

	var arr []any
	if err := json.Unmarshal(data, &arr); err == nil {
		return fmt.Sprintf("%d items", len(arr))
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return "API response"
	}
	for _, key := range []string{"name", "title"} {
		if v, ok := obj[key].(string); ok && v != "" {
			if len(v) > 50 {
				v = v[:47] + "..."
			}
			return v
		}
	}
	return "API response"
}
