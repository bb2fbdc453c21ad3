// Package lightcast implements thin clients for the Lightcast skills,
// titles and classification API families on top of api.Client.
//
// Responses are returned as the raw "data" member so callers see every
// field the service sends.
package lightcast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/lightcast-mcp/lightcast-mcp/internal/api"
	"github.com/lightcast-mcp/lightcast-mcp/internal/apierr"
)

// DefaultVersion is used when a method is called with an empty version.
const DefaultVersion = "latest"

// DefaultLimit is used when a method is called with a non-positive limit.
const DefaultLimit = 10

// ErrMissingArgument is returned when a required argument is empty.
var ErrMissingArgument = errors.New("lightcast: missing argument")

// Doer performs API requests. *api.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req api.Request) (*api.Response, error)
}

var _ Doer = (*api.Client)(nil)

// Service bundles the per-family clients.
type Service struct {
	Skills         *SkillsClient
	Titles         *TitlesClient
	Classification *ClassificationClient
	Scopes         Scopes
}

// NewService creates clients for every family sharing one Doer.
func NewService(doer Doer, scopes Scopes) *Service {
	b := base{doer: doer, scopes: scopes}
	return &Service{
		Skills:         &SkillsClient{base: b},
		Titles:         &TitlesClient{base: b},
		Classification: &ClassificationClient{base: b},
		Scopes:         scopes,
	}
}

// base holds what every family client needs.
type base struct {
	doer   Doer
	scopes Scopes
}

func (b base) get(ctx context.Context, f Family, path string, q url.Values) (*api.Response, error) {
	return b.doer.Do(ctx, api.Request{Method: "GET", Path: path, Scope: b.scopes.For(f), Query: q})
}

func (b base) post(ctx context.Context, f Family, path string, q url.Values, body any) (*api.Response, error) {
	return b.doer.Do(ctx, api.Request{Method: "POST", Path: path, Scope: b.scopes.For(f), Query: q, Body: body})
}

// envelope is the common {"data": ..., "meta": ...} response shape.
type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta json.RawMessage `json:"meta,omitempty"`
}

// data returns the "data" member of a response, or the whole body when the
// response is not enveloped.
func data(resp *api.Response) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(resp.Data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return resp.Data, nil
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, apierr.InvalidResponse("malformed response envelope", err)
	}
	if env.Data == nil {
		return resp.Data, nil
	}
	return env.Data, nil
}

// list returns the "data" member of a response, which must be a JSON array.
func list(resp *api.Response) (json.RawMessage, error) {
	return shaped(resp, '[')
}

// object returns the "data" member of a response, which must be a JSON
// object.
func object(resp *api.Response) (json.RawMessage, error) {
	return shaped(resp, '{')
}

func shaped(resp *api.Response, open byte) (json.RawMessage, error) {
	raw, err := data(resp)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != open {
		return nil, apierr.InvalidResponse(fmt.Sprintf("unexpected response shape: want %q", open), nil)
	}
	return trimmed, nil
}

// versioned builds /<family>/versions/<version><rest>.
func versioned(family, version, rest string) string {
	if version == "" {
		version = DefaultVersion
	}
	return "/" + family + "/versions/" + url.PathEscape(version) + rest
}

func required(name, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}
	return nil
}

func limitOr(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return n
}

func paging(q string, limit, offset int) url.Values {
	v := url.Values{}
	v.Set("q", q)
	v.Set("limit", strconv.Itoa(limitOr(limit)))
	if offset > 0 {
		v.Set("offset", strconv.Itoa(offset))
	}
	return v
}
