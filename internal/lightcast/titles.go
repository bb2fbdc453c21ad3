package lightcast

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/lightcast-mcp/lightcast-mcp/internal/api"
)

// TitlesClient calls the titles API family.
type TitlesClient struct {
	base
}

// Search finds titles by name.
func (c *TitlesClient) Search(ctx context.Context, query string, limit, offset int, version string) (json.RawMessage, error) {
	if err := required("query", query); err != nil {
		return nil, err
	}
	resp, err := c.get(ctx, FamilyTitles, versioned("titles", version, "/titles"), paging(query, limit, offset))
	if err != nil {
		return nil, err
	}
	return list(resp)
}

// Get returns one title by ID.
func (c *TitlesClient) Get(ctx context.Context, id, version string) (json.RawMessage, error) {
	if err := required("id", id); err != nil {
		return nil, err
	}
	resp, err := c.get(ctx, FamilyTitles, versioned("titles", version, "/titles/"+url.PathEscape(id)), nil)
	if err != nil {
		return nil, err
	}
	return object(resp)
}

// Normalize maps a free-form job title onto the closest standard title.
// The raw title is sent as a text/plain body.
func (c *TitlesClient) Normalize(ctx context.Context, raw, version string) (json.RawMessage, error) {
	if err := required("title", raw); err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, FamilyTitles, versioned("titles", version, "/normalize"), nil, api.Text(raw))
	if err != nil {
		return nil, err
	}
	return object(resp)
}

// Hierarchy returns the occupation hierarchy a title belongs to.
func (c *TitlesClient) Hierarchy(ctx context.Context, id, version string) (json.RawMessage, error) {
	if err := required("id", id); err != nil {
		return nil, err
	}
	resp, err := c.get(ctx, FamilyTitles, versioned("titles", version, "/titles/"+url.PathEscape(id)+"/hierarchy"), nil)
	if err != nil {
		return nil, err
	}
	return data(resp)
}

// Metadata returns version metadata for the titles taxonomy.
func (c *TitlesClient) Metadata(ctx context.Context, version string) (json.RawMessage, error) {
	resp, err := c.get(ctx, FamilyTitles, versioned("titles", version, ""), nil)
	if err != nil {
		return nil, err
	}
	return data(resp)
}
