package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type SearchTitlesInput struct {
	Query   string `json:"query" jsonschema:"search term, e.g. a job title"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of results (default 10)"`
	Offset  int    `json:"offset,omitempty" jsonschema:"number of results to skip"`
	Version string `json:"version,omitempty" jsonschema:"taxonomy version (default latest)"`
}

type TitleIDInput struct {
	TitleID string `json:"title_id" jsonschema:"Lightcast title ID"`
	Version string `json:"version,omitempty" jsonschema:"taxonomy version (default latest)"`
}

type NormalizeTitleInput struct {
	RawTitle string `json:"raw_title" jsonschema:"job title as written, e.g. 'sr. software eng'"`
	Version  string `json:"version,omitempty" jsonschema:"taxonomy version (default latest)"`
}

func registerTitles(server *mcp.Server, r *registrar) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_job_titles",
		Description: "Search standardized Lightcast job titles by name.",
		Annotations: readOnly,
	}, handle(r, "search_job_titles", func(ctx context.Context, in SearchTitlesInput) (any, error) {
		return r.svc().Titles.Search(ctx, in.Query, in.Limit, in.Offset, in.Version)
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_job_title_details",
		Description: "Get details for a job title by its Lightcast ID.",
		Annotations: readOnly,
	}, handle(r, "get_job_title_details", func(ctx context.Context, in TitleIDInput) (any, error) {
		return r.svc().Titles.Get(ctx, in.TitleID, in.Version)
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "normalize_job_title",
		Description: "Map a free-form job title onto the closest standardized Lightcast title.",
		Annotations: readOnly,
	}, handle(r, "normalize_job_title", func(ctx context.Context, in NormalizeTitleInput) (any, error) {
		return r.svc().Titles.Normalize(ctx, in.RawTitle, in.Version)
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_title_hierarchy",
		Description: "Get the occupation hierarchy a job title belongs to.",
		Annotations: readOnly,
	}, handle(r, "get_title_hierarchy", func(ctx context.Context, in TitleIDInput) (any, error) {
		return r.svc().Titles.Hierarchy(ctx, in.TitleID, in.Version)
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_titles_metadata",
		Description: "Get metadata about the job titles taxonomy, such as version and counts.",
		Annotations: readOnly,
	}, handle(r, "get_titles_metadata", func(ctx context.Context, in VersionInput) (any, error) {
		return r.svc().Titles.Metadata(ctx, in.Version)
	}))
}
