package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type MapConceptsInput struct {
	Concepts            []string `json:"concepts" jsonschema:"concepts to map, such as job titles or skills"`
	Limit               int      `json:"limit,omitempty" jsonschema:"maximum occupations per concept (default 10)"`
	ConfidenceThreshold float64  `json:"confidence_threshold,omitempty" jsonschema:"minimum confidence between 0 and 1"`
	Version             string   `json:"version,omitempty" jsonschema:"classification version (default latest)"`
}

type SearchOccupationsInput struct {
	Query   string `json:"query" jsonschema:"occupation keyword"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of results (default 10)"`
	Version string `json:"version,omitempty" jsonschema:"classification version (default latest)"`
}

func registerClassification(server *mcp.Server, r *registrar) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "map_concepts_to_occupations",
		Description: "Map concepts such as job titles or skills onto standard occupations.",
		Annotations: readOnly,
	}, handle(r, "map_concepts_to_occupations", func(ctx context.Context, in MapConceptsInput) (any, error) {
		return r.svc().Classification.MapConcepts(ctx, in.Concepts, in.Limit, in.ConfidenceThreshold, in.Version)
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_occupations",
		Description: "Search standard occupations by keyword.",
		Annotations: readOnly,
	}, handle(r, "search_occupations", func(ctx context.Context, in SearchOccupationsInput) (any, error) {
		return r.svc().Classification.SearchOccupations(ctx, in.Query, in.Limit, in.Version)
	}))
}
