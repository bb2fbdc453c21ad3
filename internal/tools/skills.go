package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lightcast-mcp/lightcast-mcp/internal/lightcast"
)

type SearchSkillsInput struct {
	Query       string `json:"query" jsonschema:"search term, e.g. a skill name"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of results (default 10)"`
	Offset      int    `json:"offset,omitempty" jsonschema:"number of results to skip"`
	SkillType   string `json:"skill_type,omitempty" jsonschema:"filter by skill type ID"`
	Category    string `json:"category,omitempty" jsonschema:"filter by category"`
	Subcategory string `json:"subcategory,omitempty" jsonschema:"filter by subcategory"`
	Version     string `json:"version,omitempty" jsonschema:"taxonomy version (default latest)"`
}

type SkillIDInput struct {
	SkillID string `json:"skill_id" jsonschema:"Lightcast skill ID"`
	Version string `json:"version,omitempty" jsonschema:"taxonomy version (default latest)"`
}

type MultipleSkillsInput struct {
	SkillIDs []string `json:"skill_ids" jsonschema:"Lightcast skill IDs"`
	Version  string   `json:"version,omitempty" jsonschema:"taxonomy version (default latest)"`
}

type RelatedSkillsInput struct {
	SkillID string `json:"skill_id" jsonschema:"Lightcast skill ID"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of related skills (default 10)"`
	Version string `json:"version,omitempty" jsonschema:"taxonomy version (default latest)"`
}

type VersionInput struct {
	Version string `json:"version,omitempty" jsonschema:"taxonomy version (default latest)"`
}

type ExtractSkillsInput struct {
	Text                string  `json:"text" jsonschema:"free text such as a job posting or resume"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty" jsonschema:"minimum confidence between 0 and 1 (default 0.5)"`
	Version             string  `json:"version,omitempty" jsonschema:"taxonomy version (default latest)"`
}

// defaultExtractThreshold is applied when the caller gives none.
const defaultExtractThreshold = 0.5

func registerSkills(server *mcp.Server, r *registrar) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_skills",
		Description: "Search the Lightcast skills taxonomy by name, optionally filtered by type, category or subcategory.",
		Annotations: readOnly,
	}, handle(r, "search_skills", func(ctx context.Context, in SearchSkillsInput) (any, error) {
		return r.svc().Skills.Search(ctx, lightcast.SkillSearch{
			Query:       in.Query,
			Limit:       in.Limit,
			Offset:      in.Offset,
			Type:        in.SkillType,
			Category:    in.Category,
			Subcategory: in.Subcategory,
			Version:     in.Version,
		})
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_skill_details",
		Description: "Get detailed information about a skill by its Lightcast ID.",
		Annotations: readOnly,
	}, handle(r, "get_skill_details", func(ctx context.Context, in SkillIDInput) (any, error) {
		return r.svc().Skills.Get(ctx, in.SkillID, in.Version)
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_multiple_skills",
		Description: "Get details for several skills in one request.",
		Annotations: readOnly,
	}, handle(r, "get_multiple_skills", func(ctx context.Context, in MultipleSkillsInput) (any, error) {
		return r.svc().Skills.GetMany(ctx, in.SkillIDs, in.Version)
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_related_skills",
		Description: "Find skills related to a given skill.",
		Annotations: readOnly,
	}, handle(r, "get_related_skills", func(ctx context.Context, in RelatedSkillsInput) (any, error) {
		return r.svc().Skills.Related(ctx, in.SkillID, in.Limit, in.Version)
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_skill_categories",
		Description: "List the skill categories and subcategories of the taxonomy.",
		Annotations: readOnly,
	}, handle(r, "get_skill_categories", func(ctx context.Context, in VersionInput) (any, error) {
		return r.svc().Skills.Categories(ctx, in.Version)
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "extract_skills_from_text",
		Description: "Extract Lightcast skills mentioned in free text such as a job description.",
		Annotations: readOnly,
	}, handle(r, "extract_skills_from_text", func(ctx context.Context, in ExtractSkillsInput) (any, error) {
		threshold := in.ConfidenceThreshold
		if threshold <= 0 {
			threshold = defaultExtractThreshold
		}
		return r.svc().Skills.Extract(ctx, in.Text, threshold, in.Version)
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_skills_metadata",
		Description: "Get metadata about the skills taxonomy, such as version and counts.",
		Annotations: readOnly,
	}, handle(r, "get_skills_metadata", func(ctx context.Context, in VersionInput) (any, error) {
		return r.svc().Skills.Metadata(ctx, in.Version)
	}))
}
