package lightcast

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
)

// SkillSearch holds search filters.
type SkillSearch struct {
	Query       string
	Limit       int
	Offset      int
	Type        string
	Category    string
	Subcategory string
	Version     string
}

// SkillsClient calls the skills API family.
type SkillsClient struct {
	base
}

// Search finds skills by name with optional filters.
func (c *SkillsClient) Search(ctx context.Context, s SkillSearch) (json.RawMessage, error) {
	if err := required("query", s.Query); err != nil {
		return nil, err
	}
	q := paging(s.Query, s.Limit, s.Offset)
	if s.Type != "" {
		q.Set("type", s.Type)
	}
	if s.Category != "" {
		q.Set("category", s.Category)
	}
	if s.Subcategory != "" {
		q.Set("subcategory", s.Subcategory)
	}

	resp, err := c.get(ctx, FamilySkills, versioned("skills", s.Version, "/skills"), q)
	if err != nil {
		return nil, err
	}
	return list(resp)
}

// Get returns one skill by ID.
func (c *SkillsClient) Get(ctx context.Context, id, version string) (json.RawMessage, error) {
	if err := required("id", id); err != nil {
		return nil, err
	}
	resp, err := c.get(ctx, FamilySkills, versioned("skills", version, "/skills/"+url.PathEscape(id)), nil)
	if err != nil {
		return nil, err
	}
	return object(resp)
}

// GetMany returns several skills in one request.
func (c *SkillsClient) GetMany(ctx context.Context, ids []string, version string) (json.RawMessage, error) {
	if len(ids) == 0 {
		return nil, required("ids", "")
	}
	body := map[string][]string{"ids": ids}
	resp, err := c.post(ctx, FamilySkills, versioned("skills", version, "/skills"), nil, body)
	if err != nil {
		return nil, err
	}
	return list(resp)
}

// Related returns skills related to id.
func (c *SkillsClient) Related(ctx context.Context, id string, limit int, version string) (json.RawMessage, error) {
	if err := required("id", id); err != nil {
		return nil, err
	}
	q := url.Values{"limit": {strconv.Itoa(limitOr(limit))}}
	resp, err := c.get(ctx, FamilySkills, versioned("skills", version, "/skills/"+url.PathEscape(id)+"/related"), q)
	if err != nil {
		return nil, err
	}
	return list(resp)
}

// Categories returns the skill category tree.
func (c *SkillsClient) Categories(ctx context.Context, version string) (json.RawMessage, error) {
	resp, err := c.get(ctx, FamilySkills, versioned("skills", version, "/categories"), nil)
	if err != nil {
		return nil, err
	}
	return data(resp)
}

// Metadata returns version metadata for the skills taxonomy.
func (c *SkillsClient) Metadata(ctx context.Context, version string) (json.RawMessage, error) {
	resp, err := c.get(ctx, FamilySkills, versioned("skills", version, ""), nil)
	if err != nil {
		return nil, err
	}
	return data(resp)
}

// Extract finds skills mentioned in text. Matches below threshold are
// dropped by the service; zero uses the service default.
func (c *SkillsClient) Extract(ctx context.Context, text string, threshold float64, version string) (json.RawMessage, error) {
	if err := required("text", text); err != nil {
		return nil, err
	}
	body := map[string]any{"text": text}
	if threshold > 0 {
		body["confidenceThreshold"] = threshold
	}
	resp, err := c.post(ctx, FamilySkills, versioned("skills", version, "/extract"), nil, body)
	if err != nil {
		return nil, err
	}
	return data(resp)
}
