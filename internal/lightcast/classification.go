package lightcast

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
)

// ClassificationClient calls the classification API family.
type ClassificationClient struct {
	base
}

// MapConcepts maps free-form concepts (titles, skills, phrases) onto
// occupations, returning at most limit occupations per concept.
func (c *ClassificationClient) MapConcepts(ctx context.Context, concepts []string, limit int, threshold float64, version string) (json.RawMessage, error) {
	if len(concepts) == 0 {
		return nil, required("concepts", "")
	}
	body := map[string]any{
		"concepts": concepts,
		"limit":    limitOr(limit),
	}
	if threshold > 0 {
		body["confidence_threshold"] = threshold
	}
	resp, err := c.post(ctx, FamilyClassification, versioned("classification", version, "/map"), nil, body)
	if err != nil {
		return nil, err
	}
	return list(resp)
}

// SearchOccupations finds occupations by keyword.
func (c *ClassificationClient) SearchOccupations(ctx context.Context, query string, limit int, version string) (json.RawMessage, error) {
	if err := required("query", query); err != nil {
		return nil, err
	}
	q := url.Values{"q": {query}, "limit": {strconv.Itoa(limitOr(limit))}}
	resp, err := c.get(ctx, FamilyClassification, versioned("classification", version, "/occupations"), q)
	if err != nil {
		return nil, err
	}
	return list(resp)
}
