package lightcast

import (
	"slices"
	"sort"
)

// Family identifies one Lightcast API family. Each family is served under
// its own OAuth scope.
type Family string

const (
	FamilySkills              Family = "skills"
	FamilyTitles              Family = "titles"
	FamilyClassification      Family = "classification"
	FamilySimilarity          Family = "similarity"
	FamilyOccupationBenchmark Family = "occupation_benchmark"
	FamilyCareerPathways      Family = "career_pathways"
	FamilyJobPostings         Family = "job_postings"
)

// DefaultScopes maps each family to the scope its endpoints require.
var DefaultScopes = map[Family]string{
	FamilySkills:              "emsi_open",
	FamilyTitles:              "emsi_open",
	FamilyClassification:      "classification_api",
	FamilySimilarity:          "similarity",
	FamilyOccupationBenchmark: "occupation-benchmark",
	FamilyCareerPathways:      "career-pathways",
	FamilyJobPostings:         "postings:us",
}

// Scopes resolves the scope for each family. The zero value uses
// DefaultScopes.
type Scopes struct {
	fallback  string
	overrides map[Family]string
}

// NewScopes builds a scope table. overrides is keyed by family name, as in
// the config file's scopes map; fallback is used for unknown families.
func NewScopes(fallback string, overrides map[string]string) Scopes {
	s := Scopes{fallback: fallback, overrides: make(map[Family]string, len(overrides))}
	for k, v := range overrides {
		if v != "" {
			s.overrides[Family(k)] = v
		}
	}
	return s
}

// For returns the scope used for f.
func (s Scopes) For(f Family) string {
	if v, ok := s.overrides[f]; ok {
		return v
	}
	if v, ok := DefaultScopes[f]; ok {
		return v
	}
	if s.fallback != "" {
		return s.fallback
	}
	return DefaultScopes[FamilySkills]
}

// Families returns every known family in a stable order.
func Families() []Family {
	fams := make([]Family, 0, len(DefaultScopes))
	for f := range DefaultScopes {
		fams = append(fams, f)
	}
	slices.Sort(fams)
	return fams
}

// Table returns the resolved family to scope mapping.
func (s Scopes) Table() map[Family]string {
	out := make(map[Family]string, len(DefaultScopes))
	for _, f := range Families() {
		out[f] = s.For(f)
	}
	for f, v := range s.overrides {
		out[f] = v
	}
	return out
}

// Distinct returns the distinct scopes for the given families, sorted.
// With no families it covers the ones the server's tools use.
func (s Scopes) Distinct(families ...Family) []string {
	if len(families) == 0 {
		families = ToolFamilies
	}
	seen := make(map[string]bool)
	var out []string
	for _, f := range families {
		scope := s.For(f)
		if !seen[scope] {
			seen[scope] = true
			out = append(out, scope)
		}
	}
	sort.Strings(out)
	return out
}

// ToolFamilies are the families backing the MCP tools.
var ToolFamilies = []Family{FamilySkills, FamilyTitles, FamilyClassification}
