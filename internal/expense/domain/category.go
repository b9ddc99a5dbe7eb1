package expense

import (
	"errors"
	"strings"

	"github.com/agnivade/levenshtein"
)

// DefaultCategories are offered when no list is configured.
var DefaultCategories = []string{
	"Server Costs",
	"RPC Services",
	"Development",
	"Marketing",
	"Travel",
	"Legal",
	"Other",
}

// maxSuggestDistance bounds how far a typo may be from a suggested category.
const maxSuggestDistance = 4

// Catalog is the fixed set of accepted categories.
type Catalog struct {
	names []string
}

// NewCatalog builds a catalog; blank and duplicate names are dropped.
func NewCatalog(names []string) (Catalog, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return Catalog{}, errors.New("expense: empty category catalog")
	}
	return Catalog{names: out}, nil
}

// Names returns the categories in display order.
func (c Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Match resolves value to a catalog entry, ignoring case. Unknown values yield a
// ValidationError carrying the closest category when one is near enough.
func (c Catalog) Match(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", invalid("category", "a category is required")
	}
	for _, name := range c.names {
		if strings.EqualFold(name, value) {
			return name, nil
		}
	}
	verr := &ValidationError{Field: "category", Reason: "unknown category " + value}
	best, bestDistance := "", maxSuggestDistance+1
	lowered := strings.ToLower(value)
	for _, name := range c.names {
		d := levenshtein.ComputeDistance(lowered, strings.ToLower(name))
		if d < bestDistance {
			best, bestDistance = name, d
		}
	}
	verr.Suggestion = best
	return "", verr
}
