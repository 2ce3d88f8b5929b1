// Package hierarchy expands a place into its ordered geographic fallback
// ladder (Local → District → County → Regional → National → Continental →
// Global), each rung carrying the search key used to query providers.
package hierarchy

import (
	"strings"

	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/internal/normalize"
)

// Expand returns the hierarchy for subject. It performs no I/O and is
// deterministic.
//
// A level is omitted when the geo field it needs is empty or when its search
// key folds equal to a key already produced. Global is always last and always
// present.
//
// The Local key is qualified with region and country whenever either is
// known: a bare place name pulls results for same-named places elsewhere.
func Expand(subject string, geo model.Geo, kind model.ArtifactKind) []model.HierarchyLevel {
	subject = strings.TrimSpace(subject)
	region := strings.TrimSpace(geo.Region)
	country := strings.TrimSpace(geo.Country)

	candidates := []struct {
		name  model.LevelName
		need  string
		parts []string
	}{
		{model.LevelLocal, subject, []string{subject, geo.Local, region, country}},
		{model.LevelDistrict, geo.District, []string{geo.District, region, country}},
		{model.LevelCounty, geo.County, []string{geo.County, region, country}},
		{model.LevelRegional, region, []string{region, country}},
		{model.LevelNational, country, []string{country}},
		{model.LevelContinental, geo.Continent, []string{geo.Continent}},
	}

	levels := make([]model.HierarchyLevel, 0, len(model.Levels))
	seen := make(map[string]bool, len(model.Levels))
	add := func(name model.LevelName, key string) {
		folded := normalize.Fold(key)
		if folded == "" || seen[folded] {
			return
		}
		seen[folded] = true
		levels = append(levels, model.HierarchyLevel{Name: name, SearchKey: key})
	}

	for _, c := range candidates {
		if strings.TrimSpace(c.need) == "" {
			continue
		}
		add(c.name, join(c.parts...))
	}
	add(model.LevelGlobal, GlobalKey(kind))

	return levels
}

// GlobalKey is the generic, kind-appropriate terminal query.
func GlobalKey(kind model.ArtifactKind) string {
	return kind.Noun() + " travel destination"
}

// join comma-joins the non-empty parts, dropping a part that folds equal to
// the one before it ("Oslo, Oslo, Norway" → "Oslo, Norway").
func join(parts ...string) string {
	out := make([]string, 0, len(parts))
	prev := ""
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f := normalize.Fold(p)
		if f == prev {
			continue
		}
		prev = f
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}
