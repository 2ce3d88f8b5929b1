package resolve

import (
	"net/url"
	"strings"

	geohash "github.com/TomiHiltunen/geohash-golang"

	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/internal/normalize"
)

// geohashPrecision buckets coordinates into cells of roughly 150 m.
const geohashPrecision = 7

// DedupKey derives the set-membership key of an item. URL-valued kinds key
// on the normalized URL, text on the folded text, and geo-carrying kinds on
// the folded name plus a geohash cell so the same place reported by two
// providers collapses.
func DedupKey(kind model.ArtifactKind, item model.RawItem) string {
	switch kind {
	case model.KindPOI, model.KindRoute:
		name := item.Title
		if name == "" {
			name = item.Value
		}
		cell := ""
		if c := item.Coordinates; c != nil {
			cell = geohash.EncodeWithPrecision(c.Lat, c.Lng, geohashPrecision)
		}
		return normalize.Hash(32, string(kind), normalize.Fold(name), cell)
	case model.KindText:
		return normalize.Hash(32, string(kind), normalize.Fold(item.Value))
	default:
		return normalize.Hash(32, string(kind), NormalizeURL(item.Value))
	}
}

// NormalizeURL lower-cases scheme and host, drops the scheme distinction
// between http and https, a leading "www.", the fragment and a trailing
// slash. Unparseable input is returned trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimRight(u.EscapedPath(), "/")
	out := host + path
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out
}

// accumulator is the ordered, deduplicated result set of one request.
type accumulator struct {
	kind  model.ArtifactKind
	items []model.ResolvedItem
	seen  map[string]struct{}
}

func newAccumulator(kind model.ArtifactKind) *accumulator {
	return &accumulator{
		kind:  kind,
		items: []model.ResolvedItem{},
		seen:  make(map[string]struct{}),
	}
}

// normalize converts raw provider items into resolved items stamped with
// their level. Items without a value are dropped.
func (a *accumulator) normalize(providerID string, level model.LevelName, raw []model.RawItem) []model.ResolvedItem {
	out := make([]model.ResolvedItem, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Value) == "" {
			continue
		}
		out = append(out, model.ResolvedItem{
			Value:            r.Value,
			Title:            r.Title,
			Author:           r.Author,
			AuthorURL:        r.AuthorURL,
			SourceURL:        r.SourceURL,
			SourceProviderID: providerID,
			FoundAtLevel:     level,
			DedupKey:         DedupKey(a.kind, r),
			Country:          r.Country,
			Coordinates:      r.Coordinates,
		})
	}
	return out
}

// add inserts items whose dedup key is new and returns how many were added.
// First seen wins.
func (a *accumulator) add(items []model.ResolvedItem) int {
	n := 0
	for _, it := range items {
		if _, dup := a.seen[it.DedupKey]; dup {
			continue
		}
		a.seen[it.DedupKey] = struct{}{}
		a.items = append(a.items, it)
		n++
	}
	return n
}

func (a *accumulator) len() int { return len(a.items) }

// take returns at most n items in insertion order.
func (a *accumulator) take(n int) []model.ResolvedItem {
	if n >= 0 && len(a.items) > n {
		return a.items[:n]
	}
	return a.items
}
