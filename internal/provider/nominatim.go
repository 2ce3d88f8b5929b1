package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/pkg/nominatim"
)

// DefaultPOICategory is the special phrase prefixed to POI searches.
const DefaultPOICategory = "attraction"

// NominatimSource serves points of interest near the search key.
type NominatimSource struct {
	client   nominatim.Client
	category string
}

// NewNominatimSource creates a NominatimSource searching for category
// ("attraction", "restaurant", ...). Empty means DefaultPOICategory.
func NewNominatimSource(c nominatim.Client, category string) *NominatimSource {
	if category == "" {
		category = DefaultPOICategory
	}
	return &NominatimSource{client: c, category: category}
}

func (s *NominatimSource) ID() string { return "nominatim" }

func (s *NominatimSource) Kinds() []model.ArtifactKind {
	return []model.ArtifactKind{model.KindPOI}
}

func (s *NominatimSource) Fetch(ctx context.Context, q Query) ([]model.RawItem, error) {
	places, err := s.client.Search(ctx, s.category+" in "+q.SearchKey, q.Limit)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: search")
	}
	sort.SliceStable(places, func(i, j int) bool {
		return places[i].Importance > places[j].Importance
	})

	items := make([]model.RawItem, 0, len(places))
	for _, p := range places {
		items = append(items, model.RawItem{
			Value:       p.DisplayName,
			Title:       placeTitle(p),
			SourceURL:   osmURL(p.OSMType, p.OSMID),
			Country:     p.CountryCode,
			Coordinates: &model.Coordinates{Lat: p.Lat, Lng: p.Lon},
			Score:       p.Importance,
		})
	}
	return items, nil
}

func placeTitle(p nominatim.Place) string {
	if p.Name != "" {
		return p.Name
	}
	name, _, _ := strings.Cut(p.DisplayName, ",")
	return strings.TrimSpace(name)
}

func osmURL(osmType string, id int64) string {
	if osmType == "" || id == 0 {
		return ""
	}
	return fmt.Sprintf("https://www.openstreetmap.org/%s/%d", osmType, id)
}
