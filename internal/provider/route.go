package provider

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/pkg/nominatim"
	"github.com/sells-group/place-resolver/pkg/overpass"
)

// pointPadDeg pads a geocoded point without an extent into a search box.
const pointPadDeg = 0.1

// RouteSource geocodes the search key and lists the route relations inside
// the resulting extent. Every route inherits the geocoded country.
type RouteSource struct {
	geocoder   nominatim.Client
	routes     overpass.Client
	routeTypes []string
}

// NewRouteSource creates a RouteSource. Empty routeTypes means
// overpass.DefaultRouteTypes.
func NewRouteSource(geocoder nominatim.Client, routes overpass.Client, routeTypes ...string) *RouteSource {
	if len(routeTypes) == 0 {
		routeTypes = overpass.DefaultRouteTypes
	}
	return &RouteSource{geocoder: geocoder, routes: routes, routeTypes: routeTypes}
}

func (s *RouteSource) ID() string { return "overpass" }

func (s *RouteSource) Kinds() []model.ArtifactKind {
	return []model.ArtifactKind{model.KindRoute}
}

func (s *RouteSource) Fetch(ctx context.Context, q Query) ([]model.RawItem, error) {
	places, err := s.geocoder.Search(ctx, q.SearchKey, 1)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: geocode")
	}
	if len(places) == 0 {
		return nil, nil
	}
	place := places[0]

	routes, err := s.routes.Routes(ctx, SearchBounds(place), s.routeTypes, q.Limit)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: routes")
	}

	items := make([]model.RawItem, 0, len(routes))
	for _, r := range routes {
		title := r.Name
		if title == "" {
			title = fmt.Sprintf("%s route %d", r.Type, r.ID)
		}
		items = append(items, model.RawItem{
			Value:       r.URL(),
			Title:       title,
			SourceURL:   r.URL(),
			Country:     place.CountryCode,
			Coordinates: &model.Coordinates{Lat: r.Lat, Lng: r.Lon},
		})
	}
	return items, nil
}

// SearchBounds returns the place's extent, or a small box around its point
// when the geocoder gave none.
func SearchBounds(p nominatim.Place) *geom.Bounds {
	if p.Bounds != nil && !p.Bounds.IsEmpty() {
		return p.Bounds
	}
	return geom.NewBounds(geom.XY).Set(
		p.Lon-pointPadDeg, p.Lat-pointPadDeg,
		p.Lon+pointPadDeg, p.Lat+pointPadDeg,
	)
}
