// Package validate rejects resolved items whose geographic metadata
// contradicts what the caller declared about the subject: a different
// country, a point outside the declared bounding box, or a point too far
// from the declared anchor.
//
// Kinds without per-item geographic metadata pass through unchanged. For
// those, disambiguation depends entirely on the qualified search key.
package validate

import (
	"fmt"

	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/place-resolver/internal/model"
)

const earthRadiusKm = 6371.0088

// Rejection is an item dropped by the validator.
type Rejection struct {
	Item   model.ResolvedItem
	Reason string
}

// Validator checks items against a request's geo context.
type Validator struct {
	anchorRadiusKm float64
}

// New creates a Validator. anchorRadiusKm <= 0 disables the anchor check.
func New(anchorRadiusKm float64) *Validator {
	return &Validator{anchorRadiusKm: anchorRadiusKm}
}

// Validate splits items into accepted and rejected, preserving order. valid
// is never nil.
func (v *Validator) Validate(kind model.ArtifactKind, items []model.ResolvedItem, geo model.Geo) ([]model.ResolvedItem, []Rejection) {
	valid := make([]model.ResolvedItem, 0, len(items))
	if !kind.CarriesGeo() {
		return append(valid, items...), nil
	}

	want := NormalizeCountry(geo.Country)
	if want == "" && geo.Country != "" {
		zap.L().Warn("validate: unrecognized request country, skipping country check",
			zap.String("country", geo.Country),
		)
	}
	var bounds *geom.Bounds
	if b := geo.BBox; b != nil {
		bounds = geom.NewBounds(geom.XY).Set(b.MinLng, b.MinLat, b.MaxLng, b.MaxLat)
	}

	var rejected []Rejection
	for _, it := range items {
		if reason := v.check(it, want, bounds, geo.Anchor); reason != "" {
			rejected = append(rejected, Rejection{Item: it, Reason: reason})
			continue
		}
		valid = append(valid, it)
	}
	return valid, rejected
}

func (v *Validator) check(it model.ResolvedItem, wantCountry string, bounds *geom.Bounds, anchor *model.Coordinates) string {
	if wantCountry != "" {
		if got := NormalizeCountry(it.Country); got != "" && got != wantCountry {
			return fmt.Sprintf("country mismatch: got %s, want %s", got, wantCountry)
		}
	}

	c := it.Coordinates
	if c == nil {
		return ""
	}
	if bounds != nil && !bounds.OverlapsPoint(geom.XY, geom.Coord{c.Lng, c.Lat}) {
		return fmt.Sprintf("outside bbox: %.4f,%.4f", c.Lat, c.Lng)
	}
	if anchor != nil && v.anchorRadiusKm > 0 {
		if d := DistanceKm(*anchor, *c); d > v.anchorRadiusKm {
			return fmt.Sprintf("beyond anchor radius: %.1f km > %.1f km", d, v.anchorRadiusKm)
		}
	}
	return ""
}

// DistanceKm returns the great-circle distance between two points.
func DistanceKm(a, b model.Coordinates) float64 {
	pa := s2.LatLngFromDegrees(a.Lat, a.Lng)
	pb := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return pa.Distance(pb).Radians() * earthRadiusKm
}
