package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidRequest is wrapped by every error returned for a malformed
// ResolutionRequest. It is the only error Resolve surfaces to callers.
var ErrInvalidRequest = eris.New("invalid resolution request")

// ArtifactKind selects which provider adapters are eligible for a request.
type ArtifactKind string

const (
	KindImage ArtifactKind = "image"
	KindPOI   ArtifactKind = "poi"
	KindRoute ArtifactKind = "route"
	KindText  ArtifactKind = "text"
)

// ArtifactKinds lists every supported kind in a stable order.
var ArtifactKinds = []ArtifactKind{KindImage, KindPOI, KindRoute, KindText}

// ParseArtifactKind maps a case-insensitive name to an ArtifactKind.
func ParseArtifactKind(s string) (ArtifactKind, error) {
	k := ArtifactKind(strings.ToLower(strings.TrimSpace(s)))
	if k.Valid() {
		return k, nil
	}
	return "", eris.Wrapf(ErrInvalidRequest, "unknown artifact kind %q", s)
}

// Valid reports whether k is one of the known kinds.
func (k ArtifactKind) Valid() bool {
	switch k {
	case KindImage, KindPOI, KindRoute, KindText:
		return true
	default:
		return false
	}
}

// CarriesGeo reports whether items of this kind carry per-item geographic
// metadata the validator can check. Free-text images and descriptions do not.
func (k ArtifactKind) CarriesGeo() bool {
	return k == KindPOI || k == KindRoute
}

// Noun is the generic subject used for the Global fallback query.
func (k ArtifactKind) Noun() string {
	switch k {
	case KindImage:
		return "scenic photo"
	case KindPOI:
		return "top attraction"
	case KindRoute:
		return "scenic route"
	case KindText:
		return "travel guide"
	default:
		return string(k)
	}
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// BBox is a WGS84 bounding box.
type BBox struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MinLng float64 `json:"min_lng" yaml:"min_lng"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MaxLng float64 `json:"max_lng" yaml:"max_lng"`
}

// Geo holds the known geographic attributes of the subject. Every field is
// optional; broader fields may be empty.
type Geo struct {
	Local     string `json:"local,omitempty" yaml:"local"`
	District  string `json:"district,omitempty" yaml:"district"`
	County    string `json:"county,omitempty" yaml:"county"`
	Region    string `json:"region,omitempty" yaml:"region"`
	Country   string `json:"country,omitempty" yaml:"country"`
	Continent string `json:"continent,omitempty" yaml:"continent"`

	// Anchor and BBox are optional hints used only by the validator.
	Anchor *Coordinates `json:"anchor,omitempty" yaml:"anchor"`
	BBox   *BBox        `json:"bbox,omitempty" yaml:"bbox"`
}

// ResolutionRequest is the immutable input to one resolution call.
type ResolutionRequest struct {
	SubjectName  string       `json:"subject_name" yaml:"subject_name"`
	Geo          Geo          `json:"geo" yaml:"geo"`
	TargetCount  int          `json:"target_count,omitempty" yaml:"target_count"`
	MinPerLevel  int          `json:"min_per_level,omitempty" yaml:"min_per_level"`
	MaxPerLevel  int          `json:"max_per_level,omitempty" yaml:"max_per_level"`
	ArtifactKind ArtifactKind `json:"artifact_kind" yaml:"artifact_kind"`
}

// Limits are the per-kind sizing defaults applied to requests that leave
// them unset.
type Limits struct {
	TargetCount int `yaml:"target_count" mapstructure:"target_count"`
	MinPerLevel int `yaml:"min_per_level" mapstructure:"min_per_level"`
	MaxPerLevel int `yaml:"max_per_level" mapstructure:"max_per_level"`
}

// DefaultLimits returns the built-in sizing for a kind.
func DefaultLimits(kind ArtifactKind) Limits {
	if kind == KindImage {
		return Limits{TargetCount: 20, MinPerLevel: 3, MaxPerLevel: 5}
	}
	return Limits{TargetCount: 10, MinPerLevel: 3, MaxPerLevel: 5}
}

// WithDefaults returns a copy of r with zero sizing fields filled from l.
func (r ResolutionRequest) WithDefaults(l Limits) ResolutionRequest {
	if r.TargetCount == 0 {
		r.TargetCount = l.TargetCount
	}
	if r.MinPerLevel == 0 {
		r.MinPerLevel = l.MinPerLevel
	}
	if r.MaxPerLevel == 0 {
		r.MaxPerLevel = l.MaxPerLevel
	}
	return r
}

// Validate checks the request for caller errors. All returned errors wrap
// ErrInvalidRequest.
func (r ResolutionRequest) Validate() error {
	if strings.TrimSpace(r.SubjectName) == "" {
		return eris.Wrap(ErrInvalidRequest, "subject name is required")
	}
	if !r.ArtifactKind.Valid() {
		return eris.Wrapf(ErrInvalidRequest, "unknown artifact kind %q", r.ArtifactKind)
	}
	if r.TargetCount <= 0 {
		return eris.Wrapf(ErrInvalidRequest, "target count must be positive, got %d", r.TargetCount)
	}
	if r.MinPerLevel < 0 || r.MaxPerLevel <= 0 {
		return eris.Wrapf(ErrInvalidRequest, "per-level bounds invalid: min=%d max=%d", r.MinPerLevel, r.MaxPerLevel)
	}
	if b := r.Geo.BBox; b != nil && (b.MinLat > b.MaxLat || b.MinLng > b.MaxLng) {
		return eris.Wrap(ErrInvalidRequest, "bbox min exceeds max")
	}
	return nil
}
