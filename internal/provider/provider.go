// Package provider wraps external data sources behind a uniform Adapter that
// enforces a per-call timeout, a steady request rate, in-call retries of
// transient failures, and the shared rate-limit throttle. Every outcome is
// reported as a tagged model.ProviderResult; adapters never return errors.
package provider

import (
	"context"
	"slices"
	"time"

	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/internal/resilience"
)

// Query is one adapter call.
type Query struct {
	Subject   string
	SearchKey string
	Level     model.LevelName
	Kind      model.ArtifactKind
	Limit     int
}

// Source performs the raw, unguarded provider call.
type Source interface {
	ID() string
	Kinds() []model.ArtifactKind
	Fetch(ctx context.Context, q Query) ([]model.RawItem, error)
}

// Adapter is a Source with its guard rails applied. Query always returns
// within the adapter's timeout or the caller's deadline, whichever is
// earlier.
type Adapter interface {
	ID() string
	Kinds() []model.ArtifactKind
	Supports(kind model.ArtifactKind) bool
	// Available is false while the provider is cooling down after a
	// rate-limit signal.
	Available() bool
	Health() Health
	Query(ctx context.Context, q Query) model.ProviderResult
}

// Health is a point-in-time view of one adapter.
type Health struct {
	ID        string               `json:"id"`
	Kinds     []model.ArtifactKind `json:"kinds"`
	Priority  int                  `json:"priority"`
	State     string               `json:"state"`
	WindowMs  int64                `json:"cooldown_window_ms"`
	Successes int64                `json:"successes"`
}

// Settings configures the guard rails of one adapter.
type Settings struct {
	Timeout  time.Duration
	RPS      float64 // <= 0 means unlimited
	Burst    int
	Retry    resilience.RetryConfig
	Throttle resilience.ThrottleConfig
}

// DefaultTimeout applies when Settings.Timeout is unset.
const DefaultTimeout = 5 * time.Second

func supports(kinds []model.ArtifactKind, kind model.ArtifactKind) bool {
	return slices.Contains(kinds, kind)
}
