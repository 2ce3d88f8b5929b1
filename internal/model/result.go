package model

import "time"

// ErrorKind tags the outcome of a provider call or a rejected item. The zero
// value means success.
type ErrorKind string

const (
	ErrorNone                ErrorKind = ""
	ErrorTimeout             ErrorKind = "timeout"
	ErrorRateLimited         ErrorKind = "rate_limited"
	ErrorProviderUnavailable ErrorKind = "provider_unavailable"
	ErrorDisambiguated       ErrorKind = "disambiguated"
	ErrorInsufficient        ErrorKind = "insufficient"
)

// RawItem is a single artifact as returned by a provider, before
// normalization.
type RawItem struct {
	Value       string       `json:"value"`
	Title       string       `json:"title,omitempty"`
	Author      string       `json:"author,omitempty"`
	AuthorURL   string       `json:"author_url,omitempty"`
	SourceURL   string       `json:"source_url,omitempty"`
	Country     string       `json:"country,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Score       float64      `json:"score,omitempty"`
}

// ProviderResult is the tagged outcome of one adapter call.
type ProviderResult struct {
	ProviderID string    `json:"provider_id"`
	Items      []RawItem `json:"items"`
	LatencyMs  int64     `json:"latency_ms"`
	Kind       ErrorKind `json:"error,omitempty"`
	FromCache  bool      `json:"-"`
	Err        error     `json:"-"`
}

// OK reports whether the call succeeded (possibly with zero items).
func (r ProviderResult) OK() bool {
	return r.Kind == ErrorNone
}

// ResolvedItem is an accepted artifact.
type ResolvedItem struct {
	Value            string       `json:"value"`
	Title            string       `json:"title,omitempty"`
	Author           string       `json:"author,omitempty"`
	AuthorURL        string       `json:"author_url,omitempty"`
	SourceURL        string       `json:"source_url,omitempty"`
	SourceProviderID string       `json:"source_provider_id"`
	FoundAtLevel     LevelName    `json:"found_at_level"`
	DedupKey         string       `json:"dedup_key"`
	Country          string       `json:"country,omitempty"`
	Coordinates      *Coordinates `json:"coordinates,omitempty"`
}

// ResolutionResult is the output of one resolution call. Items is never nil.
type ResolutionResult struct {
	Items           []ResolvedItem `json:"items"`
	LevelsConsulted []LevelName    `json:"levels_consulted"`
	Sufficient      bool           `json:"sufficient"`
}

// CacheEntry is one stored provider result.
type CacheEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry must no longer be read at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Rejection records an item dropped by the disambiguation validator.
type Rejection struct {
	ID          string       `json:"id"`
	SubjectName string       `json:"subject_name"`
	Kind        ArtifactKind `json:"artifact_kind"`
	ProviderID  string       `json:"provider_id"`
	Level       LevelName    `json:"level"`
	Value       string       `json:"value"`
	Reason      string       `json:"reason"`
	CreatedAt   time.Time    `json:"created_at"`
}
