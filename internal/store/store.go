// Package store provides durable backends for the resolution cache and the
// disambiguation audit log.
package store

import (
	"context"

	"github.com/sells-group/place-resolver/internal/cache"
	"github.com/sells-group/place-resolver/internal/model"
)

// RejectionFilter specifies criteria for listing audit records.
type RejectionFilter struct {
	SubjectName string             `json:"subject_name,omitempty"`
	Kind        model.ArtifactKind `json:"artifact_kind,omitempty"`
	Limit       int                `json:"limit,omitempty"`
}

// Store is a cache.Store that also persists rejected items.
type Store interface {
	cache.Store

	// DeleteExpired removes cache rows past their expiry and returns the count.
	DeleteExpired(ctx context.Context) (int, error)

	// Audit log
	RecordRejections(ctx context.Context, rejections []model.Rejection) error
	ListRejections(ctx context.Context, filter RejectionFilter) ([]model.Rejection, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 || n > 1000 {
		return defaultListLimit
	}
	return n
}
