// Package cache stores raw provider results keyed by
// (kind, level, provider, subject, search key) with per-level TTLs.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/internal/normalize"
)

// Store is a TTL-aware key-value cache. Get returns (nil, nil) on a miss
// or an expired entry.
type Store interface {
	Get(ctx context.Context, key string) (*model.CacheEntry, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// keyVersion is bumped whenever the cached payload shape changes.
const keyVersion = "v1"

// Key builds the cache key for one provider call at one level. Subject and
// search key are folded first so "Zürich" and "zurich" share an entry.
func Key(kind model.ArtifactKind, level model.LevelName, providerID, subject, searchKey string) string {
	return "resolve:" + keyVersion + ":" + string(kind) + ":" + string(level) + ":" + providerID + ":" +
		normalize.Hash(32, normalize.Fold(subject), normalize.Fold(searchKey))
}

// TTLPolicy maps hierarchy levels to cache lifetimes. Broader levels change
// less often and are kept longer.
type TTLPolicy map[model.LevelName]time.Duration

// DefaultTTLPolicy returns the built-in lifetimes.
func DefaultTTLPolicy() TTLPolicy {
	day := 24 * time.Hour
	return TTLPolicy{
		model.LevelLocal:       day,
		model.LevelDistrict:    2 * day,
		model.LevelCounty:      3 * day,
		model.LevelRegional:    7 * day,
		model.LevelNational:    14 * day,
		model.LevelContinental: 30 * day,
		model.LevelGlobal:      30 * day,
	}
}

// For returns the TTL for level, falling back to the default policy.
func (p TTLPolicy) For(level model.LevelName) time.Duration {
	if d, ok := p[level]; ok && d > 0 {
		return d
	}
	if d, ok := DefaultTTLPolicy()[level]; ok {
		return d
	}
	return 24 * time.Hour
}

// WithHours overrides entries from a level→hours map, as read from config.
func (p TTLPolicy) WithHours(hours map[string]int) TTLPolicy {
	out := make(TTLPolicy, len(p))
	for k, v := range p {
		out[k] = v
	}
	// Config keys arrive lowercased.
	for name, h := range hours {
		if h <= 0 {
			continue
		}
		for _, level := range model.Levels {
			if strings.EqualFold(string(level), name) {
				out[level] = time.Duration(h) * time.Hour
			}
		}
	}
	return out
}
