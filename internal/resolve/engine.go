// Package resolve implements the hierarchical resolution engine: it walks the
// geographic fallback ladder of a subject from most to least specific,
// queries the eligible providers at each level under a per-request
// concurrency budget, deduplicates what they return, and stops at the first
// level after which enough items have accumulated.
package resolve

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/place-resolver/internal/cache"
	"github.com/sells-group/place-resolver/internal/hierarchy"
	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/internal/provider"
	"github.com/sells-group/place-resolver/internal/validate"
)

// Registry supplies the adapters eligible for a kind in priority order.
type Registry interface {
	ProvidersFor(kind model.ArtifactKind) []provider.Adapter
}

// AuditSink persists validator rejections.
type AuditSink interface {
	RecordRejections(ctx context.Context, rejections []model.Rejection) error
}

// Config tunes the engine. Zero values select the defaults.
type Config struct {
	// MaxInFlight bounds concurrent provider calls per request.
	MaxInFlight int
	// OverallTimeout bounds one Resolve call.
	OverallTimeout time.Duration
	// CacheWriteTimeout bounds each cache and audit write.
	CacheWriteTimeout time.Duration
	TTL               cache.TTLPolicy
	// Limits supplies per-kind sizing for requests that leave counts unset.
	Limits func(kind model.ArtifactKind) model.Limits

	Validator *validate.Validator
	Audit     AuditSink
	Metrics   *Metrics
}

const (
	DefaultMaxInFlight       = 6
	DefaultOverallTimeout    = 15 * time.Second
	DefaultCacheWriteTimeout = 2 * time.Second
)

// Engine resolves requests. It is safe for concurrent use; the cache and the
// adapters' throttles are shared across calls.
type Engine struct {
	registry Registry
	cache    cache.Store
	cfg      Config

	// group coalesces identical (level, provider) lookups across requests.
	group singleflight.Group
}

// New creates an Engine.
func New(registry Registry, store cache.Store, cfg Config) *Engine {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = DefaultOverallTimeout
	}
	if cfg.CacheWriteTimeout <= 0 {
		cfg.CacheWriteTimeout = DefaultCacheWriteTimeout
	}
	if cfg.TTL == nil {
		cfg.TTL = cache.DefaultTTLPolicy()
	}
	if cfg.Limits == nil {
		cfg.Limits = model.DefaultLimits
	}
	if cfg.Validator == nil {
		cfg.Validator = validate.New(0)
	}
	return &Engine{registry: registry, cache: store, cfg: cfg}
}

// Resolve runs one resolution. Only an invalid request is an error; provider
// failures, an exhausted hierarchy and the overall deadline all produce a
// result with Sufficient false.
func (e *Engine) Resolve(ctx context.Context, req model.ResolutionRequest) (*model.ResolutionResult, error) {
	if req.ArtifactKind.Valid() {
		req = req.WithDefaults(e.cfg.Limits(req.ArtifactKind))
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.OverallTimeout)
	defer cancel()

	log := zap.L().With(
		zap.String("subject", req.SubjectName),
		zap.String("kind", string(req.ArtifactKind)),
	)

	levels := hierarchy.Expand(req.SubjectName, req.Geo, req.ArtifactKind)
	adapters := e.registry.ProvidersFor(req.ArtifactKind)
	sem := semaphore.NewWeighted(int64(e.cfg.MaxInFlight))
	acc := newAccumulator(req.ArtifactKind)

	res := &model.ResolutionResult{
		Items:           []model.ResolvedItem{},
		LevelsConsulted: []model.LevelName{},
	}
	var rejections []model.Rejection

	for i, level := range levels {
		res.LevelsConsulted = append(res.LevelsConsulted, level.Name)

		// The first level may fill the whole request; broader levels are filler.
		limit := req.MaxPerLevel
		if i == 0 {
			limit = req.TargetCount
		}

		for _, pr := range e.queryLevel(ctx, sem, req, level, adapters, limit) {
			items := pr.Items
			if len(items) > limit {
				items = items[:limit]
			}
			batch := acc.normalize(pr.ProviderID, level.Name, items)
			valid, rejected := e.cfg.Validator.Validate(req.ArtifactKind, batch, req.Geo)
			for _, rj := range rejected {
				rejections = append(rejections, e.reject(log, req, rj))
			}
			acc.add(valid)
		}

		if ctx.Err() != nil {
			log.Warn("resolution deadline reached",
				zap.String("level", string(level.Name)),
				zap.Int("items", acc.len()),
			)
			break
		}
		if acc.len() >= req.TargetCount || acc.len() >= req.MinPerLevel {
			res.Sufficient = true
			break
		}
	}

	res.Items = acc.take(req.TargetCount)
	e.audit(req, rejections)
	e.cfg.Metrics.resolved(req.ArtifactKind, res)

	log.Debug("resolution complete",
		zap.Int("items", len(res.Items)),
		zap.Int("levels_consulted", len(res.LevelsConsulted)),
		zap.Bool("sufficient", res.Sufficient),
	)
	return res, nil
}

type indexedResult struct {
	idx int
	res model.ProviderResult
}

// queryLevel returns the successful results for one level in adapter
// priority order. Cache hits count as results; throttled adapters are
// skipped. If ctx expires, calls still in flight drain in the background and
// the results collected so far are returned.
func (e *Engine) queryLevel(ctx context.Context, sem *semaphore.Weighted, req model.ResolutionRequest, level model.HierarchyLevel, adapters []provider.Adapter, limit int) []model.ProviderResult {
	results := make([]*model.ProviderResult, len(adapters))
	done := make(chan indexedResult, len(adapters))
	launched := 0

	for i, a := range adapters {
		key := cache.Key(req.ArtifactKind, level.Name, a.ID(), req.SubjectName, level.SearchKey)
		if hit, ok := e.cached(ctx, key, a.ID()); ok {
			results[i] = &hit
			continue
		}
		if !a.Available() {
			e.cfg.Metrics.call(a.ID(), outcomeThrottled)
			zap.L().Debug("skipping throttled provider",
				zap.String("provider", a.ID()),
				zap.String("level", string(level.Name)),
			)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		launched++

		q := provider.Query{
			Subject:   req.SubjectName,
			SearchKey: level.SearchKey,
			Level:     level.Name,
			Kind:      req.ArtifactKind,
			Limit:     limit,
		}
		ttl := e.cfg.TTL.For(level.Name)
		go func(idx int, a provider.Adapter) {
			defer sem.Release(1)
			done <- indexedResult{idx: idx, res: e.call(ctx, a, q, key, ttl)}
		}(i, a)
	}

collect:
	for n := 0; n < launched; n++ {
		select {
		case r := <-done:
			results[r.idx] = &r.res
		case <-ctx.Done():
			break collect
		}
	}

	out := make([]model.ProviderResult, 0, len(adapters))
	for _, r := range results {
		if r != nil && r.OK() {
			out = append(out, *r)
		}
	}
	return out
}

// call runs a live lookup detached from the request deadline, so a call cut
// off by the deadline still completes within its adapter timeout and fills
// the cache. Successful results, including empty ones, are cached.
func (e *Engine) call(ctx context.Context, a provider.Adapter, q provider.Query, key string, ttl time.Duration) model.ProviderResult {
	detached := context.WithoutCancel(ctx)
	v, _, _ := e.group.Do(key, func() (any, error) {
		res := a.Query(detached, q)
		e.cfg.Metrics.result(res)
		if res.OK() {
			e.store(detached, key, res.Items, ttl)
		}
		return res, nil
	})
	return v.(model.ProviderResult)
}

func (e *Engine) cached(ctx context.Context, key, providerID string) (model.ProviderResult, bool) {
	if e.cache == nil {
		return model.ProviderResult{}, false
	}
	entry, err := e.cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("cache read failed", zap.String("provider", providerID), zap.Error(err))
		return model.ProviderResult{}, false
	}
	if entry == nil {
		return model.ProviderResult{}, false
	}
	var items []model.RawItem
	if err := json.Unmarshal(entry.Value, &items); err != nil {
		zap.L().Warn("cache entry undecodable", zap.String("provider", providerID), zap.Error(err))
		return model.ProviderResult{}, false
	}
	if items == nil {
		items = []model.RawItem{}
	}
	e.cfg.Metrics.call(providerID, outcomeCacheHit)
	return model.ProviderResult{ProviderID: providerID, Items: items, FromCache: true}, true
}

func (e *Engine) store(ctx context.Context, key string, items []model.RawItem, ttl time.Duration) {
	if e.cache == nil {
		return
	}
	if items == nil {
		items = []model.RawItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		zap.L().Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CacheWriteTimeout)
	defer cancel()
	if err := e.cache.Set(ctx, key, data, ttl); err != nil {
		zap.L().Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (e *Engine) reject(log *zap.Logger, req model.ResolutionRequest, rj validate.Rejection) model.Rejection {
	e.cfg.Metrics.rejected(rj.Item.SourceProviderID)
	log.Info("item rejected",
		zap.String("provider", rj.Item.SourceProviderID),
		zap.String("level", string(rj.Item.FoundAtLevel)),
		zap.String("value", rj.Item.Value),
		zap.String("reason", rj.Reason),
	)
	return model.Rejection{
		SubjectName: req.SubjectName,
		Kind:        req.ArtifactKind,
		ProviderID:  rj.Item.SourceProviderID,
		Level:       rj.Item.FoundAtLevel,
		Value:       rj.Item.Value,
		Reason:      rj.Reason,
	}
}

func (e *Engine) audit(req model.ResolutionRequest, rejections []model.Rejection) {
	if e.cfg.Audit == nil || len(rejections) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CacheWriteTimeout)
	defer cancel()
	if err := e.cfg.Audit.RecordRejections(ctx, rejections); err != nil {
		zap.L().Warn("audit write failed",
			zap.String("subject", req.SubjectName),
			zap.Int("rejections", len(rejections)),
			zap.Error(err),
		)
	}
}
