package resolve

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/place-resolver/internal/cache"
	"github.com/sells-group/place-resolver/internal/hierarchy"
	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/internal/provider"
	"github.com/sells-group/place-resolver/internal/validate"
)

// scripted is an Adapter whose answers are fixed per level.
type scripted struct {
	id          string
	kinds       []model.ArtifactKind
	items       map[model.LevelName][]model.RawItem
	fail        map[model.LevelName]model.ErrorKind
	unavailable bool
	delay       time.Duration

	mu          sync.Mutex
	calls       []provider.Query
	inflight    int
	maxInflight int
}

func (s *scripted) ID() string                  { return s.id }
func (s *scripted) Kinds() []model.ArtifactKind { return s.kinds }
func (s *scripted) Available() bool             { return !s.unavailable }
func (s *scripted) Health() provider.Health     { return provider.Health{ID: s.id} }

func (s *scripted) Supports(kind model.ArtifactKind) bool {
	for _, k := range s.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (s *scripted) Query(ctx context.Context, q provider.Query) model.ProviderResult {
	s.mu.Lock()
	s.calls = append(s.calls, q)
	s.inflight++
	if s.inflight > s.maxInflight {
		s.maxInflight = s.inflight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return model.ProviderResult{ProviderID: s.id, Kind: model.ErrorTimeout, Err: ctx.Err()}
		}
	}
	if kind := s.fail[q.Level]; kind != model.ErrorNone {
		return model.ProviderResult{ProviderID: s.id, Kind: kind}
	}
	items := append([]model.RawItem{}, s.items[q.Level]...)
	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}
	return model.ProviderResult{ProviderID: s.id, Items: items}
}

func (s *scripted) Calls() []provider.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]provider.Query{}, s.calls...)
}

func (s *scripted) levelsCalled() []model.LevelName {
	var out []model.LevelName
	for _, q := range s.Calls() {
		out = append(out, q.Level)
	}
	return out
}

type staticRegistry []provider.Adapter

func (r staticRegistry) ProvidersFor(kind model.ArtifactKind) []provider.Adapter {
	var out []provider.Adapter
	for _, a := range r {
		if a.Supports(kind) {
			out = append(out, a)
		}
	}
	return out
}

type recordingAudit struct {
	mu   sync.Mutex
	recs []model.Rejection
}

func (a *recordingAudit) RecordRejections(_ context.Context, recs []model.Rejection) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, recs...)
	return nil
}

func images(prefix string, n int) []model.RawItem {
	out := make([]model.RawItem, n)
	for i := range out {
		out[i] = model.RawItem{Value: fmt.Sprintf("https://img.example/%s/%d.jpg", prefix, i)}
	}
	return out
}

func imageAdapter(id string, items map[model.LevelName][]model.RawItem) *scripted {
	return &scripted{id: id, kinds: []model.ArtifactKind{model.KindImage}, items: items}
}

func newTestEngine(reg Registry, store cache.Store, cfg Config) *Engine {
	if cfg.OverallTimeout == 0 {
		cfg.OverallTimeout = 5 * time.Second
	}
	return New(reg, store, cfg)
}

var lofthus = model.ResolutionRequest{
	SubjectName:  "Lofthus",
	Geo:          model.Geo{Region: "Vestland", Country: "Norway"},
	TargetCount:  10,
	MinPerLevel:  3,
	MaxPerLevel:  5,
	ArtifactKind: model.KindImage,
}

func TestResolve_MarrakeshStopsAtLocal(t *testing.T) {
	a := imageAdapter("primary", map[model.LevelName][]model.RawItem{
		model.LevelLocal:    images("local", 20),
		model.LevelRegional: images("regional", 20),
		model.LevelNational: images("national", 20),
	})
	b := imageAdapter("secondary", map[model.LevelName][]model.RawItem{
		model.LevelRegional: images("b-regional", 5),
	})
	e := newTestEngine(staticRegistry{a, b}, cache.NewMemory(100, time.Hour), Config{})

	req := model.ResolutionRequest{
		SubjectName:  "Marrakesh",
		Geo:          model.Geo{Region: "Marrakech-Safi", Country: "Morocco"},
		TargetCount:  20,
		MinPerLevel:  5,
		ArtifactKind: model.KindImage,
	}
	res, err := e.Resolve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []model.LevelName{model.LevelLocal}, res.LevelsConsulted)
	assert.Len(t, res.Items, 20)
	assert.True(t, res.Sufficient)
	assert.Equal(t, []model.LevelName{model.LevelLocal}, a.levelsCalled())
	assert.Equal(t, []model.LevelName{model.LevelLocal}, b.levelsCalled())
	assert.Equal(t, "Marrakesh, Marrakech-Safi, Morocco", a.Calls()[0].SearchKey)
	assert.Equal(t, 20, a.Calls()[0].Limit, "first level queries for the whole target")
	for _, it := range res.Items {
		assert.Equal(t, model.LevelLocal, it.FoundAtLevel)
	}
}

func TestResolve_FallsBackUntilSufficient(t *testing.T) {
	a := imageAdapter("primary", map[model.LevelName][]model.RawItem{
		model.LevelLocal:    images("local", 1),
		model.LevelRegional: images("regional", 8),
		model.LevelNational: images("national", 8),
	})
	e := newTestEngine(staticRegistry{a}, nil, Config{})

	res, err := e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)

	assert.Equal(t, []model.LevelName{model.LevelLocal, model.LevelRegional}, res.LevelsConsulted)
	assert.True(t, res.Sufficient)
	require.Len(t, res.Items, 6, "1 local + maxPerLevel regional")
	assert.Equal(t, model.LevelLocal, res.Items[0].FoundAtLevel)
	for _, it := range res.Items[1:] {
		assert.Equal(t, model.LevelRegional, it.FoundAtLevel)
	}

	calls := a.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "Lofthus, Vestland, Norway", calls[0].SearchKey)
	assert.Equal(t, "Vestland, Norway", calls[1].SearchKey)
	assert.Equal(t, 5, calls[1].Limit)
}

func TestResolve_LevelsConsultedIsPrefix(t *testing.T) {
	a := imageAdapter("primary", map[model.LevelName][]model.RawItem{
		model.LevelNational: images("national", 5),
	})
	e := newTestEngine(staticRegistry{a}, nil, Config{})

	req := lofthus
	req.Geo = model.Geo{District: "Ullensvang", County: "Hardanger", Region: "Vestland", Country: "Norway", Continent: "Europe"}
	res, err := e.Resolve(context.Background(), req)
	require.NoError(t, err)

	full := hierarchy.Expand(req.SubjectName, req.Geo, req.ArtifactKind)
	require.LessOrEqual(t, len(res.LevelsConsulted), len(full))
	for i, name := range res.LevelsConsulted {
		assert.Equal(t, full[i].Name, name)
	}
	assert.Equal(t, model.LevelNational, res.LevelsConsulted[len(res.LevelsConsulted)-1])
}

func TestResolve_DedupAcrossLevelsFirstSeenWins(t *testing.T) {
	shared := model.RawItem{Value: "https://img.example/shared.jpg"}
	a := imageAdapter("primary", map[model.LevelName][]model.RawItem{
		model.LevelLocal:    {shared, {Value: "http://www.img.example/shared.jpg/"}},
		model.LevelRegional: append([]model.RawItem{shared}, images("regional", 2)...),
		model.LevelNational: images("national", 5),
	})
	b := imageAdapter("secondary", map[model.LevelName][]model.RawItem{
		model.LevelLocal: {shared},
	})
	e := newTestEngine(staticRegistry{a, b}, nil, Config{})

	res, err := e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, it := range res.Items {
		assert.False(t, seen[it.DedupKey], "duplicate dedup key %s", it.DedupKey)
		seen[it.DedupKey] = true
	}
	require.NotEmpty(t, res.Items)
	assert.Equal(t, shared.Value, res.Items[0].Value)
	assert.Equal(t, model.LevelLocal, res.Items[0].FoundAtLevel)
	assert.Equal(t, "primary", res.Items[0].SourceProviderID)
	assert.Len(t, res.Items, 3, "shared + 2 regional")
}

func TestResolve_InsufficientReturnsEmptyNonNil(t *testing.T) {
	a := imageAdapter("empty", nil)
	e := newTestEngine(staticRegistry{a}, nil, Config{})

	res, err := e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)
	assert.False(t, res.Sufficient)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)

	full := hierarchy.Expand(lofthus.SubjectName, lofthus.Geo, lofthus.ArtifactKind)
	assert.Len(t, res.LevelsConsulted, len(full))
	assert.Equal(t, model.LevelGlobal, res.LevelsConsulted[len(res.LevelsConsulted)-1])
}

func TestResolve_NoProviders(t *testing.T) {
	e := newTestEngine(staticRegistry{}, nil, Config{})
	res, err := e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)
	assert.False(t, res.Sufficient)
	assert.NotNil(t, res.Items)
}

func TestResolve_IdempotentWithWarmCache(t *testing.T) {
	a := imageAdapter("primary", map[model.LevelName][]model.RawItem{
		model.LevelLocal:    images("local", 2),
		model.LevelRegional: images("regional", 4),
	})
	store := cache.NewMemory(100, time.Hour)
	e := newTestEngine(staticRegistry{a}, store, Config{})

	first, err := e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)
	callsAfterFirst := len(a.Calls())
	require.Positive(t, callsAfterFirst)

	second, err := e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)
	assert.Len(t, a.Calls(), callsAfterFirst, "warm cache must not call providers")
	assert.Equal(t, first, second)
}

func TestResolve_NegativeResultsAreCached(t *testing.T) {
	a := imageAdapter("empty", nil)
	store := cache.NewMemory(100, time.Hour)
	e := newTestEngine(staticRegistry{a}, store, Config{})

	_, err := e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)
	n := len(a.Calls())

	_, err = e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)
	assert.Len(t, a.Calls(), n)
	assert.Equal(t, n, store.Len())
}

func TestResolve_FailuresAreNotCachedAndRecovered(t *testing.T) {
	broken := &scripted{
		id: "broken", kinds: []model.ArtifactKind{model.KindImage},
		fail: map[model.LevelName]model.ErrorKind{
			model.LevelLocal:    model.ErrorProviderUnavailable,
			model.LevelRegional: model.ErrorTimeout,
		},
	}
	good := imageAdapter("good", map[model.LevelName][]model.RawItem{
		model.LevelLocal: images("local", 4),
	})
	store := cache.NewMemory(100, time.Hour)
	e := newTestEngine(staticRegistry{broken, good}, store, Config{})

	res, err := e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)
	assert.True(t, res.Sufficient)
	assert.Len(t, res.Items, 4)
	assert.Equal(t, 1, store.Len(), "only the successful call is cached")
}

func TestResolve_ThrottledProviderSkipped(t *testing.T) {
	throttled := imageAdapter("throttled", map[model.LevelName][]model.RawItem{
		model.LevelLocal: images("t", 10),
	})
	throttled.unavailable = true
	good := imageAdapter("good", map[model.LevelName][]model.RawItem{
		model.LevelLocal: images("g", 3),
	})
	e := newTestEngine(staticRegistry{throttled, good}, nil, Config{})

	res, err := e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)
	assert.Empty(t, throttled.Calls())
	assert.Len(t, res.Items, 3)
	for _, it := range res.Items {
		assert.Equal(t, "good", it.SourceProviderID)
	}
}

func TestResolve_ThrottledProviderStillServesCache(t *testing.T) {
	a := imageAdapter("primary", map[model.LevelName][]model.RawItem{
		model.LevelLocal: images("local", 3),
	})
	store := cache.NewMemory(100, time.Hour)
	e := newTestEngine(staticRegistry{a}, store, Config{})

	_, err := e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)

	a.unavailable = true
	res, err := e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
	assert.Len(t, a.Calls(), 1)
}

func TestResolve_DisambiguationRejectsWrongCountry(t *testing.T) {
	nominatim := &scripted{
		id: "nominatim", kinds: []model.ArtifactKind{model.KindPOI},
		items: map[model.LevelName][]model.RawItem{
			model.LevelLocal: {
				{Value: "Lofthus Township, Minnesota", Title: "Lofthus Township", Country: "USA", Coordinates: &model.Coordinates{Lat: 46.1, Lng: -94.3}},
				{Value: "Hotel Ullensvang, Lofthus", Title: "Hotel Ullensvang", Country: "NO", Coordinates: &model.Coordinates{Lat: 60.32, Lng: 6.65}},
				{Value: "Lofthus Kirke", Title: "Lofthus Kirke", Country: "Norway", Coordinates: &model.Coordinates{Lat: 60.33, Lng: 6.66}},
				{Value: "Munketreppene", Title: "Munketreppene", Country: "no", Coordinates: &model.Coordinates{Lat: 60.31, Lng: 6.67}},
			},
		},
	}
	audit := &recordingAudit{}
	e := newTestEngine(staticRegistry{nominatim}, nil, Config{Audit: audit, Validator: validate.New(0)})

	req := lofthus
	req.ArtifactKind = model.KindPOI
	res, err := e.Resolve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Lofthus, Vestland, Norway", nominatim.Calls()[0].SearchKey)
	require.Len(t, res.Items, 3)
	for _, it := range res.Items {
		assert.NotEqual(t, "USA", it.Country)
	}
	assert.Equal(t, []model.LevelName{model.LevelLocal}, res.LevelsConsulted)

	require.Len(t, audit.recs, 1)
	assert.Equal(t, "Lofthus Township, Minnesota", audit.recs[0].Value)
	assert.Equal(t, "nominatim", audit.recs[0].ProviderID)
	assert.Equal(t, model.LevelLocal, audit.recs[0].Level)
	assert.Equal(t, model.KindPOI, audit.recs[0].Kind)
}

func TestResolve_UnitedKingdomKeepsGBItems(t *testing.T) {
	nominatim := &scripted{
		id: "nominatim", kinds: []model.ArtifactKind{model.KindPOI},
		items: map[model.LevelName][]model.RawItem{
			model.LevelLocal: {
				{Value: "Tower Bridge, London", Title: "Tower Bridge", Country: "gb", Coordinates: &model.Coordinates{Lat: 51.5055, Lng: -0.0754}},
				{Value: "London, Ontario", Title: "London", Country: "ca", Coordinates: &model.Coordinates{Lat: 42.98, Lng: -81.25}},
				{Value: "Tower of London", Title: "Tower of London", Country: "GB", Coordinates: &model.Coordinates{Lat: 51.5081, Lng: -0.0759}},
			},
		},
	}
	audit := &recordingAudit{}
	e := newTestEngine(staticRegistry{nominatim}, nil, Config{Audit: audit, Validator: validate.New(0)})

	res, err := e.Resolve(context.Background(), model.ResolutionRequest{
		SubjectName:  "Tower Bridge",
		Geo:          model.Geo{Local: "London", Country: "United Kingdom"},
		TargetCount:  3,
		MinPerLevel:  1,
		ArtifactKind: model.KindPOI,
	})
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "Tower Bridge, London", res.Items[0].Value)
	assert.Equal(t, "Tower of London", res.Items[1].Value)
	require.Len(t, audit.recs, 1)
	assert.Equal(t, "London, Ontario", audit.recs[0].Value)
}

func TestResolve_DeadlineReturnsPartial(t *testing.T) {
	slow := imageAdapter("slow", map[model.LevelName][]model.RawItem{
		model.LevelLocal: images("slow", 10),
	})
	slow.delay = 300 * time.Millisecond
	store := cache.NewMemory(100, time.Hour)
	e := New(staticRegistry{slow}, store, Config{OverallTimeout: 30 * time.Millisecond})

	start := time.Now()
	res, err := e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.False(t, res.Sufficient)
	assert.NotNil(t, res.Items)
	assert.Equal(t, []model.LevelName{model.LevelLocal}, res.LevelsConsulted)

	// The abandoned call drains and fills the cache.
	require.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	res, err = e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)
	assert.True(t, res.Sufficient)
	assert.Len(t, res.Items, 10)
}

func TestResolve_BoundedConcurrency(t *testing.T) {
	var adapters staticRegistry
	var all []*scripted
	for i := 0; i < 5; i++ {
		a := imageAdapter(fmt.Sprintf("p%d", i), map[model.LevelName][]model.RawItem{
			model.LevelLocal: images(fmt.Sprintf("p%d", i), 1),
		})
		a.delay = 20 * time.Millisecond
		all = append(all, a)
		adapters = append(adapters, a)
	}

	var mu sync.Mutex
	inflight, peak := 0, 0
	wrapped := make(staticRegistry, len(adapters))
	for i, a := range adapters {
		wrapped[i] = &countingAdapter{Adapter: a, mu: &mu, inflight: &inflight, peak: &peak}
	}

	e := newTestEngine(wrapped, nil, Config{MaxInFlight: 2})
	res, err := e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)
	assert.Len(t, res.Items, 5)
	assert.LessOrEqual(t, peak, 2)
	for _, a := range all {
		assert.Len(t, a.Calls(), 1)
	}
}

type countingAdapter struct {
	provider.Adapter
	mu             *sync.Mutex
	inflight, peak *int
}

func (c *countingAdapter) Query(ctx context.Context, q provider.Query) model.ProviderResult {
	c.mu.Lock()
	*c.inflight++
	if *c.inflight > *c.peak {
		*c.peak = *c.inflight
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		*c.inflight--
		c.mu.Unlock()
	}()
	return c.Adapter.Query(ctx, q)
}

func TestResolve_InvalidRequest(t *testing.T) {
	e := newTestEngine(staticRegistry{}, nil, Config{})

	_, err := e.Resolve(context.Background(), model.ResolutionRequest{SubjectName: "Oslo", ArtifactKind: "video"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidRequest)

	_, err = e.Resolve(context.Background(), model.ResolutionRequest{ArtifactKind: model.KindImage})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestResolve_AppliesKindDefaults(t *testing.T) {
	a := imageAdapter("primary", map[model.LevelName][]model.RawItem{
		model.LevelLocal: images("local", 50),
	})
	e := newTestEngine(staticRegistry{a}, nil, Config{
		Limits: func(model.ArtifactKind) model.Limits {
			return model.Limits{TargetCount: 7, MinPerLevel: 2, MaxPerLevel: 3}
		},
	})

	res, err := e.Resolve(context.Background(), model.ResolutionRequest{SubjectName: "Oslo", ArtifactKind: model.KindImage})
	require.NoError(t, err)
	assert.Len(t, res.Items, 7)
	assert.Equal(t, 7, a.Calls()[0].Limit)
}

func TestResolve_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	a := imageAdapter("primary", map[model.LevelName][]model.RawItem{
		model.LevelLocal: images("local", 3),
	})
	throttled := imageAdapter("throttled", nil)
	throttled.unavailable = true
	store := cache.NewMemory(100, time.Hour)
	e := newTestEngine(staticRegistry{a, throttled}, store, Config{Metrics: m})

	_, err := e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)
	_, err = e.Resolve(context.Background(), lofthus)
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(m.calls.WithLabelValues("primary", outcomeOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.calls.WithLabelValues("primary", outcomeCacheHit)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.calls.WithLabelValues("throttled", outcomeThrottled)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.resolutions.WithLabelValues("image", "true")), 0)
}
