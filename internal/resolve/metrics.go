package resolve

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/place-resolver/internal/model"
)

// Call outcomes beyond the provider error kinds.
const (
	outcomeOK        = "ok"
	outcomeCacheHit  = "cache_hit"
	outcomeThrottled = "skipped_throttled"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	calls       *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	resolutions *prometheus.CounterVec
	levels      prometheus.Histogram
	rejections  *prometheus.CounterVec
}

// NewMetrics registers the engine collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resolver",
			Name:      "provider_calls_total",
			Help:      "Provider lookups by outcome, including cache hits and throttle skips.",
		}, []string{"provider", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "resolver",
			Name:      "provider_call_duration_seconds",
			Help:      "Latency of live provider calls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}, []string{"provider"}),
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resolver",
			Name:      "resolutions_total",
			Help:      "Completed resolutions by artifact kind and sufficiency.",
		}, []string{"kind", "sufficient"}),
		levels: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "resolver",
			Name:      "levels_consulted",
			Help:      "Hierarchy levels consulted per resolution.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7},
		}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resolver",
			Name:      "rejections_total",
			Help:      "Items dropped by the disambiguation validator.",
		}, []string{"provider"}),
	}
}

func (m *Metrics) call(provider, outcome string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) result(res model.ProviderResult) {
	if m == nil {
		return
	}
	outcome := outcomeOK
	if !res.OK() {
		outcome = string(res.Kind)
	}
	m.calls.WithLabelValues(res.ProviderID, outcome).Inc()
	m.latency.WithLabelValues(res.ProviderID).Observe((time.Duration(res.LatencyMs) * time.Millisecond).Seconds())
}

func (m *Metrics) resolved(kind model.ArtifactKind, res *model.ResolutionResult) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(string(kind), strconv.FormatBool(res.Sufficient)).Inc()
	m.levels.Observe(float64(len(res.LevelsConsulted)))
}

func (m *Metrics) rejected(provider string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(provider).Inc()
}
