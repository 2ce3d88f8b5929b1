package provider

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/internal/resilience"
)

// Guarded is the Adapter implementation used for every source.
type Guarded struct {
	src      Source
	timeout  time.Duration
	retry    resilience.RetryConfig
	limiter  *rate.Limiter
	throttle *resilience.Throttle
}

var _ Adapter = (*Guarded)(nil)

// NewGuarded wraps src with the given settings.
func NewGuarded(src Source, s Settings) *Guarded {
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	limit := rate.Inf
	if s.RPS > 0 {
		limit = rate.Limit(s.RPS)
	}
	if s.Burst <= 0 {
		s.Burst = 1
	}
	if s.Retry.MaxAttempts == 0 {
		s.Retry = resilience.DefaultRetryConfig()
	}

	id := src.ID()
	userHook := s.Throttle.OnStateChange
	s.Throttle.OnStateChange = func(from, to resilience.ThrottleState) {
		zap.L().Info("provider throttle state change",
			zap.String("provider", id),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
		if userHook != nil {
			userHook(from, to)
		}
	}

	return &Guarded{
		src:      src,
		timeout:  s.Timeout,
		retry:    s.Retry,
		limiter:  rate.NewLimiter(limit, s.Burst),
		throttle: resilience.NewThrottle(s.Throttle),
	}
}

func (g *Guarded) ID() string                  { return g.src.ID() }
func (g *Guarded) Kinds() []model.ArtifactKind { return g.src.Kinds() }

func (g *Guarded) Supports(kind model.ArtifactKind) bool {
	return supports(g.src.Kinds(), kind)
}

func (g *Guarded) Available() bool { return g.throttle.Allow() }

// Throttle exposes the rate-limit state machine.
func (g *Guarded) Throttle() *resilience.Throttle { return g.throttle }

func (g *Guarded) Health() Health {
	return Health{
		ID:        g.ID(),
		Kinds:     g.Kinds(),
		State:     g.throttle.State().String(),
		WindowMs:  g.throttle.Window().Milliseconds(),
		Successes: g.throttle.Successes(),
	}
}

type fetchOutcome struct {
	items []model.RawItem
	err   error
}

// Query runs the source under the adapter's timeout. A throttled adapter
// answers RateLimited without contacting the provider.
func (g *Guarded) Query(ctx context.Context, q Query) model.ProviderResult {
	start := time.Now()
	res := model.ProviderResult{ProviderID: g.ID()}

	if !g.throttle.Allow() {
		res.Kind = model.ErrorRateLimited
		res.Err = resilience.ErrThrottled
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan fetchOutcome, 1)
	go func() {
		items, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) ([]model.RawItem, error) {
			if err := g.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				// The wait would outlast the deadline.
				return nil, errors.Join(context.DeadlineExceeded, err)
			}
			return g.src.Fetch(ctx, q)
		})
		done <- fetchOutcome{items: items, err: err}
	}()

	var out fetchOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
	}

	res.LatencyMs = time.Since(start).Milliseconds()
	res.Kind = g.classify(out.err)
	if res.OK() {
		res.Items = out.items
		if res.Items == nil {
			res.Items = []model.RawItem{}
		}
		return res
	}

	res.Err = out.err
	zap.L().Warn("provider call failed",
		zap.String("provider", g.ID()),
		zap.String("level", string(q.Level)),
		zap.String("search_key", q.SearchKey),
		zap.String("kind", string(res.Kind)),
		zap.Int64("latency_ms", res.LatencyMs),
		zap.Error(out.err),
	)
	return res
}

func (g *Guarded) classify(err error) model.ErrorKind {
	switch {
	case err == nil:
		g.throttle.RecordSuccess()
		return model.ErrorNone
	case resilience.IsRateLimited(err):
		window := g.throttle.RecordRateLimited()
		zap.L().Warn("provider rate limited",
			zap.String("provider", g.ID()),
			zap.Duration("cooldown", window),
		)
		return model.ErrorRateLimited
	case resilience.IsTimeout(err), errors.Is(err, context.Canceled):
		return model.ErrorTimeout
	default:
		return model.ErrorProviderUnavailable
	}
}
