// Package resilience provides rate-limit backoff, retry and error
// classification for external provider calls.
package resilience

import (
	"sync"
	"sync/atomic"
	"time"
)

// ThrottleState is the rate-limit health of one provider.
type ThrottleState int

const (
	// ThrottleHealthy is the normal state: calls flow through.
	ThrottleHealthy ThrottleState = iota
	// ThrottleThrottled means a rate-limit signal was received and the
	// cool-down window has not elapsed; calls are refused.
	ThrottleThrottled
	// ThrottleCoolingDown means the window elapsed; calls are allowed again
	// as probes. A success returns to Healthy, another rate limit returns to
	// Throttled with a longer window.
	ThrottleCoolingDown
)

func (s ThrottleState) String() string {
	switch s {
	case ThrottleHealthy:
		return "healthy"
	case ThrottleThrottled:
		return "throttled"
	case ThrottleCoolingDown:
		return "cooling_down"
	default:
		return "unknown"
	}
}

// ThrottleConfig controls the cool-down schedule.
type ThrottleConfig struct {
	// Backoff is the cool-down schedule: first window Base, doubling, capped at Max.
	Backoff Backoff
	// OnStateChange is called on every transition, under the throttle lock.
	OnStateChange func(from, to ThrottleState)
}

// DefaultThrottleConfig returns a 1s base window capped at 2 minutes.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		Backoff: Backoff{Base: time.Second, Max: 2 * time.Minute, Multiplier: 2},
	}
}

// Throttle is the rate-limit state machine shared by every caller of one
// provider. It is safe for concurrent use.
type Throttle struct {
	cfg ThrottleConfig

	mu          sync.Mutex
	state       ThrottleState
	consecutive int // rate-limit signals since the last success
	until       time.Time
	lastWindow  time.Duration

	successes atomic.Int64

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewThrottle creates a Healthy throttle.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	cfg.Backoff = cfg.Backoff.withDefaults()
	return &Throttle{cfg: cfg, nowFunc: time.Now}
}

// State returns the current state, applying the Throttled → CoolingDown
// transition if the window has elapsed.
func (t *Throttle) State() ThrottleState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance()
	return t.state
}

// Allow reports whether a call may be made now.
func (t *Throttle) Allow() bool {
	return t.State() != ThrottleThrottled
}

// RecordRateLimited moves the throttle to Throttled and returns the length
// of the new cool-down window. Each consecutive signal doubles the window.
func (t *Throttle) RecordRateLimited() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.cfg.Backoff.Delay(t.consecutive)
	t.consecutive++
	t.lastWindow = window
	t.until = t.nowFunc().Add(window)
	t.transition(ThrottleThrottled)
	return window
}

// RecordSuccess counts a successful call and, from CoolingDown, returns the
// throttle to Healthy.
func (t *Throttle) RecordSuccess() {
	t.successes.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance()
	if t.state == ThrottleThrottled {
		// A call that started before the signal landed; the window stands.
		return
	}
	t.consecutive = 0
	t.lastWindow = 0
	t.transition(ThrottleHealthy)
}

// Window returns the most recent cool-down window, or 0 when Healthy.
func (t *Throttle) Window() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastWindow
}

// Successes returns the number of successful calls recorded.
func (t *Throttle) Successes() int64 {
	return t.successes.Load()
}

func (t *Throttle) advance() {
	if t.state == ThrottleThrottled && !t.nowFunc().Before(t.until) {
		t.transition(ThrottleCoolingDown)
	}
}

func (t *Throttle) transition(to ThrottleState) {
	from := t.state
	if from == to {
		return
	}
	t.state = to
	if t.cfg.OnStateChange != nil {
		t.cfg.OnStateChange(from, to)
	}
}
