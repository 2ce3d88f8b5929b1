package resilience

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestThrottle(base, maxWindow time.Duration) (*Throttle, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	th := NewThrottle(ThrottleConfig{Backoff: Backoff{Base: base, Max: maxWindow, Multiplier: 2}})
	th.nowFunc = clock.Now
	return th, clock
}

func TestThrottle_StartsHealthy(t *testing.T) {
	th, _ := newTestThrottle(time.Second, time.Minute)
	assert.Equal(t, ThrottleHealthy, th.State())
	assert.True(t, th.Allow())
	assert.Zero(t, th.Window())
}

func TestThrottle_RateLimitRefusesCalls(t *testing.T) {
	th, clock := newTestThrottle(time.Second, time.Minute)

	window := th.RecordRateLimited()
	assert.Equal(t, time.Second, window)
	assert.Equal(t, ThrottleThrottled, th.State())
	assert.False(t, th.Allow())

	clock.Advance(999 * time.Millisecond)
	assert.False(t, th.Allow())

	clock.Advance(time.Millisecond)
	assert.Equal(t, ThrottleCoolingDown, th.State())
	assert.True(t, th.Allow())
}

func TestThrottle_ConsecutiveRateLimitsGrowWindow(t *testing.T) {
	th, clock := newTestThrottle(time.Second, time.Minute)

	var windows []time.Duration
	for range 3 {
		windows = append(windows, th.RecordRateLimited())
		assert.False(t, th.Allow())
		clock.Advance(windows[len(windows)-1])
		require.Equal(t, ThrottleCoolingDown, th.State())
	}

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, windows)
	assert.Less(t, windows[0], windows[1])
	assert.Less(t, windows[1], windows[2])
}

func TestThrottle_WindowCapped(t *testing.T) {
	th, _ := newTestThrottle(time.Second, 3*time.Second)
	for range 10 {
		th.RecordRateLimited()
	}
	assert.Equal(t, 3*time.Second, th.Window())
}

func TestThrottle_SuccessAfterCoolDownResets(t *testing.T) {
	th, clock := newTestThrottle(time.Second, time.Minute)

	th.RecordRateLimited()
	th.RecordRateLimited()
	clock.Advance(2 * time.Second)
	require.Equal(t, ThrottleCoolingDown, th.State())

	th.RecordSuccess()
	assert.Equal(t, ThrottleHealthy, th.State())
	assert.Zero(t, th.Window())

	// Schedule starts over.
	assert.Equal(t, time.Second, th.RecordRateLimited())
}

func TestThrottle_SuccessWhileThrottledKeepsWindow(t *testing.T) {
	th, _ := newTestThrottle(time.Second, time.Minute)
	th.RecordRateLimited()
	th.RecordSuccess()

	assert.Equal(t, ThrottleThrottled, th.State())
	assert.Equal(t, int64(1), th.Successes())
}

func TestThrottle_OnStateChange(t *testing.T) {
	var transitions []string
	th := NewThrottle(ThrottleConfig{
		Backoff: Backoff{Base: time.Second, Max: time.Minute},
		OnStateChange: func(from, to ThrottleState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	clock := &fakeClock{now: time.Unix(0, 0)}
	th.nowFunc = clock.Now

	th.RecordRateLimited()
	clock.Advance(time.Second)
	th.State()
	th.RecordSuccess()

	assert.Equal(t, []string{
		"healthy->throttled",
		"throttled->cooling_down",
		"cooling_down->healthy",
	}, transitions)
}

func TestThrottle_Concurrent(t *testing.T) {
	th := NewThrottle(DefaultThrottleConfig())
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				th.RecordRateLimited()
			} else {
				th.RecordSuccess()
			}
			_ = th.Allow()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(40), th.Successes())
}

func TestThrottleState_String(t *testing.T) {
	assert.Equal(t, "unknown", ThrottleState(42).String())
}

func TestFromConfig(t *testing.T) {
	rc := FromRetryConfig(0, 50, 400, "overpass")
	assert.Equal(t, 1, rc.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, rc.Backoff.Base)
	assert.Equal(t, 400*time.Millisecond, rc.Backoff.Max)
	assert.NotNil(t, rc.OnRetry)

	dflt := FromRetryConfig(-1, 0, 0, "")
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, dflt.MaxAttempts)
	assert.Nil(t, dflt.OnRetry)

	tc := FromThrottleConfig(250, 0)
	assert.Equal(t, 250*time.Millisecond, tc.Backoff.Base)
	assert.Equal(t, 2*time.Minute, tc.Backoff.Max)
}
