package gitlab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when the limiter sleeps, so spacing math is
// exact and the tests never block.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func newFakeLimiter(minInterval time.Duration, budget int) (*RateLimiter, *fakeClock) {
	clock := newFakeClock()
	r := NewRateLimiter(minInterval, budget)
	r.now = clock.Now
	r.sleep = clock.Sleep
	return r, clock
}

func TestRateLimiter_EnforcesMinimumSpacing(t *testing.T) {
	t.Parallel()

	r, clock := newFakeLimiter(200*time.Millisecond, 600)

	for i := 0; i < 5; i++ {
		r.Wait()
	}

	// The first call is free; each subsequent call sleeps the full gap
	// because the clock only moves during sleeps.
	require.Len(t, clock.sleeps, 4)
	var total time.Duration
	for _, d := range clock.sleeps {
		assert.Equal(t, 200*time.Millisecond, d)
		total += d
	}
	assert.Equal(t, 800*time.Millisecond, total)
}

func TestRateLimiter_SleepsOutWindowNearBudget(t *testing.T) {
	t.Parallel()

	r, clock := newFakeLimiter(0, 10)

	// 90% of a budget of 10 allows 9 calls in the window.
	for i := 0; i < 9; i++ {
		r.Wait()
	}
	require.Empty(t, clock.sleeps)

	r.Wait()
	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, time.Minute, clock.sleeps[0])
}

func TestRateLimiter_WindowRollsOver(t *testing.T) {
	t.Parallel()

	r, clock := newFakeLimiter(0, 10)

	for i := 0; i < 9; i++ {
		r.Wait()
	}
	clock.now = clock.now.Add(time.Minute)

	// A fresh window: no sleep needed.
	r.Wait()
	assert.Empty(t, clock.sleeps)
}

func TestRateLimiter_ResetClearsCounters(t *testing.T) {
	t.Parallel()

	r, clock := newFakeLimiter(200*time.Millisecond, 10)

	for i := 0; i < 9; i++ {
		r.Wait()
	}
	r.Reset()

	before := len(clock.sleeps)
	r.Wait()
	// Neither spacing nor budget applies right after a reset.
	assert.Len(t, clock.sleeps, before)
}

func TestRateLimiter_NotifiesOnWait(t *testing.T) {
	t.Parallel()

	r, _ := newFakeLimiter(200*time.Millisecond, 600)

	var waits int
	r.onWait = func() { waits++ }

	r.Wait()
	r.Wait()
	assert.Equal(t, 1, waits)
}
