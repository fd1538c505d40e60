package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{IdleTimeout: 30 * time.Minute, WarningBefore: 5 * time.Minute}
}

func TestTracker_Lifecycle(t *testing.T) {
	clock := NewManualClock(start)
	tr := NewTracker(testConfig(), clock)

	var warnings, expiries atomic.Int32
	tr.OnWarning(func() { warnings.Add(1) })
	tr.OnExpire(func() { expiries.Add(1) })
	tr.Init()

	assert.Equal(t, StateActive, tr.State())
	assert.Equal(t, 30*time.Minute, tr.Remaining())

	clock.Advance(25 * time.Minute)
	assert.Equal(t, StateWarning, tr.State())
	assert.Equal(t, int32(1), warnings.Load())
	assert.Equal(t, 5*time.Minute, tr.Remaining())

	clock.Advance(5 * time.Minute)
	assert.Equal(t, StateExpired, tr.State())
	assert.Equal(t, int32(1), expiries.Load())
	assert.Zero(t, tr.Remaining())

	clock.Advance(time.Hour)
	assert.Equal(t, int32(1), expiries.Load(), "expiry fires once")
	assert.False(t, tr.Touch(), "expiry is final")
	assert.Equal(t, StateExpired, tr.State())
}

func TestTracker_TouchResetsIdleTime(t *testing.T) {
	clock := NewManualClock(start)
	tr := NewTracker(testConfig(), clock)
	var expiries atomic.Int32
	tr.OnExpire(func() { expiries.Add(1) })
	tr.Init()

	clock.Advance(27 * time.Minute)
	require.Equal(t, StateWarning, tr.State())

	assert.True(t, tr.Touch())
	assert.Equal(t, StateActive, tr.State())
	assert.Equal(t, 30*time.Minute, tr.Remaining())

	clock.Advance(29 * time.Minute)
	assert.Equal(t, StateWarning, tr.State())
	assert.Zero(t, expiries.Load())

	clock.Advance(time.Minute)
	assert.Equal(t, StateExpired, tr.State())
	assert.Equal(t, int32(1), expiries.Load())
}

func TestTracker_ExpiresWithoutPolling(t *testing.T) {
	clock := NewManualClock(start)
	tr := NewTracker(testConfig(), clock)
	expired := make(chan struct{}, 1)
	tr.OnExpire(func() { expired <- struct{}{} })
	tr.Init()

	// the timer alone drives the transition
	clock.Advance(31 * time.Minute)
	select {
	case <-expired:
	default:
		t.Fatal("expected the expiry callback to run from the timer")
	}
}

func TestTracker_Dispose(t *testing.T) {
	clock := NewManualClock(start)
	tr := NewTracker(testConfig(), clock)
	var calls atomic.Int32
	tr.OnWarning(func() { calls.Add(1) })
	tr.OnExpire(func() { calls.Add(1) })
	tr.Init()

	tr.Dispose()
	clock.Advance(time.Hour)

	assert.Zero(t, calls.Load())
	assert.True(t, tr.Disposed())
	assert.False(t, tr.Touch())
}

func TestTracker_InitIsIdempotent(t *testing.T) {
	clock := NewManualClock(start)
	tr := NewTracker(testConfig(), clock)
	tr.Init()
	clock.Advance(10 * time.Minute)
	tr.Init()

	assert.Equal(t, 20*time.Minute, tr.Remaining())
}

func TestTracker_NoWarningWindow(t *testing.T) {
	clock := NewManualClock(start)
	tr := NewTracker(Config{IdleTimeout: 10 * time.Minute}, clock)
	var warnings atomic.Int32
	tr.OnWarning(func() { warnings.Add(1) })
	tr.Init()

	clock.Advance(9 * time.Minute)
	assert.Equal(t, StateActive, tr.State())
	clock.Advance(time.Minute)
	assert.Equal(t, StateExpired, tr.State())
	assert.Zero(t, warnings.Load())
}

func TestConfig_Normalize(t *testing.T) {
	c := Config{}.normalize()
	assert.Equal(t, 30*time.Minute, c.IdleTimeout)

	c = Config{IdleTimeout: time.Minute, WarningBefore: time.Hour}.normalize()
	assert.Zero(t, c.WarningBefore)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "warning", StateWarning.String())
	assert.Equal(t, "expired", StateExpired.String())
}

func TestRegistry_IndependentSessions(t *testing.T) {
	clock := NewManualClock(start)
	r := NewRegistry(testConfig(), clock)

	var expired []string
	r.OnExpire(func(id string) { expired = append(expired, id) })

	assert.Equal(t, StateActive, r.Touch("a"))
	assert.Equal(t, StateActive, r.Touch("b"))
	assert.Equal(t, 2, r.Len())

	clock.Advance(20 * time.Minute)
	r.Touch("b")

	clock.Advance(11 * time.Minute)
	assert.Equal(t, StateExpired, r.Status("a").State)
	assert.Equal(t, StateActive, r.Status("b").State)
	assert.Equal(t, []string{"a"}, expired)

	assert.Equal(t, StateExpired, r.Touch("a"))
}

func TestRegistry_StatusIsNotActivity(t *testing.T) {
	clock := NewManualClock(start)
	r := NewRegistry(testConfig(), clock)
	r.Touch("a")

	clock.Advance(26 * time.Minute)
	st := r.Status("a")
	assert.Equal(t, StateWarning, st.State)
	assert.Equal(t, 4*time.Minute, st.Remaining)
	assert.Equal(t, 5*time.Minute, st.Warning)

	clock.Advance(4 * time.Minute)
	assert.Equal(t, StateExpired, r.Status("a").State)
}

func TestRegistry_ResetAndRemove(t *testing.T) {
	clock := NewManualClock(start)
	r := NewRegistry(testConfig(), clock)
	r.Touch("a")

	clock.Advance(40 * time.Minute)
	require.Equal(t, StateExpired, r.Status("a").State)

	r.Reset("a")
	assert.Equal(t, StateActive, r.Status("a").State)
	assert.Equal(t, 30*time.Minute, r.Status("a").Remaining)

	r.Remove("a")
	assert.Zero(t, r.Len())
}

func TestRegistry_Sweep(t *testing.T) {
	clock := NewManualClock(start)
	r := NewRegistry(testConfig(), clock)
	r.Touch("old")
	clock.Advance(25 * time.Minute)
	r.Touch("fresh")
	clock.Advance(10 * time.Minute)

	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, StateActive, r.Touch("fresh"))
}

func TestManualClock_FiresInOrder(t *testing.T) {
	clock := NewManualClock(start)
	var order []int
	clock.AfterFunc(2*time.Minute, func() { order = append(order, 2) })
	clock.AfterFunc(time.Minute, func() { order = append(order, 1) })
	stopped := clock.AfterFunc(90*time.Second, func() { order = append(order, 99) })
	stopped.Stop()

	clock.Advance(5 * time.Minute)
	assert.Equal(t, []int{1, 2}, order)
	assert.Equal(t, start.Add(5*time.Minute), clock.Now())
}
