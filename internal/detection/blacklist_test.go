package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestBlacklist(t *testing.T, timeout time.Duration) (*RateTracker, *Blacklist) {
	t.Helper()
	rt := NewRateTracker(3 * time.Second)
	return rt, NewBlacklist(zaptest.NewLogger(t), rt, timeout)
}

func TestBlacklist_TimeoutRecovery(t *testing.T) {
	t.Parallel()

	rt, bl := newTestBlacklist(t, 30*time.Second)

	at := 12 * time.Second
	for i := 0; i < 10; i++ {
		rt.Observe(5, at)
	}
	st, _ := rt.Lookup(5)
	st.arm(at)
	st.suspicionLevel = 4
	bl.Add(5, at)

	assert.True(t, bl.IsBlacklisted(5, at))
	assert.True(t, bl.IsBlacklisted(5, at+30*time.Second-time.Nanosecond))

	expiry, ok := bl.Expiry(5)
	require.True(t, ok)
	assert.Equal(t, at+30*time.Second, expiry)

	// deadline reached
	assert.False(t, bl.IsBlacklisted(5, at+30*time.Second))
	assert.Equal(t, 0, st.Count())
	assert.False(t, st.suspected)
	assert.Equal(t, 0, st.suspicionLevel)

	// repeated queries stay clean
	for i := 0; i < 3; i++ {
		assert.False(t, bl.IsBlacklisted(5, at+31*time.Second))
	}
	assert.Equal(t, StateClean, bl.State(5, at+31*time.Second))
}

func TestBlacklist_AddKeepsDeadline(t *testing.T) {
	t.Parallel()

	_, bl := newTestBlacklist(t, 10*time.Second)

	bl.Add(1, time.Second)
	bl.Add(1, 5*time.Second)

	expiry, ok := bl.Expiry(1)
	require.True(t, ok)
	assert.Equal(t, 11*time.Second, expiry)
	assert.False(t, bl.IsBlacklisted(1, 11*time.Second))
}

func TestBlacklist_States(t *testing.T) {
	t.Parallel()

	rt, bl := newTestBlacklist(t, 10*time.Second)

	assert.Equal(t, StateClean, bl.State(3, 0), "unknown sender")

	rt.Observe(3, time.Second)
	assert.Equal(t, StateClean, bl.State(3, time.Second))

	st, _ := rt.Lookup(3)
	st.arm(time.Second)
	assert.Equal(t, StateSuspicious, bl.State(3, time.Second))

	st.disarm()
	assert.Equal(t, StateClean, bl.State(3, 2*time.Second), "suspicious may return to clean")

	bl.Add(3, 2*time.Second)
	assert.Equal(t, StateBlacklisted, bl.State(3, 2*time.Second))
	assert.Equal(t, StateClean, bl.State(3, 12*time.Second))
}

func TestBlacklist_ActiveAndFlagged(t *testing.T) {
	t.Parallel()

	_, bl := newTestBlacklist(t, 10*time.Second)
	bl.Add(1, 0)
	bl.Add(2, 5*time.Second)

	assert.ElementsMatch(t, []int{1, 2}, toInts(bl.Flagged()))
	assert.ElementsMatch(t, []int{2}, toInts(bl.Active(12*time.Second)))
	assert.ElementsMatch(t, []int{2}, toInts(bl.Flagged()), "recovery cleared sender 1")
}
