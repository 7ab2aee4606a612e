package detection

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// spread fills st with n arrivals evenly spaced over [now-span, now].
func spread(st *SenderState, now time.Duration, n int, span time.Duration) {
	st.timestamps = st.timestamps[:0]
	if n == 1 {
		st.timestamps = append(st.timestamps, now)
		return
	}
	step := span / time.Duration(n-1)
	start := now - step*time.Duration(n-1)
	for i := 0; i < n; i++ {
		st.timestamps = append(st.timestamps, start+step*time.Duration(i))
	}
}

func TestFloodClassifier_Classify(t *testing.T) {
	t.Parallel()

	fc := NewFloodClassifier(DefaultConfig())
	now := 20 * time.Second

	tests := []struct {
		name string
		n    int
		span time.Duration
		want Classification
	}{
		{name: "quiet", n: 10, span: 3 * time.Second, want: ClassClean},
		{name: "at flood threshold", n: 50, span: 3 * time.Second, want: ClassClean},
		{name: "moderate", n: 51, span: 3 * time.Second, want: ClassSuspicious},
		{name: "at severe threshold", n: 100, span: 3 * time.Second, want: ClassSuspicious},
		{name: "severe", n: 101, span: 3 * time.Second, want: ClassSevere},
		{name: "burst", n: 60, span: 60 * time.Millisecond, want: ClassBurst},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := &SenderState{}
			spread(st, now, tt.n, tt.span)
			got := fc.Classify(st, now)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want != ClassClean, st.suspected)
		})
	}
}

func TestFloodClassifier_Persistent(t *testing.T) {
	t.Parallel()

	fc := NewFloodClassifier(DefaultConfig())
	st := &SenderState{}

	start := 10 * time.Second
	spread(st, start, 51, 3*time.Second)
	assert.Equal(t, ClassSuspicious, fc.Classify(st, start))
	assert.Equal(t, start, st.suspicionStart)

	spread(st, start+6*time.Second, 51, 3*time.Second)
	assert.Equal(t, ClassSuspicious, fc.Classify(st, start+6*time.Second), "elapsed must exceed the duration")
	assert.Equal(t, start, st.suspicionStart, "suspicion start is kept while above threshold")

	spread(st, start+6100*time.Millisecond, 51, 3*time.Second)
	assert.Equal(t, ClassPersistent, fc.Classify(st, start+6100*time.Millisecond))
	assert.True(t, ClassPersistent.BlacklistCandidate())
}

func TestFloodClassifier_SuspicionDecays(t *testing.T) {
	t.Parallel()

	fc := NewFloodClassifier(DefaultConfig())
	st := &SenderState{}

	spread(st, 5*time.Second, 55, 3*time.Second)
	assert.Equal(t, ClassSuspicious, fc.Classify(st, 5*time.Second))
	assert.True(t, st.suspected)

	spread(st, 9*time.Second, 20, 3*time.Second)
	assert.Equal(t, ClassClean, fc.Classify(st, 9*time.Second))
	assert.False(t, st.suspected)

	// a fresh breach re-arms from the new time
	spread(st, 20*time.Second, 55, 3*time.Second)
	fc.Classify(st, 20*time.Second)
	assert.Equal(t, 20*time.Second, st.suspicionStart)
}

func TestBurstDetector(t *testing.T) {
	t.Parallel()

	bd := BurstDetector{MinBurstSize: 50, MaxBurstDuration: time.Second, Threshold: 200}
	now := 10 * time.Second

	tests := []struct {
		name      string
		n         int
		span      time.Duration
		wantBurst bool
	}{
		{name: "too few samples", n: 49, span: time.Millisecond, wantBurst: false},
		{name: "sub-window too long", n: 50, span: time.Second, wantBurst: false},
		{name: "implied rate below threshold", n: 50, span: 490 * time.Millisecond, wantBurst: false},
		{name: "implied rate above threshold", n: 50, span: 100 * time.Millisecond, wantBurst: true},
		{name: "only most recent samples count", n: 200, span: 3 * time.Second, wantBurst: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := &SenderState{}
			spread(st, now, tt.n, tt.span)
			assert.Equal(t, tt.wantBurst, bd.Detect(st.timestamps))
		})
	}

	t.Run("simultaneous arrivals", func(t *testing.T) {
		ts := make([]time.Duration, 50)
		for i := range ts {
			ts[i] = now
		}
		rate, burst := bd.Rate(ts)
		assert.True(t, burst)
		assert.True(t, math.IsInf(rate, 1))
	})
}
