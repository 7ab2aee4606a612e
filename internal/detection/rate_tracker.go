package detection

import (
	"sort"
	"time"

	"github.com/vanetguard/vanetguard/internal/message"
)

// SenderState is the per-sender detection record. It is owned by a single
// detector and is not safe for concurrent use.
type SenderState struct {
	// time-ascending arrival times inside the current window
	timestamps []time.Duration

	suspicionStart time.Duration
	suspected      bool
	suspicionLevel int

	blacklisted   bool
	blacklistedAt time.Duration
}

// Count returns the number of arrivals currently held in the window.
func (s *SenderState) Count() int {
	return len(s.timestamps)
}

// evict drops every timestamp older than cutoff. Timestamps are ordered, so
// this is a prefix trim.
func (s *SenderState) evict(cutoff time.Duration) {
	i := sort.Search(len(s.timestamps), func(i int) bool {
		return s.timestamps[i] >= cutoff
	})
	if i == 0 {
		return
	}
	if i == len(s.timestamps) {
		s.timestamps = s.timestamps[:0]
		return
	}
	s.timestamps = s.timestamps[i:]
}

// arm records the start of a moderate-threshold breach if not already set.
func (s *SenderState) arm(now time.Duration) {
	if !s.suspected {
		s.suspected = true
		s.suspicionStart = now
	}
}

func (s *SenderState) disarm() {
	s.suspected = false
	s.suspicionStart = 0
}

// reset gives the sender a fresh evaluation window.
func (s *SenderState) reset() {
	s.timestamps = nil
	s.disarm()
	s.suspicionLevel = 0
	s.blacklisted = false
	s.blacklistedAt = 0
}

// SenderSnapshot is a read-only copy of a SenderState.
type SenderSnapshot struct {
	Count          int
	Timestamps     []time.Duration
	SuspicionSet   bool
	SuspicionStart time.Duration
	SuspicionLevel int
	Blacklisted    bool
	BlacklistedAt  time.Duration
}

func (s *SenderState) snapshot() SenderSnapshot {
	ts := make([]time.Duration, len(s.timestamps))
	copy(ts, s.timestamps)
	return SenderSnapshot{
		Count:          len(s.timestamps),
		Timestamps:     ts,
		SuspicionSet:   s.suspected,
		SuspicionStart: s.suspicionStart,
		SuspicionLevel: s.suspicionLevel,
		Blacklisted:    s.blacklisted,
		BlacklistedAt:  s.blacklistedAt,
	}
}

// RateTracker keeps a sliding window of arrival times per sender.
type RateTracker struct {
	window  time.Duration
	senders map[message.NodeID]*SenderState
}

// NewRateTracker creates a tracker measuring over the given window.
func NewRateTracker(window time.Duration) *RateTracker {
	if window <= 0 {
		window = DefaultConfig().DetectionWindow
	}
	return &RateTracker{
		window:  window,
		senders: make(map[message.NodeID]*SenderState),
	}
}

// Window returns the detection window length.
func (rt *RateTracker) Window() time.Duration {
	return rt.window
}

// Observe records an arrival from sender at now and returns the in-window
// count after eviction.
func (rt *RateTracker) Observe(sender message.NodeID, now time.Duration) int {
	st := rt.state(sender)
	st.timestamps = append(st.timestamps, now)
	st.evict(now - rt.window)
	return len(st.timestamps)
}

// Count evicts stale arrivals for sender and returns what is left.
func (rt *RateTracker) Count(sender message.NodeID, now time.Duration) int {
	st, ok := rt.senders[sender]
	if !ok {
		return 0
	}
	st.evict(now - rt.window)
	return len(st.timestamps)
}

// Rate returns sender's current rate in messages per second.
func (rt *RateTracker) Rate(sender message.NodeID, now time.Duration) float64 {
	return float64(rt.Count(sender, now)) / rt.window.Seconds()
}

// Prune evicts stale arrivals for every known sender.
func (rt *RateTracker) Prune(now time.Duration) {
	cutoff := now - rt.window
	for _, st := range rt.senders {
		st.evict(cutoff)
	}
}

// Lookup returns the state for sender without creating it.
func (rt *RateTracker) Lookup(sender message.NodeID) (*SenderState, bool) {
	st, ok := rt.senders[sender]
	return st, ok
}

// Senders returns every sender seen so far in ascending order.
func (rt *RateTracker) Senders() []message.NodeID {
	ids := make([]message.NodeID, 0, len(rt.senders))
	for id := range rt.senders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of distinct senders seen.
func (rt *RateTracker) Len() int {
	return len(rt.senders)
}

func (rt *RateTracker) state(sender message.NodeID) *SenderState {
	st, ok := rt.senders[sender]
	if !ok {
		st = &SenderState{}
		rt.senders[sender] = st
	}
	return st
}
