package detection

import (
	"time"

	"github.com/vanetguard/vanetguard/internal/message"
	"go.uber.org/zap"
)

// State is the position of a sender in the blacklist state machine.
type State int

const (
	StateClean State = iota
	StateSuspicious
	StateBlacklisted
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateSuspicious:
		return "suspicious"
	case StateBlacklisted:
		return "blacklisted"
	default:
		return "unknown"
	}
}

// Blacklist drives Clean -> Suspicious -> Blacklisted -> Clean transitions on
// top of the tracker's sender table. Recovery is lazy: it happens when the
// sender is next queried after the timeout.
type Blacklist struct {
	logger  *zap.Logger
	tracker *RateTracker
	timeout time.Duration
}

// NewBlacklist creates a blacklist with the given recovery timeout.
func NewBlacklist(logger *zap.Logger, tracker *RateTracker, timeout time.Duration) *Blacklist {
	if timeout <= 0 {
		timeout = DefaultConfig().BlacklistTimeout
	}
	return &Blacklist{
		logger:  logger,
		tracker: tracker,
		timeout: timeout,
	}
}

// IsBlacklisted reports whether sender is blacklisted at now, recovering it
// first if the timeout has elapsed.
func (b *Blacklist) IsBlacklisted(sender message.NodeID, now time.Duration) bool {
	st, ok := b.tracker.Lookup(sender)
	if !ok {
		return false
	}
	return b.check(sender, st, now)
}

func (b *Blacklist) check(sender message.NodeID, st *SenderState, now time.Duration) bool {
	if !st.blacklisted {
		return false
	}
	if now-st.blacklistedAt >= b.timeout {
		st.reset()
		b.logger.Debug("Sender recovered from blacklist",
			zap.Int("sender", int(sender)),
			zap.Duration("at", now),
		)
		return false
	}
	return true
}

// Add blacklists sender at now. Re-adding an already blacklisted sender keeps
// the original deadline.
func (b *Blacklist) Add(sender message.NodeID, now time.Duration) {
	st := b.tracker.state(sender)
	if st.blacklisted {
		return
	}
	st.blacklisted = true
	st.blacklistedAt = now
}

// State returns the current state of sender after lazy recovery.
func (b *Blacklist) State(sender message.NodeID, now time.Duration) State {
	st, ok := b.tracker.Lookup(sender)
	if !ok {
		return StateClean
	}
	if b.check(sender, st, now) {
		return StateBlacklisted
	}
	if st.suspected {
		return StateSuspicious
	}
	return StateClean
}

// Expiry returns when the sender's blacklist entry lapses.
func (b *Blacklist) Expiry(sender message.NodeID) (time.Duration, bool) {
	st, ok := b.tracker.Lookup(sender)
	if !ok || !st.blacklisted {
		return 0, false
	}
	return st.blacklistedAt + b.timeout, true
}

// Active returns the senders blacklisted at now.
func (b *Blacklist) Active(now time.Duration) []message.NodeID {
	var ids []message.NodeID
	for _, id := range b.tracker.Senders() {
		st, _ := b.tracker.Lookup(id)
		if b.check(id, st, now) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Flagged returns the senders currently flagged without applying recovery.
// Used for end-of-run summaries, where time no longer advances.
func (b *Blacklist) Flagged() []message.NodeID {
	var ids []message.NodeID
	for _, id := range b.tracker.Senders() {
		if st, _ := b.tracker.Lookup(id); st.blacklisted {
			ids = append(ids, id)
		}
	}
	return ids
}
