package detection

import (
	"math"
	"time"

	"github.com/vanetguard/vanetguard/internal/message"
	"gonum.org/v1/gonum/stat"
)

// AnomalyClassifier compares a sender's rate with the mean rate of every
// non-blacklisted sender known to the node.
type AnomalyClassifier struct {
	tracker   *RateTracker
	blacklist *Blacklist
	threshold float64
	maxLevel  int
}

// NewAnomalyClassifier creates a peer-relative anomaly classifier.
func NewAnomalyClassifier(tracker *RateTracker, blacklist *Blacklist, threshold float64, maxLevel int) *AnomalyClassifier {
	return &AnomalyClassifier{
		tracker:   tracker,
		blacklist: blacklist,
		threshold: threshold,
		maxLevel:  maxLevel,
	}
}

// MeanRate returns the mean current rate across non-blacklisted senders, or 0
// when there are none.
func (ac *AnomalyClassifier) MeanRate(now time.Duration) float64 {
	var rates []float64
	for _, id := range ac.tracker.Senders() {
		if ac.blacklist.IsBlacklisted(id, now) {
			continue
		}
		rates = append(rates, ac.tracker.Rate(id, now))
	}
	if len(rates) == 0 {
		return 0
	}
	return stat.Mean(rates, nil)
}

// Deviation returns |r - mean| / mean for sender. ok is false when the mean is
// zero and the deviation is undefined.
func (ac *AnomalyClassifier) Deviation(sender message.NodeID, now time.Duration) (float64, bool) {
	mean := ac.MeanRate(now)
	if mean == 0 {
		return 0, false
	}
	r := ac.tracker.Rate(sender, now)
	return math.Abs(r-mean) / mean, true
}

// Check flags sender as anomalous when its deviation exceeds the threshold and
// bumps its suspicion level by one. The level saturates one above the
// configured maximum, which is the value that triggers blacklisting.
func (ac *AnomalyClassifier) Check(sender message.NodeID, now time.Duration) bool {
	dev, ok := ac.Deviation(sender, now)
	if !ok || dev <= ac.threshold {
		return false
	}
	st := ac.tracker.state(sender)
	if st.suspicionLevel <= ac.maxLevel {
		st.suspicionLevel++
	}
	return true
}

// Exceeded reports whether sender's suspicion level is over the maximum.
func (ac *AnomalyClassifier) Exceeded(sender message.NodeID) bool {
	st, ok := ac.tracker.Lookup(sender)
	return ok && st.suspicionLevel > ac.maxLevel
}
