package detection

import (
	"math"
	"time"
)

// Classification is the outcome of flood classification for one sender.
type Classification int

const (
	ClassClean Classification = iota
	ClassSuspicious
	ClassBurst
	ClassPersistent
	ClassSevere
)

func (c Classification) String() string {
	switch c {
	case ClassClean:
		return "clean"
	case ClassSuspicious:
		return "suspicious"
	case ClassBurst:
		return "burst"
	case ClassPersistent:
		return "persistent"
	case ClassSevere:
		return "severe"
	default:
		return "unknown"
	}
}

// BlacklistCandidate reports whether the classification warrants blacklisting.
func (c Classification) BlacklistCandidate() bool {
	return c == ClassBurst || c == ClassPersistent || c == ClassSevere
}

// FloodClassifier applies the moderate/severe thresholds together with the
// burst and persistence rules.
type FloodClassifier struct {
	floodThreshold          float64
	severeFloodThreshold    float64
	persistentFloodDuration time.Duration
	burst                   BurstDetector
}

// NewFloodClassifier builds a classifier from cfg. cfg must already carry
// defaults.
func NewFloodClassifier(cfg Config) *FloodClassifier {
	return &FloodClassifier{
		floodThreshold:          cfg.FloodThreshold,
		severeFloodThreshold:    cfg.SevereFloodThreshold,
		persistentFloodDuration: cfg.PersistentFloodDuration,
		burst: BurstDetector{
			MinBurstSize:     cfg.MinBurstSize,
			MaxBurstDuration: cfg.MaxBurstDuration,
			Threshold:        cfg.BurstThreshold,
		},
	}
}

// Classify evaluates st at now. The window must already be evicted. As a side
// effect it arms suspicion on a moderate breach and disarms it once the count
// is back at or under the flood threshold.
func (fc *FloodClassifier) Classify(st *SenderState, now time.Duration) Classification {
	r := float64(st.Count())
	if r <= fc.floodThreshold {
		st.disarm()
		return ClassClean
	}
	st.arm(now)

	switch {
	case r > fc.severeFloodThreshold:
		return ClassSevere
	case fc.burst.Detect(st.timestamps):
		return ClassBurst
	case now-st.suspicionStart > fc.persistentFloodDuration:
		return ClassPersistent
	default:
		return ClassSuspicious
	}
}

// BurstDetector flags many arrivals packed into a sub-interval much shorter
// than the detection window.
type BurstDetector struct {
	MinBurstSize     int
	MaxBurstDuration time.Duration
	Threshold        float64 // messages per second
}

// Detect inspects the most recent MinBurstSize timestamps.
func (bd BurstDetector) Detect(timestamps []time.Duration) bool {
	_, burst := bd.Rate(timestamps)
	return burst
}

// Rate returns the implied rate of the most recent MinBurstSize arrivals and
// whether it constitutes a burst. Simultaneous arrivals imply an infinite rate.
func (bd BurstDetector) Rate(timestamps []time.Duration) (float64, bool) {
	if bd.MinBurstSize <= 0 || len(timestamps) < bd.MinBurstSize {
		return 0, false
	}
	recent := timestamps[len(timestamps)-bd.MinBurstSize:]
	duration := recent[len(recent)-1] - recent[0]
	if duration >= bd.MaxBurstDuration {
		return 0, false
	}
	if duration <= 0 {
		return math.Inf(1), true
	}
	rate := float64(bd.MinBurstSize) / duration.Seconds()
	return rate, rate > bd.Threshold
}
