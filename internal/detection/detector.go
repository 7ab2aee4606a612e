// Package detection implements per-node misbehavior detection for broadcast
// beacon traffic: sliding-window rate tracking, flood and burst
// classification, peer-relative anomaly detection, content validation and a
// blacklist with timed recovery.
//
// A Detector is owned by exactly one node and is not safe for concurrent use.
package detection

import (
	"time"

	"github.com/vanetguard/vanetguard/internal/message"
	"go.uber.org/zap"
)

// Reason names why a frame was rejected.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonBlacklisted     Reason = "blacklisted"
	ReasonSevereFlood     Reason = "severe_flood"
	ReasonBurstFlood      Reason = "burst_flood"
	ReasonPersistentFlood Reason = "persistent_flood"
	ReasonAnomaly         Reason = "rate_anomaly"
	ReasonInvalidPosition Reason = "invalid_position"
	ReasonImpossibleSpeed Reason = "impossible_speed"
	ReasonFutureTimestamp Reason = "future_timestamp"
	ReasonStaleMessage    Reason = "stale_message"
)

// Reasons lists every rejection reason.
var Reasons = []Reason{
	ReasonBlacklisted,
	ReasonSevereFlood,
	ReasonBurstFlood,
	ReasonPersistentFlood,
	ReasonAnomaly,
	ReasonInvalidPosition,
	ReasonImpossibleSpeed,
	ReasonFutureTimestamp,
	ReasonStaleMessage,
}

func floodReason(c Classification) Reason {
	switch c {
	case ClassSevere:
		return ReasonSevereFlood
	case ClassBurst:
		return ReasonBurstFlood
	case ClassPersistent:
		return ReasonPersistentFlood
	default:
		return ReasonNone
	}
}

// Verdict is the dispatcher's decision for one arriving frame.
type Verdict struct {
	Accepted       bool
	Reason         Reason
	Classification Classification
	// Blacklisted is set when this frame caused the sender to be blacklisted.
	Blacklisted bool
	// Evasive is set when the node should start (or extend) evasive action.
	Evasive bool
	// Count is the sender's in-window count after this frame, 0 if blocked.
	Count int
}

// Statistics are the running detection counters of one node.
type Statistics struct {
	TotalDetections    int `json:"total_detections" yaml:"total_detections"`
	HighRateDetections int `json:"high_rate_detections" yaml:"high_rate_detections"`
	PacketsBlocked     int `json:"packets_blocked" yaml:"packets_blocked"`
	// FalsePositives is reserved; ground truth is not available in-band.
	FalsePositives int            `json:"false_positives" yaml:"false_positives"`
	ByReason       map[Reason]int `json:"by_reason,omitempty" yaml:"by_reason,omitempty"`
}

// Detector orchestrates the classifiers for every arriving frame.
type Detector struct {
	logger *zap.Logger
	config Config

	tracker   *RateTracker
	blacklist *Blacklist
	flood     *FloodClassifier
	anomaly   *AnomalyClassifier
	validator ContentValidator

	stats Statistics
}

// NewDetector creates a detector. Zero numeric fields in cfg take defaults.
func NewDetector(cfg Config, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	tracker := NewRateTracker(cfg.DetectionWindow)
	blacklist := NewBlacklist(logger, tracker, cfg.BlacklistTimeout)

	return &Detector{
		logger:    logger,
		config:    cfg,
		tracker:   tracker,
		blacklist: blacklist,
		flood:     NewFloodClassifier(cfg),
		anomaly:   NewAnomalyClassifier(tracker, blacklist, cfg.AnomalyThreshold, cfg.MaxSuspicionLevel),
		validator: ContentValidator{
			MaxReasonableSpeed: cfg.MaxReasonableSpeed,
			MaxMessageAge:      cfg.MaxMessageAge,
		},
		stats: Statistics{ByReason: make(map[Reason]int)},
	}
}

// Config returns the effective configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Inspect runs the detection pipeline for f arriving at now. A rejected frame
// must have no further effect on the node.
func (d *Detector) Inspect(f message.Frame, now time.Duration) Verdict {
	sender := f.SenderID

	if !d.config.DetectionEnabled {
		count := d.tracker.Observe(sender, now)
		return Verdict{Accepted: true, Count: count}
	}

	// Known offenders are rejected before touching the rate tracker.
	if d.blacklist.IsBlacklisted(sender, now) {
		d.stats.PacketsBlocked++
		d.record(ReasonBlacklisted)
		return Verdict{Reason: ReasonBlacklisted, Classification: ClassClean, Evasive: true}
	}

	count := d.tracker.Observe(sender, now)
	st, _ := d.tracker.Lookup(sender)

	class := d.flood.Classify(st, now)
	if class.BlacklistCandidate() {
		reason := floodReason(class)
		d.blacklist.Add(sender, now)
		d.stats.HighRateDetections++
		d.record(reason)
		d.logger.Info("Flood attacker blacklisted",
			zap.Int("sender", int(sender)),
			zap.String("classification", class.String()),
			zap.Int("count", count),
			zap.Duration("window", d.config.DetectionWindow),
			zap.Duration("at", now),
		)
		return Verdict{
			Reason:         reason,
			Classification: class,
			Blacklisted:    true,
			Evasive:        true,
			Count:          count,
		}
	}

	// Anomalies always raise the suspicion level, but only a sender that is
	// over the flood threshold can be blacklisted for it.
	if d.config.EntropyBasedDetectionEnabled && d.anomaly.Check(sender, now) &&
		st.suspected && d.anomaly.Exceeded(sender) {
		d.blacklist.Add(sender, now)
		d.record(ReasonAnomaly)
		d.logger.Info("Anomalous sender blacklisted",
			zap.Int("sender", int(sender)),
			zap.Int("suspicion_level", st.suspicionLevel),
			zap.Int("count", count),
			zap.Duration("at", now),
		)
		return Verdict{
			Reason:         ReasonAnomaly,
			Classification: class,
			Blacklisted:    true,
			Evasive:        true,
			Count:          count,
		}
	}

	if d.config.MessageValidationEnabled {
		if reason := d.validator.Validate(f, now); reason != ReasonNone {
			d.record(reason)
			d.logger.Debug("Invalid message content",
				zap.Int("sender", int(sender)),
				zap.Int64("packet_id", int64(f.PacketID)),
				zap.String("reason", string(reason)),
			)
			return Verdict{Reason: reason, Classification: class, Count: count}
		}
	}

	return Verdict{Accepted: true, Classification: class, Count: count}
}

// Sweep prunes every sender's window, applies lazy blacklist recovery and
// disarms suspicion for senders that fell back under the flood threshold.
// It is driven by a periodic housekeeping timer.
func (d *Detector) Sweep(now time.Duration) {
	d.tracker.Prune(now)
	for _, id := range d.tracker.Senders() {
		if d.blacklist.IsBlacklisted(id, now) {
			continue
		}
		st, _ := d.tracker.Lookup(id)
		if float64(st.Count()) <= d.config.FloodThreshold {
			st.disarm()
		}
	}
}

// IsBlacklisted reports whether sender is blacklisted at now.
func (d *Detector) IsBlacklisted(sender message.NodeID, now time.Duration) bool {
	return d.blacklist.IsBlacklisted(sender, now)
}

// State returns sender's blacklist state machine position.
func (d *Detector) State(sender message.NodeID, now time.Duration) State {
	return d.blacklist.State(sender, now)
}

// Sender returns a snapshot of sender's state without mutating it.
func (d *Detector) Sender(sender message.NodeID) (SenderSnapshot, bool) {
	st, ok := d.tracker.Lookup(sender)
	if !ok {
		return SenderSnapshot{}, false
	}
	return st.snapshot(), true
}

// KnownSenders returns the number of distinct senders observed.
func (d *Detector) KnownSenders() int {
	return d.tracker.Len()
}

// Blacklisted returns the senders flagged at the end of the run.
func (d *Detector) Blacklisted() []message.NodeID {
	return d.blacklist.Flagged()
}

// MeanRate exposes the anomaly classifier's population mean.
func (d *Detector) MeanRate(now time.Duration) float64 {
	return d.anomaly.MeanRate(now)
}

// Stats returns a copy of the detection counters.
func (d *Detector) Stats() Statistics {
	out := d.stats
	out.ByReason = make(map[Reason]int, len(d.stats.ByReason))
	for k, v := range d.stats.ByReason {
		out.ByReason[k] = v
	}
	return out
}

func (d *Detector) record(reason Reason) {
	d.stats.TotalDetections++
	d.stats.ByReason[reason]++
}
