// Package report turns a finished simulation into a persistent run report
// with network-wide aggregates.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vanetguard/vanetguard/internal/detection"
	"github.com/vanetguard/vanetguard/internal/message"
	"github.com/vanetguard/vanetguard/internal/simulation"
	"gonum.org/v1/gonum/stat"
)

// Report is the persisted outcome of one run.
type Report struct {
	RunID      uuid.UUID          `json:"run_id" yaml:"run_id"`
	CreatedAt  time.Time          `json:"created_at" yaml:"created_at"`
	AttackType string             `json:"attack_type" yaml:"attack_type"`
	Summary    Summary            `json:"summary" yaml:"summary"`
	Result     *simulation.Result `json:"result" yaml:"result"`
}

// Summary aggregates the per-node figures of a run.
type Summary struct {
	Defenders     int           `json:"defenders" yaml:"defenders"`
	Attackers     int           `json:"attackers" yaml:"attackers"`
	Events        uint64        `json:"events" yaml:"events"`
	SimulatedTime time.Duration `json:"simulated_time" yaml:"simulated_time"`

	PacketsSent      int     `json:"packets_sent" yaml:"packets_sent"`
	PacketsDelivered int     `json:"packets_delivered" yaml:"packets_delivered"`
	NetworkPDR       float64 `json:"network_pdr" yaml:"network_pdr"`

	MeanDefenderPDR   float64 `json:"mean_defender_pdr" yaml:"mean_defender_pdr"`
	MedianDefenderPDR float64 `json:"median_defender_pdr" yaml:"median_defender_pdr"`
	StdDefenderPDR    float64 `json:"std_defender_pdr" yaml:"std_defender_pdr"`
	MeanLossRatio     float64 `json:"mean_loss_ratio" yaml:"mean_loss_ratio"`

	MeanDelay      time.Duration `json:"mean_delay" yaml:"mean_delay"`
	MeanJitter     time.Duration `json:"mean_jitter" yaml:"mean_jitter"`
	MeanThroughput float64       `json:"mean_throughput_bps" yaml:"mean_throughput_bps"`
	BytesReceived  int           `json:"bytes_received" yaml:"bytes_received"`

	TotalDetections    int                      `json:"total_detections" yaml:"total_detections"`
	PacketsBlocked     int                      `json:"packets_blocked" yaml:"packets_blocked"`
	DetectionsByReason map[detection.Reason]int `json:"detections_by_reason,omitempty" yaml:"detections_by_reason,omitempty"`
	EvasiveActions     int                      `json:"evasive_actions" yaml:"evasive_actions"`
	AttackPackets      int                      `json:"attack_packets" yaml:"attack_packets"`

	// Coverage lists, per attacker, how many defenders blacklisted it.
	Coverage []Coverage `json:"coverage,omitempty" yaml:"coverage,omitempty"`
	// DetectionRate is the share of (defender, attacker) pairs in which the
	// defender ended the run with the attacker blacklisted.
	DetectionRate float64 `json:"detection_rate" yaml:"detection_rate"`
	// FalseBlacklistings counts defenders blacklisted by other defenders.
	FalseBlacklistings int `json:"false_blacklistings" yaml:"false_blacklistings"`
	// ForgedBlacklistings counts blacklisted identities that belong to no
	// node, such as sybil identities.
	ForgedBlacklistings int `json:"forged_blacklistings" yaml:"forged_blacklistings"`
}

// Coverage is the detection outcome for one attacker.
type Coverage struct {
	Attacker   message.NodeID `json:"attacker" yaml:"attacker"`
	DetectedBy int            `json:"detected_by" yaml:"detected_by"`
	Percent    float64        `json:"percent" yaml:"percent"`
}

// New builds a report for res. Delivery records are only kept when
// includeRecords is set.
func New(res *simulation.Result, includeRecords bool) *Report {
	kept := *res
	if !includeRecords {
		kept.Records = nil
	}

	r := &Report{
		RunID:     uuid.New(),
		CreatedAt: time.Now().UTC(),
		Summary:   Summarize(res),
		Result:    &kept,
	}
	for _, n := range res.Nodes {
		if n.Malicious && n.AttackType != "" {
			r.AttackType = n.AttackType
			break
		}
	}
	return r
}

// Summarize computes the network-wide aggregates of res.
func Summarize(res *simulation.Result) Summary {
	s := Summary{
		Defenders:          res.Defenders,
		Attackers:          res.Attackers,
		Events:             res.Events,
		SimulatedTime:      res.Duration,
		PacketsSent:        res.Network.Sent,
		PacketsDelivered:   res.Network.Delivered,
		NetworkPDR:         res.Network.Percent,
		DetectionsByReason: make(map[detection.Reason]int),
	}

	defenderIDs := make(map[message.NodeID]bool)
	attackerIDs := make(map[message.NodeID]bool)
	var attackers []message.NodeID
	for _, n := range res.Nodes {
		if n.Malicious {
			attackers = append(attackers, n.ID)
			attackerIDs[n.ID] = true
		} else {
			defenderIDs[n.ID] = true
		}
	}

	var (
		pdrs, losses, throughputs []float64
		delays, delayWeights      []float64
		jitters, jitterWeights    []float64
	)
	detectedBy := make(map[message.NodeID]int)

	for _, n := range res.Nodes {
		s.AttackPackets += n.Traffic.AttackPacketsSent
		if n.Malicious {
			continue
		}

		if n.PersonalPDR.Sent > 0 {
			pdrs = append(pdrs, n.PersonalPDR.Percent)
			losses = append(losses, n.PacketLossRatio)
		}
		if n.Traffic.PacketsAccepted > 0 {
			delays = append(delays, n.AverageDelay.Seconds())
			delayWeights = append(delayWeights, float64(n.Traffic.PacketsAccepted))
		}
		if n.Traffic.JitterCount > 0 {
			jitters = append(jitters, n.AverageJitter.Seconds())
			jitterWeights = append(jitterWeights, float64(n.Traffic.JitterCount))
		}
		throughputs = append(throughputs, n.Throughput)

		s.BytesReceived += n.Traffic.TotalBytesReceived
		s.EvasiveActions += n.Traffic.EvasiveActions
		s.TotalDetections += n.Detection.TotalDetections
		s.PacketsBlocked += n.Detection.PacketsBlocked
		for reason, count := range n.Detection.ByReason {
			s.DetectionsByReason[reason] += count
		}

		for _, id := range n.Blacklisted {
			switch {
			case defenderIDs[id]:
				s.FalseBlacklistings++
			case attackerIDs[id]:
				detectedBy[id]++
			default:
				s.ForgedBlacklistings++
			}
		}
	}

	s.MeanDefenderPDR = mean(pdrs, nil)
	s.StdDefenderPDR = stdDev(pdrs)
	s.MedianDefenderPDR = median(pdrs)
	s.MeanLossRatio = mean(losses, nil)
	s.MeanDelay = seconds(mean(delays, delayWeights))
	s.MeanJitter = seconds(mean(jitters, jitterWeights))
	s.MeanThroughput = mean(throughputs, nil)

	defenders := len(defenderIDs)
	pairs := 0
	for _, id := range attackers {
		c := Coverage{Attacker: id, DetectedBy: detectedBy[id]}
		if defenders > 0 {
			c.Percent = float64(c.DetectedBy) / float64(defenders) * 100
		}
		pairs += c.DetectedBy
		s.Coverage = append(s.Coverage, c)
	}
	if defenders > 0 && len(attackers) > 0 {
		s.DetectionRate = float64(pairs) / float64(defenders*len(attackers)) * 100
	}
	if len(s.DetectionsByReason) == 0 {
		s.DetectionsByReason = nil
	}
	return s
}

func mean(x, weights []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, weights)
}

func stdDev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.StdDev(x, nil)
}

func median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

func seconds(s float64) time.Duration {
	if math.IsNaN(s) {
		return 0
	}
	return time.Duration(math.Round(s * float64(time.Second)))
}
