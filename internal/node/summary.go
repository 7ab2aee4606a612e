package node

import (
	"time"

	"github.com/vanetguard/vanetguard/internal/detection"
	"github.com/vanetguard/vanetguard/internal/ledger"
	"github.com/vanetguard/vanetguard/internal/message"
)

// Summary is the end-of-run report of one node.
type Summary struct {
	ID        message.NodeID `json:"id" yaml:"id"`
	Malicious bool           `json:"malicious" yaml:"malicious"`

	PersonalPDR     ledger.Ratio  `json:"personal_pdr" yaml:"personal_pdr"`
	PacketLossRatio float64       `json:"packet_loss_ratio" yaml:"packet_loss_ratio"`
	AverageDelay    time.Duration `json:"average_delay" yaml:"average_delay"`
	AverageJitter   time.Duration `json:"average_jitter" yaml:"average_jitter"`
	Throughput      float64       `json:"throughput_bps" yaml:"throughput_bps"`

	Traffic   TrafficStats         `json:"traffic" yaml:"traffic"`
	Detection detection.Statistics `json:"detection" yaml:"detection"`

	UniqueSenders int              `json:"unique_senders" yaml:"unique_senders"`
	Blacklisted   []message.NodeID `json:"blacklisted,omitempty" yaml:"blacklisted,omitempty"`

	AttackType      string `json:"attack_type,omitempty" yaml:"attack_type,omitempty"`
	AttacksExecuted int    `json:"attacks_executed,omitempty" yaml:"attacks_executed,omitempty"`
}

// Summarize builds the node's report from the ledger snapshot. It must be
// called after every node has shut down.
func (n *Node) Summarize(records []ledger.Record, totalDefenders int) Summary {
	pdr := ledger.PersonalPDR(records, n.id, totalDefenders)
	s := Summary{
		ID:            n.id,
		Malicious:     n.malicious,
		PersonalPDR:   pdr,
		AverageDelay:  n.stats.AverageDelay(),
		AverageJitter: n.stats.AverageJitter(),
		Throughput:    n.stats.LastThroughput(),
		Traffic:       n.Stats(),
		Detection:     n.detector.Stats(),
		UniqueSenders: n.detector.KnownSenders(),
		Blacklisted:   n.detector.Blacklisted(),
	}
	// loss is measured against every packet the node sent, attacks included
	if pdr.Sent > 0 && n.stats.PacketsSent > 0 {
		s.PacketLossRatio = float64(pdr.Sent-pdr.Delivered) / float64(n.stats.PacketsSent) * 100
	}
	if n.attacker != nil {
		s.AttackType = string(n.attacker.Kind())
		s.AttacksExecuted = n.attacker.Rounds()
	}
	return s
}
