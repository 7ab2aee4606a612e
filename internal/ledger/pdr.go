package ledger

import "github.com/vanetguard/vanetguard/internal/message"

// RequiredReceivers is the receiver count at which a message counts as
// delivered: half of the other defenders, rounded down.
func RequiredReceivers(totalDefenders int) int {
	if totalDefenders < 1 {
		return 0
	}
	return (totalDefenders - 1) / 2
}

// Delivered reports whether r reached enough receivers.
func Delivered(r Record, totalDefenders int) bool {
	return len(r.Receivers) >= RequiredReceivers(totalDefenders)
}

// Ratio is a delivery ratio computation result.
type Ratio struct {
	Sent      int     `json:"sent" yaml:"sent"`
	Delivered int     `json:"delivered" yaml:"delivered"`
	Percent   float64 `json:"percent" yaml:"percent"`
}

// NetworkPDR computes the delivery ratio over every record.
func NetworkPDR(records []Record, totalDefenders int) Ratio {
	return ratio(records, totalDefenders, func(Record) bool { return true })
}

// PersonalPDR computes the delivery ratio over the records sent by node.
func PersonalPDR(records []Record, node message.NodeID, totalDefenders int) Ratio {
	return ratio(records, totalDefenders, func(r Record) bool { return r.Sender == node })
}

func ratio(records []Record, totalDefenders int, keep func(Record) bool) Ratio {
	var out Ratio
	for _, r := range records {
		if !keep(r) {
			continue
		}
		out.Sent++
		if Delivered(r, totalDefenders) {
			out.Delivered++
		}
	}
	if out.Sent > 0 {
		out.Percent = float64(out.Delivered) / float64(out.Sent) * 100
	}
	return out
}
