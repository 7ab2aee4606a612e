package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/vanetguard/vanetguard/internal/detection"
)

// Render writes a human readable summary of r to w.
func (r *Report) Render(w io.Writer) error {
	s := r.Summary
	p := &printer{w: w}

	p.printf("Run %s - %s\n\n", r.RunID, r.CreatedAt.Format("2006-01-02 15:04:05"))

	p.printf("Overview:\n")
	p.printf("  Attack type        : %s\n", orNone(r.AttackType))
	p.printf("  Nodes              : %d defenders, %d attackers\n", s.Defenders, s.Attackers)
	p.printf("  Simulated time     : %s\n", s.SimulatedTime)
	p.printf("  Events             : %s\n", humanize.Comma(int64(s.Events)))

	p.printf("\nDelivery:\n")
	p.printf("  Packets sent       : %s\n", humanize.Comma(int64(s.PacketsSent)))
	p.printf("  Packets delivered  : %s\n", humanize.Comma(int64(s.PacketsDelivered)))
	p.printf("  Network PDR        : %s%%\n", humanize.FtoaWithDigits(s.NetworkPDR, 2))
	p.printf("  Defender PDR       : mean %s%%, median %s%%, std %s\n",
		humanize.FtoaWithDigits(s.MeanDefenderPDR, 2),
		humanize.FtoaWithDigits(s.MedianDefenderPDR, 2),
		humanize.FtoaWithDigits(s.StdDefenderPDR, 2),
	)
	p.printf("  Mean loss ratio    : %s%%\n", humanize.FtoaWithDigits(s.MeanLossRatio, 2))
	p.printf("  Mean delay         : %s\n", s.MeanDelay)
	p.printf("  Mean jitter        : %s\n", s.MeanJitter)
	p.printf("  Mean throughput    : %s\n", humanize.SIWithDigits(s.MeanThroughput, 2, "bit/s"))
	p.printf("  Bytes received     : %s\n", humanize.Bytes(uint64(s.BytesReceived)))

	p.printf("\nDetection:\n")
	p.printf("  Attack packets     : %s\n", humanize.Comma(int64(s.AttackPackets)))
	p.printf("  Detections         : %s\n", humanize.Comma(int64(s.TotalDetections)))
	p.printf("  Packets blocked    : %s\n", humanize.Comma(int64(s.PacketsBlocked)))
	p.printf("  Evasive actions    : %d\n", s.EvasiveActions)
	p.printf("  Detection rate     : %s%%\n", humanize.FtoaWithDigits(s.DetectionRate, 2))
	p.printf("  False blacklisting : %d\n", s.FalseBlacklistings)
	p.printf("  Forged identities  : %d\n", s.ForgedBlacklistings)

	if len(s.DetectionsByReason) > 0 {
		p.printf("\nBy reason:\n")
		reasons := make([]detection.Reason, 0, len(s.DetectionsByReason))
		for reason := range s.DetectionsByReason {
			reasons = append(reasons, reason)
		}
		sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
		for _, reason := range reasons {
			p.printf("  - %-18s %s\n", reason, humanize.Comma(int64(s.DetectionsByReason[reason])))
		}
	}

	if len(s.Coverage) > 0 {
		p.printf("\nAttackers:\n")
		for _, c := range s.Coverage {
			p.printf("  - node %-6d blacklisted by %d/%d defenders (%s%%)\n",
				c.Attacker, c.DetectedBy, s.Defenders, humanize.FtoaWithDigits(c.Percent, 1))
		}
	}
	return p.err
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
