package detection

import (
	"time"

	"github.com/vanetguard/vanetguard/internal/message"
)

// ContentValidator rejects frames whose fields are physically or temporally
// impossible.
type ContentValidator struct {
	MaxReasonableSpeed float64
	MaxMessageAge      time.Duration
}

// Validate returns ReasonNone for a plausible frame, otherwise the first
// failing check.
func (v ContentValidator) Validate(f message.Frame, now time.Duration) Reason {
	switch {
	case !f.Position.Finite():
		return ReasonInvalidPosition
	case !f.Velocity.Finite() || f.Velocity.Length() > v.MaxReasonableSpeed:
		return ReasonImpossibleSpeed
	case f.Timestamp > now:
		return ReasonFutureTimestamp
	case now-f.Timestamp > v.MaxMessageAge:
		return ReasonStaleMessage
	default:
		return ReasonNone
	}
}
