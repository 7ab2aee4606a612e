package node

import (
	"time"

	"github.com/vanetguard/vanetguard/internal/detection"
	"github.com/vanetguard/vanetguard/internal/message"
)

// TimerID identifies a scheduled self-event so it can be cancelled.
type TimerID uint64

// Scheduler delivers timer events back to the node in time order.
type Scheduler interface {
	Now() time.Duration
	Schedule(at time.Duration, ev message.Event) TimerID
	Cancel(id TimerID)
}

// Mobility is the node's view of its own vehicle.
type Mobility interface {
	Position() message.Vec2
	Velocity() message.Vec2
	// LimitSpeed caps the vehicle speed; a negative max removes the cap.
	LimitSpeed(max float64)
}

// Transmitter broadcasts a frame to every node in range.
type Transmitter interface {
	Send(ev message.Event)
}

// Recorder receives per-node events for metrics export. Implementations
// must be safe for concurrent use.
type Recorder interface {
	Sent(kind message.Kind, n int)
	Received(bytes int)
	Accepted(delay time.Duration)
	Detected(reason detection.Reason)
	EvasiveStarted()
}

type nopRecorder struct{}

func (nopRecorder) Sent(message.Kind, int)    {}
func (nopRecorder) Received(int)              {}
func (nopRecorder) Accepted(time.Duration)    {}
func (nopRecorder) Detected(detection.Reason) {}
func (nopRecorder) EvasiveStarted()           {}
