package message

import (
	"fmt"
	"math"
	"time"
)

// NodeID identifies a node (or a forged identity) on the broadcast medium.
type NodeID int

// PacketID is the process-wide unique identifier allocated at send time.
type PacketID int64

// Vec2 is a planar coordinate or velocity in meters (per second).
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Length returns the euclidean norm of v.
func (v Vec2) Length() float64 {
	return math.Hypot(v.X, v.Y)
}

// Finite reports whether both components are finite numbers.
func (v Vec2) Finite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) && !math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

// Dist returns the distance between v and o.
func (v Vec2) Dist(o Vec2) float64 {
	return v.Sub(o).Length()
}

// Frame is the application payload carried by every data message.
// Timestamp is the sender's declared send time (simulation time).
type Frame struct {
	PacketID   PacketID
	SenderID   NodeID
	Timestamp  time.Duration
	Position   Vec2
	Velocity   Vec2
	ByteLength int
}

// Kind tags the closed set of events a node can be handed.
type Kind int

const (
	KindBeacon Kind = iota
	KindAttack
	KindTimer
)

func (k Kind) String() string {
	switch k {
	case KindBeacon:
		return "beacon"
	case KindAttack:
		return "attack"
	case KindTimer:
		return "timer"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is the sum type over Beacon, AttackPayload and Timer. The interface is
// sealed; switch on the concrete type and use Kind for exhaustiveness checks.
type Event interface {
	Kind() Kind
	sealed()
}

// Beacon is a legitimate periodic status message.
type Beacon struct {
	Frame
}

// AttackPayload is traffic emitted by a malicious node. The Attack label is
// ground truth for reporting only; receivers never consult it.
type AttackPayload struct {
	Frame
	Attack string
}

// TimerKind identifies which self-scheduled timer fired.
type TimerKind int

const (
	TimerBeacon TimerKind = iota
	TimerAttack
	TimerEvasive
	TimerHousekeeping
	TimerPositionUpdate
)

func (t TimerKind) String() string {
	switch t {
	case TimerBeacon:
		return "beacon"
	case TimerAttack:
		return "attack"
	case TimerEvasive:
		return "evasive"
	case TimerHousekeeping:
		return "housekeeping"
	case TimerPositionUpdate:
		return "position_update"
	default:
		return fmt.Sprintf("timer(%d)", int(t))
	}
}

// Timer is a self-event previously scheduled by the node.
type Timer struct {
	Timer TimerKind
}

func (Beacon) Kind() Kind        { return KindBeacon }
func (AttackPayload) Kind() Kind { return KindAttack }
func (Timer) Kind() Kind         { return KindTimer }

func (Beacon) sealed()        {}
func (AttackPayload) sealed() {}
func (Timer) sealed()         {}

// FrameOf returns the data frame carried by ev, if any.
func FrameOf(ev Event) (Frame, bool) {
	switch e := ev.(type) {
	case Beacon:
		return e.Frame, true
	case AttackPayload:
		return e.Frame, true
	case Timer:
		return Frame{}, false
	default:
		return Frame{}, false
	}
}
