package simulation

import (
	"math"
	"time"

	"github.com/vanetguard/vanetguard/internal/message"
)

// vehicle moves along X on a ring road at constant speed. Position is
// advanced lazily from the last speed change.
type vehicle struct {
	clock func() time.Duration

	roadLength float64
	lane       float64

	x0      float64
	t0      time.Duration
	desired float64
	limit   float64 // < 0 when uncapped
}

func newVehicle(clock func() time.Duration, roadLength, x, lane, speed float64) *vehicle {
	return &vehicle{
		clock:      clock,
		roadLength: roadLength,
		lane:       lane,
		x0:         x,
		t0:         clock(),
		desired:    speed,
		limit:      -1,
	}
}

func (v *vehicle) speed() float64 {
	if v.limit >= 0 && v.desired > v.limit {
		return v.limit
	}
	return v.desired
}

func (v *vehicle) x(now time.Duration) float64 {
	x := v.x0 + v.speed()*(now-v.t0).Seconds()
	x = math.Mod(x, v.roadLength)
	if x < 0 {
		x += v.roadLength
	}
	return x
}

func (v *vehicle) Position() message.Vec2 {
	return message.Vec2{X: v.x(v.clock()), Y: v.lane}
}

func (v *vehicle) Velocity() message.Vec2 {
	return message.Vec2{X: v.speed()}
}

func (v *vehicle) LimitSpeed(max float64) {
	now := v.clock()
	v.x0 = v.x(now)
	v.t0 = now
	v.limit = max
}

// ringDistance is the distance between two points on the ring road.
func ringDistance(a, b message.Vec2, roadLength float64) float64 {
	dx := math.Abs(a.X - b.X)
	if roadLength > 0 && dx > roadLength/2 {
		dx = roadLength - dx
	}
	return math.Hypot(dx, a.Y-b.Y)
}
