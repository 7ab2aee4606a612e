package simulation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vanetguard/vanetguard/internal/attack"
	"github.com/vanetguard/vanetguard/internal/detection"
	"github.com/vanetguard/vanetguard/internal/message"
	"github.com/vanetguard/vanetguard/internal/node"
	"go.uber.org/zap/zaptest"
)

func testOptions(t *testing.T, defenders, attackers int, duration time.Duration) Options {
	t.Helper()
	sim := DefaultConfig()
	sim.Defenders = defenders
	sim.Attackers = attackers
	sim.Duration = duration
	sim.RadioRange = 1500
	return Options{
		Simulation: sim,
		Node:       node.DefaultConfig(),
		Detection:  detection.DefaultConfig(),
		Attack:     attack.DefaultConfig(),
		Logger:     zaptest.NewLogger(t),
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "zero duration", mutate: func(c *Config) { c.Duration = 0 }},
		{name: "empty population", mutate: func(c *Config) { c.Defenders, c.Attackers = 0, 0 }},
		{name: "negative attackers", mutate: func(c *Config) { c.Attackers = -1 }},
		{name: "no road", mutate: func(c *Config) { c.RoadLength = 0 }},
		{name: "inverted speeds", mutate: func(c *Config) { c.MinSpeed, c.MaxSpeed = 20, 10 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := testOptions(t, 4, 1, time.Second)
			tt.mutate(&opts.Simulation)
			_, err := New(opts)
			assert.Error(t, err)
		})
	}
}

func TestEventQueue_Order(t *testing.T) {
	t.Parallel()

	s := &Simulator{timers: map[node.TimerID]*event{}}
	s.push(&event{at: 2 * time.Second, target: 1})
	s.push(&event{at: time.Second, target: 2})
	s.push(&event{at: 2 * time.Second, target: 3})
	s.push(&event{at: time.Second, target: 4})

	var got []message.NodeID
	for s.queue.Len() > 0 {
		got = append(got, s.queue.pop().target)
	}
	assert.Equal(t, []message.NodeID{2, 4, 1, 3}, got)
}

func TestVehicle(t *testing.T) {
	t.Parallel()

	var now time.Duration
	v := newVehicle(func() time.Duration { return now }, 1000, 900, 3.5, 20)

	now = 2 * time.Second
	assert.InDelta(t, 940, v.Position().X, 1e-9)
	assert.Equal(t, 3.5, v.Position().Y)

	now = 6 * time.Second
	assert.InDelta(t, 20, v.Position().X, 1e-9, "wraps around the ring")

	v.LimitSpeed(5)
	assert.Equal(t, 5.0, v.Velocity().Length())
	now = 8 * time.Second
	assert.InDelta(t, 30, v.Position().X, 1e-9)

	v.LimitSpeed(-1)
	assert.Equal(t, 20.0, v.Velocity().X)
	now = 9 * time.Second
	assert.InDelta(t, 50, v.Position().X, 1e-9)
}

func TestRingDistance(t *testing.T) {
	t.Parallel()

	a := message.Vec2{X: 10}
	b := message.Vec2{X: 990}
	assert.InDelta(t, 20, ringDistance(a, b, 1000), 1e-9)
	assert.InDelta(t, 5, ringDistance(message.Vec2{X: 100}, message.Vec2{X: 103, Y: 4}, 1000), 1e-9)
}

func TestSimulator_CleanNetwork(t *testing.T) {
	t.Parallel()

	sim, err := New(testOptions(t, 4, 0, 10100*time.Millisecond))
	require.NoError(t, err)

	res, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10100*time.Millisecond, res.Duration)
	assert.Equal(t, 37, res.Network.Sent)
	assert.Equal(t, 100.0, res.Network.Percent)
	for _, rec := range res.Records {
		assert.Len(t, rec.Receivers, 3, "packet %d", rec.PacketID)
	}

	require.Len(t, res.Nodes, 4)
	for _, s := range res.Nodes {
		assert.Equal(t, 0, s.Detection.TotalDetections, "node %d", s.ID)
		assert.Empty(t, s.Blacklisted)
		assert.Equal(t, 100.0, s.PersonalPDR.Percent)
		assert.Equal(t, 3, s.UniqueSenders)
	}

	assert.Empty(t, sim.timers, "every timer was cancelled at shutdown")
	for _, n := range sim.Nodes() {
		assert.Equal(t, 0, n.PendingTimers())
	}
}

func TestSimulator_FloodAttacker(t *testing.T) {
	t.Parallel()

	sim, err := New(testOptions(t, 4, 1, 10*time.Second))
	require.NoError(t, err)

	res, err := sim.Run(context.Background())
	require.NoError(t, err)

	const attackerID = message.NodeID(4)
	for _, s := range res.Nodes[:4] {
		assert.False(t, s.Malicious)
		assert.Contains(t, s.Blacklisted, attackerID, "node %d", s.ID)
		assert.NotContains(t, s.Blacklisted, message.NodeID(0))
		assert.Positive(t, s.Detection.TotalDetections)
		assert.Positive(t, s.Traffic.EvasiveActions)
	}

	atk := res.Nodes[4]
	assert.True(t, atk.Malicious)
	assert.Equal(t, "flood", atk.AttackType)
	assert.Equal(t, 4, atk.AttacksExecuted)
	assert.Equal(t, 800, atk.Traffic.AttackPacketsSent)
	assert.Equal(t, 0, atk.Detection.TotalDetections)

	for _, rec := range res.Records {
		assert.NotEqual(t, message.PacketID(0), rec.PacketID)
	}
	assert.Equal(t, uint64(0), sim.Ledger().LazyCreates())
}

func TestSimulator_Cancelled(t *testing.T) {
	t.Parallel()

	sim, err := New(testOptions(t, 4, 1, time.Minute))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = sim.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	for _, n := range sim.Nodes() {
		assert.Equal(t, 0, n.PendingTimers())
	}
}
