// Package attack generates the traffic emitted by malicious nodes.
package attack

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/vanetguard/vanetguard/internal/message"
	"go.uber.org/zap"
)

// Kind names an attack behavior.
type Kind string

const (
	KindFlood               Kind = "flood"
	KindSpoof               Kind = "spoof"
	KindReplay              Kind = "replay"
	KindSybil               Kind = "sybil"
	KindTiming              Kind = "timing"
	KindHelloFlood          Kind = "hello_flood"
	KindDataManipulation    Kind = "data_manipulation"
	KindSelectiveForwarding Kind = "selective_forwarding"
	KindUnknown             Kind = "unknown"
)

// Kinds lists every recognized attack kind except KindUnknown.
var Kinds = []Kind{
	KindFlood,
	KindSpoof,
	KindReplay,
	KindSybil,
	KindTiming,
	KindHelloFlood,
	KindDataManipulation,
	KindSelectiveForwarding,
}

// ParseKind maps a configured attack name to a Kind. Names that are not
// recognized map to KindUnknown.
func ParseKind(s string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k
		}
	}
	return KindUnknown
}

// SybilIdentity returns the i-th identity forged by node. Forged identities
// never collide with real node ids.
func SybilIdentity(node message.NodeID, i int) message.NodeID {
	return sybilBase + node*1000 + message.NodeID(i)
}

const sybilBase message.NodeID = 1_000_000

// Payload sizes in bytes.
const (
	BeaconBytes  = 125
	UnknownBytes = 200
)

// Config controls attack generation.
type Config struct {
	Type     string        `mapstructure:"type" yaml:"type"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// FloodCount is the number of frames per flood or hello_flood round.
	FloodCount int `mapstructure:"flood_count" yaml:"flood_count"`
	// SybilIdentities is the number of forged identities per sybil round.
	SybilIdentities int `mapstructure:"sybil_identities" yaml:"sybil_identities"`
	// ReplayAge is how far in the past replayed frames claim to be from.
	ReplayAge time.Duration `mapstructure:"replay_age" yaml:"replay_age"`
	// TimingSkew is how far in the future timing attack frames claim to be from.
	TimingSkew time.Duration `mapstructure:"timing_skew" yaml:"timing_skew"`
	// ManipulationProbability is the chance each field of a data_manipulation
	// frame is corrupted.
	ManipulationProbability float64 `mapstructure:"manipulation_probability" yaml:"manipulation_probability"`
	// DropRate is the fraction of its own beacons a selective_forwarding node
	// suppresses.
	DropRate float64 `mapstructure:"drop_rate" yaml:"drop_rate"`
	Seed     int64   `mapstructure:"seed" yaml:"seed"`
}

// DefaultConfig returns the attack configuration used when nothing else is
// specified.
func DefaultConfig() Config {
	return Config{
		Type:                    string(KindFlood),
		Interval:                2 * time.Second,
		FloodCount:              200,
		SybilIdentities:         5,
		ReplayAge:               10 * time.Second,
		TimingSkew:              10 * time.Second,
		ManipulationProbability: 0.5,
		DropRate:                0.7,
		Seed:                    1,
	}
}

// IDAllocator hands out packet ids.
type IDAllocator interface {
	Allocate() message.PacketID
}

// Origin is the attacker's own state at the time of an attack round.
type Origin struct {
	ID       message.NodeID
	Now      time.Duration
	Position message.Vec2
	Velocity message.Vec2
}

// Generator produces attack rounds for one malicious node. It is owned by
// that node and is not safe for concurrent use.
type Generator struct {
	logger *zap.Logger
	kind   Kind
	config Config
	ids    IDAllocator
	rng    *rand.Rand

	rounds  int
	packets int
}

// NewGenerator creates a generator. Zero numeric fields in cfg take defaults.
func NewGenerator(logger *zap.Logger, cfg Config, ids IDAllocator) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.FloodCount <= 0 {
		cfg.FloodCount = def.FloodCount
	}
	if cfg.SybilIdentities <= 0 {
		cfg.SybilIdentities = def.SybilIdentities
	}
	if cfg.ReplayAge <= 0 {
		cfg.ReplayAge = def.ReplayAge
	}
	if cfg.TimingSkew <= 0 {
		cfg.TimingSkew = def.TimingSkew
	}
	if cfg.ManipulationProbability <= 0 || cfg.ManipulationProbability > 1 {
		cfg.ManipulationProbability = def.ManipulationProbability
	}
	if cfg.DropRate <= 0 || cfg.DropRate > 1 {
		cfg.DropRate = def.DropRate
	}

	kind := ParseKind(cfg.Type)
	if kind == KindUnknown {
		logger.Warn("Unrecognized attack type, using unknown-attack payload",
			zap.String("type", cfg.Type))
	}

	return &Generator{
		logger: logger,
		kind:   kind,
		config: cfg,
		ids:    ids,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Kind returns the attack kind this generator emits.
func (g *Generator) Kind() Kind {
	return g.kind
}

// Interval returns the time between attack rounds.
func (g *Generator) Interval() time.Duration {
	return g.config.Interval
}

// Rounds returns the number of attack rounds executed.
func (g *Generator) Rounds() int {
	return g.rounds
}

// Packets returns the number of attack frames emitted.
func (g *Generator) Packets() int {
	return g.packets
}

// SuppressBeacon reports whether the node should silently drop its next
// legitimate beacon. Only selective_forwarding nodes drop.
func (g *Generator) SuppressBeacon() bool {
	if g.kind != KindSelectiveForwarding {
		return false
	}
	return g.rng.Float64() < g.config.DropRate
}

// Round executes one attack round and returns the frames to broadcast. Attack
// frames get packet ids but no delivery records.
func (g *Generator) Round(o Origin) []message.AttackPayload {
	g.rounds++

	var out []message.AttackPayload
	switch g.kind {
	case KindFlood:
		out = make([]message.AttackPayload, 0, g.config.FloodCount)
		for i := 0; i < g.config.FloodCount; i++ {
			f := g.frame(o, o.ID)
			f.Velocity = message.Vec2{X: 150 + float64(i)}
			out = append(out, g.payload(f))
		}

	case KindHelloFlood:
		out = make([]message.AttackPayload, 0, g.config.FloodCount)
		for i := 0; i < g.config.FloodCount; i++ {
			out = append(out, g.payload(g.frame(o, o.ID)))
		}

	case KindSpoof:
		f := g.frame(o, o.ID)
		f.Position = message.Vec2{X: 7000, Y: 7000}
		f.Velocity = message.Vec2{}
		out = append(out, g.payload(f))

	case KindReplay:
		f := g.frame(o, o.ID)
		f.Position = message.Vec2{X: o.Position.X - 500, Y: o.Position.Y - 500}
		f.Velocity = message.Vec2{X: 100}
		f.Timestamp = o.Now - g.config.ReplayAge
		if f.Timestamp < 0 {
			f.Timestamp = 0
		}
		out = append(out, g.payload(f))

	case KindSybil:
		for i := 1; i <= g.config.SybilIdentities; i++ {
			f := g.frame(o, SybilIdentity(o.ID, i))
			f.Position.Y += float64(i) * 3.5
			out = append(out, g.payload(f))
		}

	case KindTiming:
		f := g.frame(o, o.ID)
		f.Timestamp = o.Now + g.config.TimingSkew
		out = append(out, g.payload(f))

	case KindDataManipulation:
		out = append(out, g.payload(g.manipulate(g.frame(o, o.ID))))

	case KindSelectiveForwarding:
		// emits nothing; the attack is in SuppressBeacon

	default:
		f := g.frame(o, o.ID)
		f.ByteLength = UnknownBytes
		out = append(out, g.payload(f))
	}

	g.packets += len(out)
	if len(out) > 0 {
		g.logger.Debug("Attack round",
			zap.String("attack", string(g.kind)),
			zap.Int("node", int(o.ID)),
			zap.Int("round", g.rounds),
			zap.Int("frames", len(out)),
			zap.Int("total_frames", g.packets),
			zap.Duration("at", o.Now),
		)
	}
	return out
}

func (g *Generator) frame(o Origin, sender message.NodeID) message.Frame {
	return message.Frame{
		PacketID:   g.ids.Allocate(),
		SenderID:   sender,
		Timestamp:  o.Now,
		Position:   o.Position,
		Velocity:   o.Velocity,
		ByteLength: BeaconBytes,
	}
}

func (g *Generator) payload(f message.Frame) message.AttackPayload {
	return message.AttackPayload{Frame: f, Attack: string(g.kind)}
}

// manipulate corrupts each field of f independently.
func (g *Generator) manipulate(f message.Frame) message.Frame {
	p := g.config.ManipulationProbability
	if g.rng.Float64() < p {
		f.Position.X = math.NaN()
	}
	if g.rng.Float64() < p {
		f.Velocity = message.Vec2{X: f.Velocity.X * 10, Y: f.Velocity.Y * 10}
		if f.Velocity.Length() <= 50 {
			f.Velocity.X += 100
		}
	}
	if g.rng.Float64() < p {
		f.Position.Y = math.Inf(1)
	}
	return f
}
