// Package simulation runs a population of nodes on a ring road under a
// discrete-event scheduler with a broadcast radio.
package simulation

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/vanetguard/vanetguard/internal/attack"
	"github.com/vanetguard/vanetguard/internal/detection"
	"github.com/vanetguard/vanetguard/internal/ledger"
	"github.com/vanetguard/vanetguard/internal/message"
	"github.com/vanetguard/vanetguard/internal/node"
	"go.uber.org/zap"
)

// Config describes the simulated world.
type Config struct {
	Duration         time.Duration `mapstructure:"duration" yaml:"duration"`
	Defenders        int           `mapstructure:"defenders" yaml:"defenders"`
	Attackers        int           `mapstructure:"attackers" yaml:"attackers"`
	RoadLength       float64       `mapstructure:"road_length" yaml:"road_length"`
	Lanes            int           `mapstructure:"lanes" yaml:"lanes"`
	LaneWidth        float64       `mapstructure:"lane_width" yaml:"lane_width"`
	MinSpeed         float64       `mapstructure:"min_speed" yaml:"min_speed"`
	MaxSpeed         float64       `mapstructure:"max_speed" yaml:"max_speed"`
	RadioRange       float64       `mapstructure:"radio_range" yaml:"radio_range"`
	PropagationDelay time.Duration `mapstructure:"propagation_delay" yaml:"propagation_delay"`
	// Node start times are spread uniformly over StartStagger.
	StartStagger time.Duration `mapstructure:"start_stagger" yaml:"start_stagger"`
	Seed         int64         `mapstructure:"seed" yaml:"seed"`
}

// DefaultConfig returns the world used when nothing else is specified.
func DefaultConfig() Config {
	return Config{
		Duration:         60 * time.Second,
		Defenders:        16,
		Attackers:        8,
		RoadLength:       2000,
		Lanes:            3,
		LaneWidth:        3.5,
		MinSpeed:         10,
		MaxSpeed:         20,
		RadioRange:       500,
		PropagationDelay: 2 * time.Millisecond,
		StartStagger:     time.Second,
		Seed:             1,
	}
}

// Options wires a simulator.
type Options struct {
	Simulation Config
	Node       node.Config
	Detection  detection.Config
	Attack     attack.Config

	Logger   *zap.Logger
	Recorder node.Recorder
}

// Result is everything a finished run produced.
type Result struct {
	Config    Config          `json:"config" yaml:"config"`
	Duration  time.Duration   `json:"duration" yaml:"duration"`
	Events    uint64          `json:"events" yaml:"events"`
	Nodes     []node.Summary  `json:"nodes" yaml:"nodes"`
	Records   []ledger.Record `json:"records,omitempty" yaml:"records,omitempty"`
	Network   ledger.Ratio    `json:"network_pdr" yaml:"network_pdr"`
	Defenders int             `json:"defenders" yaml:"defenders"`
	Attackers int             `json:"attackers" yaml:"attackers"`
}

// Simulator owns the event queue and every node. It is single threaded.
type Simulator struct {
	logger *zap.Logger
	config Config

	ledger   *ledger.Ledger
	nodes    []*node.Node
	vehicles []*vehicle

	queue     eventQueue
	now       time.Duration
	seq       uint64
	nextTimer node.TimerID
	timers    map[node.TimerID]*event
	processed uint64
}

// New builds the population described by opts.
func New(opts Options) (*Simulator, error) {
	cfg := opts.Simulation
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("simulation duration must be positive, got %s", cfg.Duration)
	}
	if cfg.Defenders < 0 || cfg.Attackers < 0 || cfg.Defenders+cfg.Attackers == 0 {
		return nil, fmt.Errorf("invalid population: %d defenders, %d attackers", cfg.Defenders, cfg.Attackers)
	}
	if cfg.RoadLength <= 0 || cfg.RadioRange <= 0 {
		return nil, fmt.Errorf("road length and radio range must be positive")
	}
	if cfg.MinSpeed < 0 || cfg.MaxSpeed < cfg.MinSpeed {
		return nil, fmt.Errorf("invalid speed range [%g, %g]", cfg.MinSpeed, cfg.MaxSpeed)
	}
	if cfg.Lanes <= 0 {
		cfg.Lanes = 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Simulator{
		logger: logger.Named("simulation"),
		config: cfg,
		ledger: ledger.New(logger.Named("ledger"), 0),
		timers: make(map[node.TimerID]*event),
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	total := cfg.Defenders + cfg.Attackers
	for i := 0; i < total; i++ {
		id := message.NodeID(i)
		x := cfg.RoadLength * float64(i) / float64(total)
		lane := float64(i%cfg.Lanes) * cfg.LaneWidth
		speed := cfg.MinSpeed + rng.Float64()*(cfg.MaxSpeed-cfg.MinSpeed)
		v := newVehicle(s.clock, cfg.RoadLength, x, lane, speed)
		s.vehicles = append(s.vehicles, v)

		s.nodes = append(s.nodes, node.New(node.Params{
			ID:          id,
			Malicious:   i >= cfg.Defenders,
			Config:      opts.Node,
			Detection:   opts.Detection,
			Attack:      opts.Attack,
			Logger:      logger.Named("node"),
			Scheduler:   &nodeScheduler{sim: s, id: id},
			Mobility:    v,
			Transmitter: &radio{sim: s, id: id},
			Ledger:      s.ledger,
			Recorder:    opts.Recorder,
		}))
	}
	return s, nil
}

func (s *Simulator) clock() time.Duration {
	return s.now
}

// Ledger returns the shared delivery ledger.
func (s *Simulator) Ledger() *ledger.Ledger {
	return s.ledger
}

// Nodes returns the simulated nodes ordered by id.
func (s *Simulator) Nodes() []*node.Node {
	return s.nodes
}

// Run executes the simulation until the configured duration or until ctx is
// cancelled. Every node is shut down before the ledger is read.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	if err := s.run(ctx); err != nil {
		return nil, err
	}

	records := s.ledger.Snapshot()
	res := &Result{
		Config:    s.config,
		Duration:  s.now,
		Events:    s.processed,
		Records:   records,
		Network:   ledger.NetworkPDR(records, s.config.Defenders),
		Defenders: s.config.Defenders,
		Attackers: s.config.Attackers,
	}
	for _, n := range s.nodes {
		res.Nodes = append(res.Nodes, n.Summarize(records, s.config.Defenders))
	}

	s.logger.Info("Simulation finished",
		zap.Duration("sim_time", s.now),
		zap.Duration("wall_time", time.Since(start)),
		zap.Uint64("events", s.processed),
		zap.Int("records", len(records)),
		zap.Float64("network_pdr", res.Network.Percent),
	)
	return res, nil
}

func (s *Simulator) run(ctx context.Context) error {
	for _, n := range s.nodes {
		defer n.OnShutdown()
	}

	total := len(s.nodes)
	for i := range s.nodes {
		at := time.Duration(0)
		if total > 1 {
			at = s.config.StartStagger * time.Duration(i) / time.Duration(total)
		}
		s.push(&event{at: at, target: message.NodeID(i), init: true})
	}

	s.logger.Info("Simulation started",
		zap.Int("defenders", s.config.Defenders),
		zap.Int("attackers", s.config.Attackers),
		zap.Duration("duration", s.config.Duration),
	)

	for {
		next := s.queue.peek()
		if next == nil || next.at > s.config.Duration {
			s.now = s.config.Duration
			return nil
		}
		if s.processed%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("simulation interrupted at %s: %w", s.now, err)
			}
		}

		e := s.queue.pop()
		if e.timer != 0 {
			delete(s.timers, e.timer)
		}
		if e.cancelled {
			continue
		}
		s.now = e.at
		s.processed++

		n := s.nodes[e.target]
		if e.init {
			n.OnInit()
			continue
		}
		n.OnMessage(e.ev)
	}
}

func (s *Simulator) push(e *event) {
	s.seq++
	e.seq = s.seq
	s.queue.push(e)
}

// broadcast delivers ev to every other node within radio range of from.
func (s *Simulator) broadcast(from message.NodeID, ev message.Event) {
	origin := s.vehicles[from].Position()
	for i, v := range s.vehicles {
		if message.NodeID(i) == from {
			continue
		}
		if ringDistance(origin, v.Position(), s.config.RoadLength) > s.config.RadioRange {
			continue
		}
		s.push(&event{
			at:     s.now + s.config.PropagationDelay,
			target: message.NodeID(i),
			ev:     ev,
		})
	}
}

type nodeScheduler struct {
	sim *Simulator
	id  message.NodeID
}

func (ns *nodeScheduler) Now() time.Duration {
	return ns.sim.now
}

func (ns *nodeScheduler) Schedule(at time.Duration, ev message.Event) node.TimerID {
	s := ns.sim
	s.nextTimer++
	e := &event{at: at, target: ns.id, ev: ev, timer: s.nextTimer}
	s.timers[e.timer] = e
	s.push(e)
	return e.timer
}

func (ns *nodeScheduler) Cancel(id node.TimerID) {
	if e, ok := ns.sim.timers[id]; ok {
		e.cancelled = true
		delete(ns.sim.timers, id)
	}
}

type radio struct {
	sim *Simulator
	id  message.NodeID
}

func (r *radio) Send(ev message.Event) {
	r.sim.broadcast(r.id, ev)
}
