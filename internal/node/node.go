// Package node implements the lifecycle of one simulated vehicle: beaconing,
// attack generation for malicious nodes, misbehavior detection with evasive
// action for benign ones, and traffic accounting.
//
// A Node is driven by a single scheduler that never invokes it concurrently,
// so none of its state is locked. The delivery ledger it writes to is shared.
package node

import (
	"time"

	"github.com/vanetguard/vanetguard/internal/attack"
	"github.com/vanetguard/vanetguard/internal/detection"
	"github.com/vanetguard/vanetguard/internal/ledger"
	"github.com/vanetguard/vanetguard/internal/message"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds the per-node timing knobs.
type Config struct {
	BeaconInterval         time.Duration `mapstructure:"beacon_interval" yaml:"beacon_interval"`
	HousekeepingInterval   time.Duration `mapstructure:"housekeeping_interval" yaml:"housekeeping_interval"`
	PositionUpdateInterval time.Duration `mapstructure:"position_update_interval" yaml:"position_update_interval"`
	EvasiveDuration        time.Duration `mapstructure:"evasive_duration" yaml:"evasive_duration"`
	EvasiveSpeedLimit      float64       `mapstructure:"evasive_speed_limit" yaml:"evasive_speed_limit"`

	// Every ReceptionLogEvery-th accepted frame is logged, at most
	// ReceptionLogRate lines per simulated second.
	ReceptionLogEvery int     `mapstructure:"reception_log_every" yaml:"reception_log_every"`
	ReceptionLogRate  float64 `mapstructure:"reception_log_rate" yaml:"reception_log_rate"`
	ReceptionLogBurst int     `mapstructure:"reception_log_burst" yaml:"reception_log_burst"`
}

// DefaultConfig returns the node configuration used when nothing else is
// specified.
func DefaultConfig() Config {
	return Config{
		BeaconInterval:         time.Second,
		HousekeepingInterval:   time.Second,
		PositionUpdateInterval: 100 * time.Millisecond,
		EvasiveDuration:        5 * time.Second,
		EvasiveSpeedLimit:      5,
		ReceptionLogEvery:      20,
		ReceptionLogRate:       1,
		ReceptionLogBurst:      5,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BeaconInterval <= 0 {
		c.BeaconInterval = def.BeaconInterval
	}
	if c.HousekeepingInterval <= 0 {
		c.HousekeepingInterval = def.HousekeepingInterval
	}
	if c.PositionUpdateInterval <= 0 {
		c.PositionUpdateInterval = def.PositionUpdateInterval
	}
	if c.EvasiveDuration <= 0 {
		c.EvasiveDuration = def.EvasiveDuration
	}
	if c.EvasiveSpeedLimit <= 0 {
		c.EvasiveSpeedLimit = def.EvasiveSpeedLimit
	}
	if c.ReceptionLogEvery <= 0 {
		c.ReceptionLogEvery = def.ReceptionLogEvery
	}
	if c.ReceptionLogRate <= 0 {
		c.ReceptionLogRate = def.ReceptionLogRate
	}
	if c.ReceptionLogBurst <= 0 {
		c.ReceptionLogBurst = def.ReceptionLogBurst
	}
	return c
}

// Params wires a node to its environment.
type Params struct {
	ID        message.NodeID
	Malicious bool
	Config    Config
	Detection detection.Config
	Attack    attack.Config

	Logger      *zap.Logger
	Scheduler   Scheduler
	Mobility    Mobility
	Transmitter Transmitter
	Ledger      ledger.Store
	Recorder    Recorder
}

// receptionEpoch anchors simulation time on the wall clock for the log
// limiter.
var receptionEpoch = time.Unix(0, 0)

// Node is one simulated vehicle.
type Node struct {
	id        message.NodeID
	malicious bool
	logger    *zap.Logger
	config    Config

	sched  Scheduler
	mob    Mobility
	tx     Transmitter
	ledger ledger.Store
	rec    Recorder

	detector *detection.Detector
	attacker *attack.Generator

	// one outstanding timer per kind
	timers map[message.TimerKind]TimerID

	underAttack      bool
	attackDetectedAt time.Duration

	stats      TrafficStats
	logLimiter *rate.Limiter

	started bool
	stopped bool
}

// New creates a node. Malicious nodes run with detection disabled.
func New(p Params) *Node {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.Int("node", int(p.ID)))

	rec := p.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}

	cfg := p.Config.withDefaults()

	detCfg := p.Detection
	if p.Malicious {
		detCfg.DetectionEnabled = false
	}

	n := &Node{
		id:         p.ID,
		malicious:  p.Malicious,
		logger:     logger,
		config:     cfg,
		sched:      p.Scheduler,
		mob:        p.Mobility,
		tx:         p.Transmitter,
		ledger:     p.Ledger,
		rec:        rec,
		detector:   detection.NewDetector(detCfg, logger.Named("detection")),
		timers:     make(map[message.TimerKind]TimerID),
		logLimiter: rate.NewLimiter(rate.Limit(cfg.ReceptionLogRate), cfg.ReceptionLogBurst),
	}
	if p.Malicious {
		atk := p.Attack
		atk.Seed += int64(p.ID)
		n.attacker = attack.NewGenerator(logger.Named("attack"), atk, p.Ledger)
	}
	return n
}

// ID returns the node identifier.
func (n *Node) ID() message.NodeID {
	return n.id
}

// Malicious reports whether the node generates attack traffic.
func (n *Node) Malicious() bool {
	return n.malicious
}

// UnderAttack reports whether evasive action is active.
func (n *Node) UnderAttack() bool {
	return n.underAttack
}

// Detector exposes the node's detector for inspection.
func (n *Node) Detector() *detection.Detector {
	return n.detector
}

// Stats returns a copy of the traffic counters.
func (n *Node) Stats() TrafficStats {
	out := n.stats
	out.Throughput = append([]float64(nil), n.stats.Throughput...)
	return out
}

// PendingTimers returns the number of outstanding timers.
func (n *Node) PendingTimers() int {
	return len(n.timers)
}

// OnInit starts the node's periodic timers.
func (n *Node) OnInit() {
	if n.started {
		return
	}
	n.started = true
	now := n.sched.Now()
	n.stats.windowStart = now

	n.schedule(message.TimerBeacon, now+n.config.BeaconInterval)
	n.schedule(message.TimerPositionUpdate, now+n.config.PositionUpdateInterval)

	if n.malicious {
		n.schedule(message.TimerAttack, now+n.attacker.Interval())
		n.logger.Info("Malicious node started",
			zap.String("attack", string(n.attacker.Kind())),
			zap.Duration("interval", n.attacker.Interval()),
		)
		return
	}

	n.schedule(message.TimerHousekeeping, now+n.config.HousekeepingInterval)
	n.logger.Debug("Node started",
		zap.Bool("detection", n.detector.Config().DetectionEnabled),
	)
}

// OnMessage handles one event delivered by the scheduler or the radio.
func (n *Node) OnMessage(ev message.Event) {
	if !n.started || n.stopped {
		return
	}
	switch e := ev.(type) {
	case message.Timer:
		n.onTimer(e.Timer)
	case message.Beacon:
		n.receive(e.Frame, true)
	case message.AttackPayload:
		n.receive(e.Frame, false)
	}
}

// OnShutdown cancels every outstanding timer. It is idempotent.
func (n *Node) OnShutdown() {
	if n.stopped {
		return
	}
	n.stopped = true
	for kind, id := range n.timers {
		n.sched.Cancel(id)
		delete(n.timers, kind)
	}
	if n.underAttack {
		n.underAttack = false
		n.mob.LimitSpeed(-1)
	}

	ds := n.detector.Stats()
	n.logger.Info("Node stopped",
		zap.Bool("malicious", n.malicious),
		zap.Int("packets_sent", n.stats.PacketsSent),
		zap.Int("packets_received", n.stats.PacketsReceived),
		zap.Int("packets_accepted", n.stats.PacketsAccepted),
		zap.Int("detections", ds.TotalDetections),
		zap.Int("packets_blocked", ds.PacketsBlocked),
	)
}

func (n *Node) schedule(kind message.TimerKind, at time.Duration) {
	if old, ok := n.timers[kind]; ok {
		n.sched.Cancel(old)
	}
	n.timers[kind] = n.sched.Schedule(at, message.Timer{Timer: kind})
}

func (n *Node) onTimer(kind message.TimerKind) {
	delete(n.timers, kind)
	now := n.sched.Now()

	switch kind {
	case message.TimerBeacon:
		n.sendBeacon(now)
		n.schedule(message.TimerBeacon, now+n.config.BeaconInterval)

	case message.TimerAttack:
		if n.attacker == nil {
			return
		}
		n.launchAttack(now)
		n.schedule(message.TimerAttack, now+n.attacker.Interval())

	case message.TimerEvasive:
		n.endEvasive(now)

	case message.TimerHousekeeping:
		n.detector.Sweep(now)
		n.schedule(message.TimerHousekeeping, now+n.config.HousekeepingInterval)

	case message.TimerPositionUpdate:
		n.stats.sampleThroughput(now)
		if n.underAttack && n.mob.Velocity().Length() > n.config.EvasiveSpeedLimit {
			n.mob.LimitSpeed(n.config.EvasiveSpeedLimit)
		}
		n.schedule(message.TimerPositionUpdate, now+n.config.PositionUpdateInterval)
	}
}

func (n *Node) sendBeacon(now time.Duration) {
	if n.attacker != nil && n.attacker.SuppressBeacon() {
		n.stats.SuppressedBeacons++
		return
	}

	id := n.ledger.Allocate()
	n.ledger.Create(id, n.id, now)

	n.tx.Send(message.Beacon{Frame: message.Frame{
		PacketID:   id,
		SenderID:   n.id,
		Timestamp:  now,
		Position:   n.mob.Position(),
		Velocity:   n.mob.Velocity(),
		ByteLength: attack.BeaconBytes,
	}})
	n.stats.PacketsSent++
	n.stats.NormalPacketsSent++
	n.rec.Sent(message.KindBeacon, 1)
}

func (n *Node) launchAttack(now time.Duration) {
	frames := n.attacker.Round(attack.Origin{
		ID:       n.id,
		Now:      now,
		Position: n.mob.Position(),
		Velocity: n.mob.Velocity(),
	})
	for _, f := range frames {
		n.tx.Send(f)
	}
	n.stats.PacketsSent += len(frames)
	n.stats.AttackPacketsSent += len(frames)
	if len(frames) > 0 {
		n.rec.Sent(message.KindAttack, len(frames))
	}
}

// receive runs detection on an arriving frame and accounts it if accepted.
// Only legitimate beacons are credited in the delivery ledger.
func (n *Node) receive(f message.Frame, legitimate bool) {
	now := n.sched.Now()
	n.stats.PacketsReceived++
	n.rec.Received(f.ByteLength)

	v := n.detector.Inspect(f, now)
	if !v.Accepted {
		if v.Blacklisted {
			n.stats.AttacksDetected++
		}
		n.rec.Detected(v.Reason)
		if v.Evasive {
			n.startEvasive(now, f.SenderID)
		}
		return
	}

	if legitimate {
		n.ledger.AddReceiver(f.PacketID, n.id, f.SenderID, f.Timestamp)
	}

	delay := now - f.Timestamp
	n.stats.observe(now, delay, f.ByteLength)
	n.rec.Accepted(delay)

	if n.stats.PacketsAccepted%n.config.ReceptionLogEvery == 0 &&
		n.logLimiter.AllowN(receptionEpoch.Add(now), 1) {
		n.logger.Debug("Received beacon",
			zap.Int("accepted", n.stats.PacketsAccepted),
			zap.Int("sender", int(f.SenderID)),
			zap.Int64("packet_id", int64(f.PacketID)),
			zap.Duration("delay", delay),
		)
	}
}

func (n *Node) startEvasive(now time.Duration, offender message.NodeID) {
	if n.underAttack {
		return
	}
	n.underAttack = true
	n.attackDetectedAt = now
	n.stats.EvasiveActions++
	n.schedule(message.TimerEvasive, now+n.config.EvasiveDuration)
	if n.mob.Velocity().Length() > n.config.EvasiveSpeedLimit {
		n.mob.LimitSpeed(n.config.EvasiveSpeedLimit)
	}
	n.rec.EvasiveStarted()

	n.logger.Info("Evasive action started",
		zap.Int("offender", int(offender)),
		zap.Duration("at", now),
		zap.Duration("duration", n.config.EvasiveDuration),
	)
}

func (n *Node) endEvasive(now time.Duration) {
	n.underAttack = false
	n.mob.LimitSpeed(-1)
	n.logger.Info("Evasive action ended",
		zap.Duration("at", now),
		zap.Duration("active_for", now-n.attackDetectedAt),
	)
}
