package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vanetguard/vanetguard/internal/detection"
	"github.com/vanetguard/vanetguard/internal/message"
	"github.com/vanetguard/vanetguard/internal/simulation"
)

// Namespace prefixes every exported metric.
const Namespace = "vanetguard"

// Metrics holds the Prometheus collectors for a run. It implements
// node.Recorder so nodes can report events as they happen.
type Metrics struct {
	registry *prometheus.Registry

	packetsSent     *prometheus.CounterVec
	packetsReceived prometheus.Counter
	bytesReceived   prometheus.Counter
	packetsAccepted prometheus.Counter
	detections      *prometheus.CounterVec
	evasiveActions  prometheus.Counter
	deliveryDelay   prometheus.Histogram

	networkPDR    prometheus.Gauge
	nodePDR       *prometheus.GaugeVec
	blacklistSize *prometheus.GaugeVec
	simEvents     prometheus.Gauge
	running       prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		packetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "packets_sent_total",
			Help:      "Packets broadcast by nodes, by kind",
		}, []string{"kind"}),
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "packets_received_total",
			Help:      "Frames handed to a receiving node",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bytes_received_total",
			Help:      "Bytes handed to receiving nodes",
		}),
		packetsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "packets_accepted_total",
			Help:      "Frames that passed detection",
		}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "detections_total",
			Help:      "Rejected frames, by reason",
		}, []string{"reason"}),
		evasiveActions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "evasive_actions_total",
			Help:      "Evasive actions started by defenders",
		}),
		deliveryDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "delivery_delay_seconds",
			Help:      "Simulated end-to-end delay of accepted frames",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		networkPDR: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "network_pdr_percent",
			Help:      "Network packet delivery ratio of the last finished run",
		}),
		nodePDR: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "node_pdr_percent",
			Help:      "Personal packet delivery ratio of the last finished run",
		}, []string{"node", "role"}),
		blacklistSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "node_blacklisted_senders",
			Help:      "Senders blacklisted by each node at the end of the last run",
		}, []string{"node", "role"}),
		simEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "simulation_events",
			Help:      "Events processed by the last finished run",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "simulation_running",
			Help:      "1 while a simulation is in progress",
		}),
	}

	m.registry.MustRegister(
		m.packetsSent,
		m.packetsReceived,
		m.bytesReceived,
		m.packetsAccepted,
		m.detections,
		m.evasiveActions,
		m.deliveryDelay,
		m.networkPDR,
		m.nodePDR,
		m.blacklistSize,
		m.simEvents,
		m.running,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Sent(kind message.Kind, n int) {
	m.packetsSent.WithLabelValues(kind.String()).Add(float64(n))
}

func (m *Metrics) Received(bytes int) {
	m.packetsReceived.Inc()
	m.bytesReceived.Add(float64(bytes))
}

func (m *Metrics) Accepted(delay time.Duration) {
	m.packetsAccepted.Inc()
	m.deliveryDelay.Observe(delay.Seconds())
}

func (m *Metrics) Detected(reason detection.Reason) {
	m.detections.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) EvasiveStarted() {
	m.evasiveActions.Inc()
}

// SetRunning flags whether a simulation is in progress.
func (m *Metrics) SetRunning(running bool) {
	if running {
		m.running.Set(1)
		return
	}
	m.running.Set(0)
}

// Publish exports the end-of-run figures of res. Per-node gauges from an
// earlier run are replaced.
func (m *Metrics) Publish(res *simulation.Result) {
	m.networkPDR.Set(res.Network.Percent)
	m.simEvents.Set(float64(res.Events))

	m.nodePDR.Reset()
	m.blacklistSize.Reset()
	for _, s := range res.Nodes {
		id := strconv.Itoa(int(s.ID))
		role := "defender"
		if s.Malicious {
			role = "attacker"
		}
		m.nodePDR.WithLabelValues(id, role).Set(s.PersonalPDR.Percent)
		m.blacklistSize.WithLabelValues(id, role).Set(float64(len(s.Blacklisted)))
	}
}
