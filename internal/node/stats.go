package node

import "time"

// TrafficStats are the per-node traffic counters accumulated over a run.
type TrafficStats struct {
	PacketsSent        int `json:"packets_sent" yaml:"packets_sent"`
	NormalPacketsSent  int `json:"normal_packets_sent" yaml:"normal_packets_sent"`
	AttackPacketsSent  int `json:"attack_packets_sent" yaml:"attack_packets_sent"`
	SuppressedBeacons  int `json:"suppressed_beacons" yaml:"suppressed_beacons"`
	PacketsReceived    int `json:"packets_received" yaml:"packets_received"`
	PacketsAccepted    int `json:"packets_accepted" yaml:"packets_accepted"`
	// AttacksDetected counts senders this node blacklisted.
	AttacksDetected    int `json:"attacks_detected" yaml:"attacks_detected"`
	EvasiveActions     int `json:"evasive_actions" yaml:"evasive_actions"`
	TotalBytesReceived int `json:"total_bytes_received" yaml:"total_bytes_received"`

	TotalDelay  time.Duration `json:"total_delay" yaml:"total_delay"`
	TotalJitter time.Duration `json:"total_jitter" yaml:"total_jitter"`
	JitterCount int           `json:"jitter_count" yaml:"jitter_count"`

	// Throughput samples in bits per second, one per elapsed second.
	Throughput []float64 `json:"throughput,omitempty" yaml:"throughput,omitempty"`

	lastArrival      time.Duration
	lastInterArrival time.Duration
	haveArrival      bool
	haveInterArrival bool

	windowStart time.Duration
	windowBytes int
}

// observe accounts an accepted frame of the given size and delay arriving
// at now.
func (s *TrafficStats) observe(now, delay time.Duration, bytes int) {
	s.PacketsAccepted++
	s.TotalDelay += delay
	s.TotalBytesReceived += bytes
	s.windowBytes += bytes

	if s.haveArrival {
		inter := now - s.lastArrival
		if s.haveInterArrival {
			diff := inter - s.lastInterArrival
			if diff < 0 {
				diff = -diff
			}
			s.TotalJitter += diff
			s.JitterCount++
		}
		s.lastInterArrival = inter
		s.haveInterArrival = true
	}
	s.lastArrival = now
	s.haveArrival = true
}

// sampleThroughput closes the throughput window if at least a second has
// elapsed since it opened.
func (s *TrafficStats) sampleThroughput(now time.Duration) {
	elapsed := now - s.windowStart
	if elapsed < time.Second {
		return
	}
	s.Throughput = append(s.Throughput, float64(s.windowBytes*8)/elapsed.Seconds())
	s.windowStart = now
	s.windowBytes = 0
}

// AverageDelay returns the mean end-to-end delay of accepted frames.
func (s TrafficStats) AverageDelay() time.Duration {
	if s.PacketsAccepted == 0 {
		return 0
	}
	return s.TotalDelay / time.Duration(s.PacketsAccepted)
}

// AverageJitter returns the mean absolute inter-arrival variation.
func (s TrafficStats) AverageJitter() time.Duration {
	if s.JitterCount == 0 {
		return 0
	}
	return s.TotalJitter / time.Duration(s.JitterCount)
}

// LastThroughput returns the most recent throughput sample in bits per
// second.
func (s TrafficStats) LastThroughput() float64 {
	if len(s.Throughput) == 0 {
		return 0
	}
	return s.Throughput[len(s.Throughput)-1]
}
