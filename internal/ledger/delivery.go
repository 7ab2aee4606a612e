// Package ledger tracks, for every legitimate beacon sent in a run, which
// nodes accepted it. It is the only state shared between nodes and is safe
// for concurrent use.
package ledger

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vanetguard/vanetguard/internal/message"
	"go.uber.org/zap"
)

const defaultShardCount = 64

// ErrUnknownPacket is returned when a lookup names a packet id that has no
// delivery record.
var ErrUnknownPacket = errors.New("unknown packet")

// Record is the delivery record of one sent message.
type Record struct {
	PacketID  message.PacketID `json:"packet_id" yaml:"packet_id"`
	Sender    message.NodeID   `json:"sender" yaml:"sender"`
	SentAt    time.Duration    `json:"sent_at" yaml:"sent_at"`
	Receivers []message.NodeID `json:"receivers" yaml:"receivers"`
}

// Store is the narrow interface nodes use to account for deliveries.
type Store interface {
	// Allocate returns a new, process-wide unique packet id.
	Allocate() message.PacketID
	// Create opens the record for id. A second Create for the same id is
	// ignored so the sender never changes.
	Create(id message.PacketID, sender message.NodeID, at time.Duration)
	// AddReceiver adds receiver to id's receiver set. If the record is
	// missing it is created from sender and at, and created is true.
	AddReceiver(id message.PacketID, receiver, sender message.NodeID, at time.Duration) (created bool)
	// Snapshot returns a copy of every record ordered by packet id.
	Snapshot() []Record
}

type entry struct {
	sender    message.NodeID
	sentAt    time.Duration
	receivers map[message.NodeID]struct{}
}

type shard struct {
	mu      sync.RWMutex
	records map[message.PacketID]*entry
}

// Ledger is a Store backed by a map sharded by packet id.
type Ledger struct {
	logger *zap.Logger
	nextID atomic.Int64
	shards []*shard

	lazyCreates atomic.Uint64
}

var _ Store = (*Ledger)(nil)

// New creates an empty ledger. shardCount <= 0 selects the default.
func New(logger *zap.Logger, shardCount int) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	l := &Ledger{
		logger: logger,
		shards: make([]*shard, shardCount),
	}
	for i := range l.shards {
		l.shards[i] = &shard{records: make(map[message.PacketID]*entry)}
	}
	return l
}

func (l *Ledger) shardFor(id message.PacketID) *shard {
	idx := uint64(id) % uint64(len(l.shards))
	return l.shards[idx]
}

// Allocate returns the next packet id. Ids start at 1.
func (l *Ledger) Allocate() message.PacketID {
	return message.PacketID(l.nextID.Add(1))
}

// Create opens the delivery record for id.
func (l *Ledger) Create(id message.PacketID, sender message.NodeID, at time.Duration) {
	s := l.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; ok {
		return
	}
	s.records[id] = &entry{
		sender:    sender,
		sentAt:    at,
		receivers: make(map[message.NodeID]struct{}),
	}
}

// AddReceiver records that receiver accepted id. Insertion is idempotent.
func (l *Ledger) AddReceiver(id message.PacketID, receiver, sender message.NodeID, at time.Duration) bool {
	s := l.shardFor(id)
	s.mu.Lock()
	e, ok := s.records[id]
	if !ok {
		e = &entry{
			sender:    sender,
			sentAt:    at,
			receivers: make(map[message.NodeID]struct{}),
		}
		s.records[id] = e
	}
	e.receivers[receiver] = struct{}{}
	s.mu.Unlock()

	if !ok {
		l.lazyCreates.Add(1)
		l.logger.Warn("Delivery record missing on receive, created lazily",
			zap.Int64("packet_id", int64(id)),
			zap.Int("sender", int(sender)),
			zap.Int("receiver", int(receiver)),
			zap.Duration("at", at),
		)
	}
	return !ok
}

// Lookup returns a copy of the record for id.
func (l *Ledger) Lookup(id message.PacketID) (Record, error) {
	s := l.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[id]
	if !ok {
		return Record{}, ErrUnknownPacket
	}
	return e.record(id), nil
}

// Snapshot returns every record ordered by packet id. It must only be used
// once all nodes have stopped sending and receiving.
func (l *Ledger) Snapshot() []Record {
	var out []Record
	for _, s := range l.shards {
		s.mu.RLock()
		for id, e := range s.records {
			out = append(out, e.record(id))
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PacketID < out[j].PacketID })
	return out
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.RLock()
		n += len(s.records)
		s.mu.RUnlock()
	}
	return n
}

// LazyCreates returns how many records were created on the receive path.
func (l *Ledger) LazyCreates() uint64 {
	return l.lazyCreates.Load()
}

func (e *entry) record(id message.PacketID) Record {
	receivers := make([]message.NodeID, 0, len(e.receivers))
	for r := range e.receivers {
		receivers = append(receivers, r)
	}
	sort.Slice(receivers, func(i, j int) bool { return receivers[i] < receivers[j] })
	return Record{
		PacketID:  id,
		Sender:    e.sender,
		SentAt:    e.sentAt,
		Receivers: receivers,
	}
}
