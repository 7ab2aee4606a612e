package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vanetguard/vanetguard/internal/message"
	"go.uber.org/zap/zaptest"
)

func TestRequiredReceivers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		defenders int
		want      int
	}{
		{defenders: 0, want: 0},
		{defenders: 1, want: 0},
		{defenders: 3, want: 1},
		{defenders: 4, want: 1},
		{defenders: 5, want: 2},
		{defenders: 16, want: 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RequiredReceivers(tt.defenders), "defenders=%d", tt.defenders)
	}
}

// sendAndReceive has sender 0 send n messages, each accepted by the first
// perMessage of the three receivers.
func sendAndReceive(t *testing.T, n, perMessage int) []Record {
	t.Helper()
	l := New(zaptest.NewLogger(t), 0)
	for i := 0; i < n; i++ {
		id := l.Allocate()
		l.Create(id, 0, 0)
		for r := 1; r <= perMessage; r++ {
			l.AddReceiver(id, message.NodeID(r), 0, 0)
		}
	}
	return l.Snapshot()
}

func TestNetworkPDR(t *testing.T) {
	t.Parallel()

	const defenders = 4

	tests := []struct {
		name       string
		perMessage int
		want       float64
	}{
		{name: "all three receivers", perMessage: 3, want: 100},
		// (4-1)/2 floors to 1, so a single receiver already counts
		{name: "one of three receivers", perMessage: 1, want: 100},
		{name: "nobody received", perMessage: 0, want: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NetworkPDR(sendAndReceive(t, 10, tt.perMessage), defenders)
			assert.Equal(t, 10, got.Sent)
			assert.InDelta(t, tt.want, got.Percent, 1e-9)
		})
	}

	t.Run("empty ledger", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, Ratio{}, NetworkPDR(nil, defenders))
	})
}

func TestPersonalPDR(t *testing.T) {
	t.Parallel()

	records := []Record{
		{PacketID: 1, Sender: 1, Receivers: []message.NodeID{2, 3}},
		{PacketID: 2, Sender: 1, Receivers: []message.NodeID{2}},
		{PacketID: 3, Sender: 1, Receivers: nil},
		{PacketID: 4, Sender: 2, Receivers: []message.NodeID{1, 3, 4}},
	}

	// 5 defenders need 2 receivers
	mine := PersonalPDR(records, 1, 5)
	assert.Equal(t, 3, mine.Sent)
	assert.Equal(t, 1, mine.Delivered)
	assert.InDelta(t, 100.0/3, mine.Percent, 1e-9)

	assert.Equal(t, 100.0, PersonalPDR(records, 2, 5).Percent)
	assert.Equal(t, Ratio{}, PersonalPDR(records, 9, 5), "node that never sent")

	all := NetworkPDR(records, 5)
	assert.Equal(t, 4, all.Sent)
	assert.Equal(t, 2, all.Delivered)
	assert.Equal(t, 50.0, all.Percent)
}
