package monitoring

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vanetguard/vanetguard/internal/detection"
	"github.com/vanetguard/vanetguard/internal/ledger"
	"github.com/vanetguard/vanetguard/internal/message"
	"github.com/vanetguard/vanetguard/internal/node"
	"github.com/vanetguard/vanetguard/internal/simulation"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var _ node.Recorder = (*Metrics)(nil)

func TestMetrics_Recorder(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.Sent(message.KindBeacon, 3)
	m.Sent(message.KindAttack, 200)
	m.Received(125)
	m.Received(200)
	m.Accepted(2 * time.Millisecond)
	m.Detected(detection.ReasonSevereFlood)
	m.Detected(detection.ReasonSevereFlood)
	m.Detected(detection.ReasonBlacklisted)
	m.EvasiveStarted()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.packetsSent.WithLabelValues("beacon")))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.packetsSent.WithLabelValues("attack")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.packetsReceived))
	assert.Equal(t, 325.0, testutil.ToFloat64(m.bytesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.packetsAccepted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.detections.WithLabelValues("severe_flood")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.detections.WithLabelValues("blacklisted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evasiveActions))
	assert.Equal(t, 1, testutil.CollectAndCount(m.deliveryDelay))
}

func TestMetrics_Publish(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.SetRunning(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.running))

	res := &simulation.Result{
		Events:  1234,
		Network: ledger.Ratio{Sent: 10, Delivered: 9, Percent: 90},
		Nodes: []node.Summary{
			{ID: 0, PersonalPDR: ledger.Ratio{Percent: 100}, Blacklisted: []message.NodeID{2}},
			{ID: 1, PersonalPDR: ledger.Ratio{Percent: 80}, Blacklisted: []message.NodeID{2}},
			{ID: 2, Malicious: true},
		},
	}
	m.Publish(res)
	m.SetRunning(false)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.running))
	assert.Equal(t, 90.0, testutil.ToFloat64(m.networkPDR))
	assert.Equal(t, 1234.0, testutil.ToFloat64(m.simEvents))
	assert.Equal(t, 80.0, testutil.ToFloat64(m.nodePDR.WithLabelValues("1", "defender")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.blacklistSize.WithLabelValues("0", "defender")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.nodePDR))

	// a second, smaller run drops stale node series
	m.Publish(&simulation.Result{Nodes: []node.Summary{{ID: 0}}})
	assert.Equal(t, 1, testutil.CollectAndCount(m.nodePDR))
}

func TestServer_Endpoints(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.Sent(message.KindBeacon, 1)
	s := NewServer(zaptest.NewLogger(t), "127.0.0.1:0", m)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	tests := []struct {
		name       string
		path       string
		setup      func()
		wantStatus int
		check      func(t *testing.T, body string)
	}{
		{
			name:       "metrics",
			path:       "/metrics",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body string) {
				assert.Contains(t, body, `vanetguard_packets_sent_total{kind="beacon"} 1`)
			},
		},
		{
			name:       "health",
			path:       "/health",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body string) {
				var doc struct {
					Status      string      `json:"status"`
					FeedClients int         `json:"feed_clients"`
					System      SystemStats `json:"system"`
				}
				require.NoError(t, json.Unmarshal([]byte(body), &doc))
				assert.Equal(t, "healthy", doc.Status)
				assert.Zero(t, doc.FeedClients)
				assert.Positive(t, doc.System.Goroutines)
			},
		},
		{
			name:       "report before run",
			path:       "/report",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "report after run",
			path:       "/report",
			setup:      func() { s.SetReport(map[string]int{"defenders": 4}) },
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body string) {
				assert.JSONEq(t, `{"defenders":4}`, body)
			},
		},
		{
			name:       "unknown route",
			path:       "/nope",
			wantStatus: http.StatusNotFound,
		},
	}

	// subtests share the server and run in order
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			resp, err := http.Get(ts.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.check != nil {
				tt.check(t, strings.TrimSpace(string(body)))
			}
		})
	}

	assert.Positive(t, testutil.CollectAndCount(s.httpDuration))
}

func TestServer_StartStop(t *testing.T) {
	t.Parallel()

	s := NewServer(zaptest.NewLogger(t), "127.0.0.1:0", NewMetrics())
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop(context.Background()))
}

func TestServer_StartBadAddress(t *testing.T) {
	t.Parallel()

	s := NewServer(zaptest.NewLogger(t), "256.0.0.1:bad", NewMetrics())
	assert.Error(t, s.Start())
}

func TestServer_RequestID(t *testing.T) {
	t.Parallel()

	s := NewServer(zaptest.NewLogger(t), "127.0.0.1:0", NewMetrics())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/report", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_EventFeed(t *testing.T) {
	t.Parallel()

	s := NewServer(zaptest.NewLogger(t), "127.0.0.1:0", NewMetrics())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.feed.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Publish(EventRunFinished, map[string]int{"defenders": 4}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventRunFinished, ev.Type)
	assert.JSONEq(t, `{"defenders":4}`, string(ev.Data))

	s.feed.Close()
	assert.Zero(t, s.feed.Clients())
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestFeed_PublishWithoutClients(t *testing.T) {
	t.Parallel()

	f := NewFeed(zaptest.NewLogger(t))
	assert.NoError(t, f.Publish(EventRunStarted, nil))
	assert.Error(t, f.Publish(EventRunStarted, make(chan int)))
	f.Close()
}

func TestFeed_CloseWhileConnecting(t *testing.T) {
	t.Parallel()

	// handlers may still log after Close returns
	f := NewFeed(zap.NewNop())
	ts := httptest.NewServer(f)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}

	f.Close()
	wg.Wait()
	assert.Zero(t, f.Clients())

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "late clients are turned away")
}
