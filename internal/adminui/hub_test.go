package adminui

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeStatsSource struct {
	mu   sync.Mutex
	next []ShardStats
}

func (f *fakeStatsSource) set(stats []ShardStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = stats
}

func (f *fakeStatsSource) Snapshot() []ShardStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

func newTestServer(t *testing.T, hub *Hub) (*httptest.Server, string) {
	t.Helper()

	srv := httptest.NewServer(NewServer(hub))
	t.Cleanup(srv.Close)

	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))

	return msg
}

func TestHubSendsConnectedOnRegister(t *testing.T) {
	source := &fakeStatsSource{}
	hub := NewHub(source, time.Hour)
	go hub.Run()
	t.Cleanup(hub.Stop)

	_, wsURL := newTestServer(t, hub)
	conn := dial(t, wsURL)

	msg := readMessage(t, conn)
	require.Equal(t, MsgConnected, msg.Type)
}

func TestHubBroadcastsShardStatsToAllClients(t *testing.T) {
	source := &fakeStatsSource{}
	source.set([]ShardStats{
		{Kind: "player", Index: 0, LiveEntityCount: 3, AskInFlight: 1},
	})

	hub := NewHub(source, 20*time.Millisecond)
	go hub.Run()
	t.Cleanup(hub.Stop)

	_, wsURL := newTestServer(t, hub)

	connA := dial(t, wsURL)
	connB := dial(t, wsURL)

	// Drain the initial "connected" message on each.
	readMessage(t, connA)
	readMessage(t, connB)

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 },
		time.Second, 10*time.Millisecond)

	msgA := readMessage(t, connA)
	require.Equal(t, MsgShardStats, msgA.Type)

	msgB := readMessage(t, connB)
	require.Equal(t, MsgShardStats, msgB.Type)
}

func TestHubUnregistersClientOnDisconnect(t *testing.T) {
	source := &fakeStatsSource{}
	hub := NewHub(source, time.Hour)
	go hub.Run()
	t.Cleanup(hub.Stop)

	_, wsURL := newTestServer(t, hub)
	conn := dial(t, wsURL)
	readMessage(t, conn)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)
}
