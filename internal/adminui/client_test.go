package adminui

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestClientRespondsToPingWithPong(t *testing.T) {
	source := &fakeStatsSource{}
	hub := NewHub(source, time.Hour)
	go hub.Run()
	t.Cleanup(hub.Stop)

	_, wsURL := newTestServer(t, hub)
	conn := dial(t, wsURL)

	readMessage(t, conn) // connected

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "ping"}))

	msg := readMessage(t, conn)
	require.Equal(t, MsgPong, msg.Type)
}

func TestClientRepliesErrorOnMalformedMessage(t *testing.T) {
	source := &fakeStatsSource{}
	hub := NewHub(source, time.Hour)
	go hub.Run()
	t.Cleanup(hub.Stop)

	_, wsURL := newTestServer(t, hub)
	conn := dial(t, wsURL)

	readMessage(t, conn) // connected

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	msg := readMessage(t, conn)
	require.Equal(t, MsgError, msg.Type)
}
