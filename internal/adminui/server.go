package adminui

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,

	// CheckOrigin is permissive: this endpoint is meant to sit behind an
	// operator-only network boundary, not be exposed publicly.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes Hub over a single websocket endpoint.
type Server struct {
	hub *Hub
}

// NewServer wraps hub as an http.Handler.
func NewServer(hub *Hub) *Server {
	return &Server{hub: hub}
}

// ServeHTTP upgrades the request to a websocket connection, registers a
// Client with the hub, and spawns its read/write pumps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("adminui: upgrade failed: %v", err)
		return
	}

	client := newClient(s.hub, conn)
	s.hub.register <- client

	client.Send(&Message{Type: MsgConnected})

	go client.writePump()
	go client.readPump()
}
