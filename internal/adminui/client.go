package adminui

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from
	// the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval; must be less than
	// pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum message size allowed from a console.
	maxMessageSize = 4096

	// sendBufferSize is the size of a Client's outbound message buffer.
	sendBufferSize = 64
)

// inboundMessage is what a console may send the hub.
type inboundMessage struct {
	Type string `json:"type"`
}

// Client wraps a single operator console's websocket connection,
// adapted from internal/web's WSClient but without any agent-targeting
// state since every console sees the same shard-wide broadcast.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	send chan *Message

	closed chan struct{}
	closeC chan struct{}
}

// newClient wraps an already-upgraded websocket connection.
func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan *Message, sendBufferSize),
		closeC: make(chan struct{}),
	}
}

// Send queues msg for delivery to this console, dropping it if the
// client's own buffer is full rather than blocking the hub.
func (c *Client) Send(msg *Message) {
	select {
	case c.send <- msg:
	case <-c.closeC:
	default:
		log.Warnf("adminui: console send buffer full, dropping %s", msg.Type)
	}
}

// Close idempotently closes closeC, which makes writePump send a close
// frame and exit; the connection it then closes ends readPump as well.
func (c *Client) Close() {
	select {
	case <-c.closeC:
		return
	default:
		close(c.closeC)
	}
}

// readPump reads (and discards, beyond ping keepalive) console messages
// until the connection errors or closes, then unregisters the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debugf("adminui: console read error: %v", err)
			}
			return
		}

		var in inboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			c.Send(&Message{Type: MsgError, Payload: "malformed message"})
			continue
		}

		if in.Type == "ping" {
			c.Send(&Message{Type: MsgPong})
		}
	}
}

// writePump drains c.send to the websocket connection and pings the
// peer every pingPeriod, until closeC fires.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			data, err := json.Marshal(msg)
			if err != nil {
				log.Errorf("adminui: marshal outbound message: %v", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeC:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
