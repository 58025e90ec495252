// Package adminui streams periodic {shard, liveEntityCount} snapshots to
// connected operator consoles over a websocket hub (spec.md §9's open
// question about a live-entity-count event bus), grounded on
// internal/web's own WebSocket hub/client pair — the teacher's one
// real-time fan-out implementation, here stripped of its agent/activity/
// inbox domain and re-pointed at shard stats.
package adminui

import (
	"context"
	"sync"
	"time"
)

// MessageType identifies the kind of payload a Message carries.
type MessageType string

const (
	// MsgConnected is sent once, right after a console connects.
	MsgConnected MessageType = "connected"

	// MsgShardStats carries the latest StatsSource.Snapshot().
	MsgShardStats MessageType = "shard_stats"

	// MsgPong answers a console's "ping" message.
	MsgPong MessageType = "pong"

	// MsgError reports a malformed inbound message.
	MsgError MessageType = "error"
)

// Message is a single hub-to-console websocket frame, including the
// MsgPong and MsgError replies to a console's own frames.
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

// ShardStats is one shard's point-in-time counters, the websocket
// counterpart to internal/metrics' Prometheus gauges.
type ShardStats struct {
	Kind                  string `json:"kind"`
	Index                 int32  `json:"index"`
	LiveEntityCount       int    `json:"live_entity_count"`
	AskInFlight           int    `json:"ask_in_flight"`
	ShutdownThrottleDepth int    `json:"shutdown_throttle_depth"`
}

// StatsSource supplies the Hub's periodic broadcast payload. A node wires
// this to whatever tracks its own live EntityShards.
type StatsSource interface {
	Snapshot() []ShardStats
}

// Hub maintains the set of connected operator consoles and fans out
// periodic ShardStats snapshots to all of them, mirroring
// internal/web.Hub's register/unregister/broadcastAll channel loop.
type Hub struct {
	source StatsSource
	period time.Duration

	clients map[*Client]struct{}

	register     chan *Client
	unregister   chan *Client
	broadcastAll chan *Message

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a Hub that polls source every period for a fresh
// ShardStats snapshot to broadcast.
func NewHub(source StatsSource, period time.Duration) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		source:       source,
		period:       period,
		clients:      make(map[*Client]struct{}),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcastAll: make(chan *Message, 256),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Run starts the hub's main loop; call it in its own goroutine.
func (h *Hub) Run() {
	go h.runPeriodicStats()

	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			log.Debugf("adminui: console connected (total=%d)", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Debugf("adminui: console disconnected (total=%d)", total)

		case msg := <-h.broadcastAll:
			h.mu.RLock()
			for client := range h.clients {
				client.Send(msg)
			}
			h.mu.RUnlock()
		}
	}
}

// Stop shuts the hub down, closing every connected console.
func (h *Hub) Stop() {
	h.cancel()
}

// ClientCount returns the number of connected consoles.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToAll queues msg for delivery to every connected console,
// dropping it if the broadcast buffer is full rather than blocking the
// hub's main loop.
func (h *Hub) BroadcastToAll(msg *Message) {
	select {
	case h.broadcastAll <- msg:
	default:
		log.Warnf("adminui: broadcast buffer full, dropping %s", msg.Type)
	}
}

func (h *Hub) runPeriodicStats() {
	ticker := time.NewTicker(h.period)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.BroadcastToAll(&Message{
				Type:    MsgShardStats,
				Payload: h.source.Snapshot(),
			})
		}
	}
}
