package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/entityrt/entityrt/internal/entityid"
)

// membershipSubject is the NATS subject every node in a cluster publishes
// NodeJoined/NodeLost events to and subscribes to for the same, one subject
// per cluster rather than per-Kind: a single node-loss affects every Kind
// that node hosted shards for, so fragmenting the bus by Kind would just
// mean publishing the same event N times.
const membershipSubject = "entityrt.cluster.membership"

// wireEvent is the JSON form a MembershipEvent travels the wire as.
type wireEvent struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Address string `json:"address"`
}

// NATSConfig parameterizes NewNATSClusterConfig, mirroring the
// reconnect/ping tuning adred-codev-ws_poc's own NATS client exposes.
type NATSConfig struct {
	URL             string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
	MaxPingsOut     int
	PingInterval    time.Duration

	// Shards is the static node topology per Kind: Shards[k][i] is the
	// node address hosting shard index i of Kind k. internal/cluster does
	// not run its own rebalancing protocol; this table is provided by
	// whatever deployment tooling assigns shard ownership.
	Shards map[entityid.Kind][]NodeAddress
}

// NATSClusterConfig is the ClusterConfig implementation backed by a NATS
// membership event bus, grounded on adred-codev-ws_poc's
// go-server/pkg/nats.Client connect/disconnect/reconnect handler wiring.
type NATSClusterConfig struct {
	conn   *nats.Conn
	shards map[entityid.Kind][]NodeAddress

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNATSClusterConfig connects to NATS and returns a ClusterConfig backed
// by it.
func NewNATSClusterConfig(cfg NATSConfig) (*NATSClusterConfig, error) {
	c := &NATSClusterConfig{shards: cfg.Shards}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(cfg.ReconnectJitter, cfg.ReconnectJitter),
		nats.MaxPingsOutstanding(cfg.MaxPingsOut),
		nats.PingInterval(cfg.PingInterval),
		nats.ConnectHandler(c.onConnect),
		nats.DisconnectErrHandler(c.onDisconnect),
		nats.ReconnectHandler(c.onReconnect),
		nats.ErrorHandler(c.onError),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("cluster: connect to NATS at %s: %w", cfg.URL, err)
	}
	c.conn = conn

	return c, nil
}

func (c *NATSClusterConfig) onConnect(conn *nats.Conn) {
	log.Infof("cluster: connected to NATS at %s", conn.ConnectedUrl())
}

func (c *NATSClusterConfig) onDisconnect(_ *nats.Conn, err error) {
	if err != nil {
		log.Warnf("cluster: disconnected from NATS: %v", err)
		return
	}
	log.Infof("cluster: disconnected from NATS")
}

func (c *NATSClusterConfig) onReconnect(conn *nats.Conn) {
	log.Infof("cluster: reconnected to NATS at %s", conn.ConnectedUrl())
}

func (c *NATSClusterConfig) onError(_ *nats.Conn, _ *nats.Subscription, err error) {
	log.Errorf("cluster: NATS error: %v", err)
}

// NodeCountForKind implements ClusterConfig.
func (c *NATSClusterConfig) NodeCountForKind(kind entityid.Kind) int {
	return len(c.shards[kind])
}

// ShardsForKind implements ClusterConfig.
func (c *NATSClusterConfig) ShardsForKind(kind entityid.Kind) []NodeAddress {
	return c.shards[kind]
}

// PublishNodeLost announces that addr has left the cluster.
func (c *NATSClusterConfig) PublishNodeLost(addr NodeAddress) error {
	return c.publish(MembershipEvent{ID: uuid.NewString(), Kind: NodeLost, Address: addr})
}

// PublishNodeJoined announces that addr has joined the cluster.
func (c *NATSClusterConfig) PublishNodeJoined(addr NodeAddress) error {
	return c.publish(MembershipEvent{ID: uuid.NewString(), Kind: NodeJoined, Address: addr})
}

func (c *NATSClusterConfig) publish(ev MembershipEvent) error {
	data, err := json.Marshal(wireEvent{
		ID: ev.ID, Kind: ev.Kind.String(), Address: string(ev.Address),
	})
	if err != nil {
		return fmt.Errorf("cluster: marshal membership event: %w", err)
	}

	if err := c.conn.Publish(membershipSubject, data); err != nil {
		return fmt.Errorf("cluster: publish membership event: %w", err)
	}

	return nil
}

// Events implements ClusterConfig: it subscribes to the cluster's
// membership subject and streams every event until ctx is cancelled.
func (c *NATSClusterConfig) Events(ctx context.Context) (<-chan MembershipEvent, error) {
	out := make(chan MembershipEvent, 32)

	sub, err := c.conn.Subscribe(membershipSubject, func(msg *nats.Msg) {
		var wire wireEvent
		if err := json.Unmarshal(msg.Data, &wire); err != nil {
			log.Warnf("cluster: undecodable membership event: %v", err)
			return
		}

		ev := MembershipEvent{ID: wire.ID, Address: NodeAddress(wire.Address)}
		if wire.Kind == NodeJoined.String() {
			ev.Kind = NodeJoined
		} else {
			ev.Kind = NodeLost
		}

		select {
		case out <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		close(out)
		return nil, fmt.Errorf("cluster: subscribe to membership subject: %w", err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
		close(out)
	}()

	return out, nil
}

// Close implements ClusterConfig.
func (c *NATSClusterConfig) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.subs = nil

	c.conn.Close()

	return nil
}
