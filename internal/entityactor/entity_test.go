package entityactor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/entityrt/entityrt/internal/dispatch"
	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/shardproto"
	"github.com/stretchr/testify/require"
)

// fakeShard is a ShardRef that just records every op Tell'd to it, standing
// in for the real EntityShard in unit tests.
type fakeShard struct {
	mu  sync.Mutex
	ops []shardproto.Op
}

func (f *fakeShard) Tell(op shardproto.Op) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *fakeShard) snapshot() []shardproto.Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shardproto.Op(nil), f.ops...)
}

func (f *fakeShard) askReply(askID uint64) *shardproto.AskReply {
	for _, op := range f.snapshot() {
		if reply, ok := op.(shardproto.AskReply); ok && reply.AskID == askID {
			return &reply
		}
	}

	return nil
}

type greetHello struct{ Name string }
type greetAsk struct{ Name string }
type greetSubReq struct{}

type greetState struct {
	*Base

	mu      sync.Mutex
	greeted []string
}

func (s *greetState) recordGreeting(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.greeted = append(s.greeted, name)
}

func buildGreetDispatcher(t *testing.T) *dispatch.Dispatcher[greetState] {
	b := dispatch.NewBuilder[greetState]()

	err := dispatch.RegisterMessage[greetState, greetHello](b,
		func(ctx context.Context, s *greetState,
			sender *entityid.EntityId, msg greetHello,
		) error {

			s.recordGreeting(msg.Name)
			return nil
		})
	require.NoError(t, err)

	err = dispatch.RegisterAsk[greetState, greetAsk, string](b,
		func(ctx context.Context, s *greetState,
			sender *entityid.EntityId, msg greetAsk,
		) (string, error) {

			return "hi " + msg.Name, nil
		})
	require.NoError(t, err)

	err = dispatch.RegisterPubSub[greetState, greetSubReq, dispatch.Subscriber](b,
		func(ctx context.Context, s *greetState,
			link dispatch.Subscriber, msg greetSubReq,
		) error {

			return nil
		})
	require.NoError(t, err)

	return b.Build()
}

func TestEntityLifecycleAndDispatch(t *testing.T) {
	t.Parallel()

	fake := &fakeShard{}
	dispatcher := buildGreetDispatcher(t)
	id := entityid.EntityId{Kind: "Greeter", Value: 1}

	entity, err := New(context.Background(), Config[greetState]{
		ID:    id,
		Shard: fake,
		NewState: func(base *Base) *greetState {
			return &greetState{Base: base}
		},
		Dispatcher:     dispatcher,
		ShutdownPolicy: Never(),
	})
	require.NoError(t, err)

	// EntityReady must be sent synchronously from New.
	ready := fake.snapshot()
	require.Len(t, ready, 1)
	_, ok := ready[0].(shardproto.EntityReady)
	require.True(t, ok)

	sender := entityid.EntityId{Kind: "Sender", Value: 2}

	entity.Ref().Tell(context.Background(), &Envelope{
		Kind:    EnvCast,
		From:    sender,
		Payload: greetHello{Name: "Ann"},
	})

	entity.Ref().Tell(context.Background(), &Envelope{
		Kind:    EnvAskRequest,
		From:    sender,
		AskID:   7,
		Payload: greetAsk{Name: "Bob"},
	})

	entity.Ref().Tell(context.Background(), &Envelope{
		Kind:      EnvSubscribeRequest,
		From:      sender,
		ChannelID: 42,
		Payload:   greetSubReq{},
	})

	require.Eventually(t, func() bool {
		return fake.askReply(7) != nil
	}, time.Second, time.Millisecond)

	reply := fake.askReply(7)
	require.Equal(t, "hi Bob", reply.Payload)
	require.NoError(t, reply.Err)

	var sawAck bool
	require.Eventually(t, func() bool {
		for _, op := range fake.snapshot() {
			if ack, ok := op.(shardproto.SubscribeAck); ok {
				require.NoError(t, ack.Err)
				require.Equal(t, int64(42), ack.OutChannelID)
				sawAck = true
				return true
			}
		}

		return false
	}, time.Second, time.Millisecond)
	require.True(t, sawAck)

	entity.Stop()
}

var errInitBoom = errors.New("init boom")

type failState struct {
	*Base
}

func (s *failState) OnInitialize(ctx context.Context) error {
	return errInitBoom
}

// TestEntityOnInitializeFailureNeverStarts verifies that a failing
// OnInitialize aborts construction and notifies the shard directly, without
// ever starting the underlying actor.
func TestEntityOnInitializeFailureNeverStarts(t *testing.T) {
	t.Parallel()

	fake := &fakeShard{}
	id := entityid.EntityId{Kind: "Bad", Value: 1}

	entity, err := New(context.Background(), Config[failState]{
		ID:    id,
		Shard: fake,
		NewState: func(base *Base) *failState {
			return &failState{Base: base}
		},
		Dispatcher: dispatch.NewBuilder[failState]().Build(),
	})
	require.ErrorIs(t, err, errInitBoom)
	require.Nil(t, entity)

	ops := fake.snapshot()
	require.Len(t, ops, 1)

	terminated, ok := ops[0].(shardproto.EntityTerminated)
	require.True(t, ok)
	require.Equal(t, id, terminated.ID)
	require.ErrorIs(t, terminated.Reason, errInitBoom)
}
