package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/entityrt/entityrt/internal/dispatch"
	"github.com/entityrt/entityrt/internal/entityactor"
	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/shardproto"
	"github.com/stretchr/testify/require"
)

// counterPayload is the toy persisted payload a counterState entity
// carries: a value each bump command increments, persisted through a Controller[counterPayload].
type counterPayload struct {
	Value int
}

type bump struct{}

// counterState is an entity state type wiring a Controller[counterPayload]
// into its lifecycle hooks, mirroring how a real persisted entity would
// call Restore from OnInitialize and PersistState(final=true) from
// OnShutdown.
type counterState struct {
	*entityactor.Base

	store      *fakeStore
	codec      *GobCodec
	compressor Compressor
	cfg        Config

	ctrl       *Controller[counterPayload]
	payload    counterPayload
	restoredAt time.Time
}

func (s *counterState) OnInitialize(ctx context.Context) error {
	outcome, err := Restore[counterPayload](ctx, s.Self(), s.store, s.codec,
		s.compressor, SchemaRange{Min: 1, Max: 1}, nil,
		Hooks[counterPayload]{
			InitializeNew: func(ctx context.Context) (counterPayload, error) {
				return counterPayload{Value: 0}, nil
			},
			PostLoad: func(ctx context.Context, payload counterPayload,
				persistedAt time.Time, elapsed time.Duration) error {

				return nil
			},
		}, nil,
		func(ctx context.Context, payload counterPayload) error {
			return s.store.Save(ctx, s.Self(), Record{SchemaVersion: 1})
		})
	if err != nil {
		return err
	}

	s.payload = outcome.Payload
	s.restoredAt = outcome.PersistedAt
	s.cfg.SchemaVersion = 1

	return nil
}

func (s *counterState) OnReady(ctx context.Context) {
	s.ctrl = NewController[counterPayload](s.Base, s.Self(), s.store, s.codec,
		s.compressor, s.cfg, s.restoredAt)
	s.ctrl.StartPeriodic(func() counterPayload { return s.payload })
}

func (s *counterState) OnShutdown(ctx context.Context) error {
	return s.ctrl.PersistState(ctx, s.payload, true)
}

func buildCounterDispatcher() *dispatch.Dispatcher[counterState] {
	b := dispatch.NewBuilder[counterState]()
	dispatch.RegisterCommand(b, func(ctx context.Context, s *counterState,
		_ bump,
	) error {

		s.payload.Value++
		s.ctrl.SchedulePersistState(func() counterPayload { return s.payload })

		return nil
	})

	return b.Build()
}

type controllerFakeShard struct{}

func (controllerFakeShard) Tell(shardproto.Op) {}

func newCounterEntity(t *testing.T, store *fakeStore, codec *GobCodec,
	compressor Compressor,
) *entityactor.Entity[counterState] {

	entity, err := entityactor.New[counterState](context.Background(),
		entityactor.Config[counterState]{
			ID:    entityid.EntityId{Kind: "Counter", Value: 1},
			Shard: controllerFakeShard{},
			NewState: func(base *entityactor.Base) *counterState {
				return &counterState{
					Base: base, store: store, codec: codec, compressor: compressor,
				}
			},
			Dispatcher: buildCounterDispatcher(),
		})
	require.NoError(t, err)

	return entity
}

func TestControllerFinalPersistOnShutdown(t *testing.T) {
	store := newFakeStore()
	codec := NewGobCodec()
	codec.RegisterType("counterPayload", counterPayload{})

	entity := newCounterEntity(t, store, codec, NoneCompressor())

	id := entityid.EntityId{Kind: "Counter", Value: 1}
	require.Contains(t, store.records, id)
	require.False(t, store.records[id].IsFinal)

	entity.Ref().Tell(context.Background(), &entityactor.Envelope{
		Kind: entityactor.EnvCommand, Payload: bump{},
	})

	time.Sleep(50 * time.Millisecond)

	entity.Stop()
	time.Sleep(50 * time.Millisecond)

	rec, ok := store.records[id]
	require.True(t, ok)
	require.True(t, rec.IsFinal)

	decoded, err := codec.Decode(rec.Payload)
	require.NoError(t, err)
	require.Equal(t, counterPayload{Value: 1}, decoded)
}

func TestControllerRestoresPersistedPayload(t *testing.T) {
	store := newFakeStore()
	codec := NewGobCodec()
	codec.RegisterType("counterPayload", counterPayload{})

	id := entityid.EntityId{Kind: "Counter", Value: 1}

	encoded, err := codec.Encode(counterPayload{Value: 41})
	require.NoError(t, err)

	store.records[id] = Record{
		Payload:       encoded,
		SchemaVersion: 1,
		PersistedAt:   time.Now(),
		IsFinal:       true,
	}

	entity := newCounterEntity(t, store, codec, NoneCompressor())

	entity.Ref().Tell(context.Background(), &entityactor.Envelope{
		Kind: entityactor.EnvCommand, Payload: bump{},
	})

	time.Sleep(50 * time.Millisecond)

	entity.Stop()
	time.Sleep(50 * time.Millisecond)

	decoded, err := codec.Decode(store.records[id].Payload)
	require.NoError(t, err)
	require.Equal(t, counterPayload{Value: 42}, decoded)
}
