package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/stretchr/testify/require"
)

type playerStateV3 struct {
	Name  string
	Level int
}

type fakeStore struct {
	records map[entityid.EntityId]Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[entityid.EntityId]Record)}
}

func (s *fakeStore) Load(_ context.Context, id entityid.EntityId) (Record, error) {
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNoRecord
	}

	return rec, nil
}

func (s *fakeStore) Save(_ context.Context, id entityid.EntityId, rec Record) error {
	s.records[id] = rec
	return nil
}

func newPlayerCodec() *GobCodec {
	c := NewGobCodec()
	c.RegisterType("playerStateV3", playerStateV3{})

	return c
}

func testHooks(postLoadCalls *[]playerStateV3) Hooks[playerStateV3] {
	return Hooks[playerStateV3]{
		InitializeNew: func(ctx context.Context) (playerStateV3, error) {
			return playerStateV3{Name: "new-player", Level: 1}, nil
		},
		PostLoad: func(ctx context.Context, payload playerStateV3,
			persistedAt time.Time, elapsed time.Duration) error {

			*postLoadCalls = append(*postLoadCalls, payload)
			return nil
		},
	}
}

func TestRestoreNoRecordInitializesFresh(t *testing.T) {
	store := newFakeStore()
	codec := newPlayerCodec()
	id := entityid.EntityId{Kind: "Player", Value: 1}

	var postLoaded []playerStateV3
	persisted := false

	outcome, err := Restore[playerStateV3](context.Background(), id, store, codec,
		NoneCompressor(), SchemaRange{Min: 1, Max: 3}, nil, testHooks(&postLoaded), nil,
		func(ctx context.Context, payload playerStateV3) error {
			persisted = true
			return store.Save(ctx, id, Record{SchemaVersion: 3})
		})

	require.NoError(t, err)
	require.True(t, outcome.WasFresh)
	require.Equal(t, "new-player", outcome.Payload.Name)
	require.Len(t, postLoaded, 1)
	require.True(t, persisted)
}

func TestRestoreBelowMinSchemaReinitializes(t *testing.T) {
	store := newFakeStore()
	codec := newPlayerCodec()
	id := entityid.EntityId{Kind: "Player", Value: 2}

	encoded, err := codec.Encode(playerStateV3{Name: "ancient", Level: 99})
	require.NoError(t, err)

	store.records[id] = Record{
		Payload:       encoded,
		SchemaVersion: 0,
		PersistedAt:   time.Now().Add(-time.Hour),
	}

	var postLoaded []playerStateV3

	outcome, err := Restore[playerStateV3](context.Background(), id, store, codec,
		NoneCompressor(), SchemaRange{Min: 1, Max: 3}, nil, testHooks(&postLoaded), nil,
		func(ctx context.Context, payload playerStateV3) error { return nil })

	require.NoError(t, err)
	require.True(t, outcome.WasFresh)
	require.Equal(t, "new-player", outcome.Payload.Name)
}

func TestRestoreLoadsAndDecodesVerbatim(t *testing.T) {
	store := newFakeStore()
	codec := newPlayerCodec()
	id := entityid.EntityId{Kind: "Player", Value: 3}

	encoded, err := codec.Encode(playerStateV3{Name: "veteran", Level: 42})
	require.NoError(t, err)

	persistedAt := time.Now().Add(-time.Minute)
	store.records[id] = Record{
		Payload:       encoded,
		SchemaVersion: 3,
		PersistedAt:   persistedAt,
		IsFinal:       true,
	}

	var postLoaded []playerStateV3

	outcome, err := Restore[playerStateV3](context.Background(), id, store, codec,
		NoneCompressor(), SchemaRange{Min: 1, Max: 3}, nil, testHooks(&postLoaded), nil,
		func(ctx context.Context, payload playerStateV3) error {
			t.Fatal("should not persist on a clean verbatim load")
			return nil
		})

	require.NoError(t, err)
	require.False(t, outcome.WasFresh)
	require.Equal(t, "veteran", outcome.Payload.Name)
	require.Equal(t, 42, outcome.Payload.Level)
	require.Len(t, postLoaded, 1)
}

func TestRestoreMigratesForward(t *testing.T) {
	store := newFakeStore()
	codec := newPlayerCodec()
	id := entityid.EntityId{Kind: "Player", Value: 4}

	encoded, err := codec.Encode(playerStateV3{Name: "migrated", Level: 0})
	require.NoError(t, err)

	store.records[id] = Record{
		Payload:       encoded,
		SchemaVersion: 1,
		PersistedAt:   time.Now(),
	}

	migrators := []Migrator[playerStateV3]{
		{
			FromVersion: 1,
			Upgrade: func(ctx context.Context, old playerStateV3) (playerStateV3, error) {
				old.Level = 10
				return old, nil
			},
		},
		{
			FromVersion: 2,
			Upgrade: func(ctx context.Context, old playerStateV3) (playerStateV3, error) {
				old.Level += 5
				return old, nil
			},
		},
	}

	var (
		postLoaded []playerStateV3
		migrations [][2]uint32
	)

	hooks := testHooks(&postLoaded)
	hooks.OnSchemaMigrated = func(ctx context.Context, from, to uint32) {
		migrations = append(migrations, [2]uint32{from, to})
	}

	outcome, err := Restore[playerStateV3](context.Background(), id, store, codec,
		NoneCompressor(), SchemaRange{Min: 1, Max: 3}, migrators, hooks, nil,
		func(ctx context.Context, payload playerStateV3) error { return nil })

	require.NoError(t, err)
	require.Equal(t, 15, outcome.Payload.Level)
	require.Equal(t, [][2]uint32{{1, 2}, {2, 3}}, migrations)
}

func TestRestorePropagatesDecodeError(t *testing.T) {
	store := newFakeStore()
	codec := newPlayerCodec()
	id := entityid.EntityId{Kind: "Player", Value: 5}

	store.records[id] = Record{
		Payload:       []byte{0x01, 0x02}, // too short / not a valid frame
		SchemaVersion: 3,
		PersistedAt:   time.Now(),
	}

	var postLoaded []playerStateV3

	_, err := Restore[playerStateV3](context.Background(), id, store, codec,
		NoneCompressor(), SchemaRange{Min: 1, Max: 3}, nil, testHooks(&postLoaded), nil,
		func(ctx context.Context, payload playerStateV3) error { return nil })

	require.Error(t, err)
}
