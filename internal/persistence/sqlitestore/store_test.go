package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/persistence"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	dbPath := filepath.Join(t.TempDir(), "snapshots.db")

	store, err := Open(Config{DatabaseFileName: dbPath})
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return store
}

func TestStoreLoadMissingReturnsErrNoRecord(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Load(context.Background(), entityid.EntityId{Kind: "Player", Value: 1})
	require.ErrorIs(t, err, persistence.ErrNoRecord)
}

func TestStoreSaveThenLoadRoundTrips(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	id := entityid.EntityId{Kind: "Player", Value: 7}

	persistedAt := time.Now().Truncate(time.Millisecond)
	rec := persistence.Record{
		Payload:       []byte{1, 2, 3, 4},
		Compression:   persistence.CompressionZstd,
		SchemaVersion: 5,
		PersistedAt:   persistedAt,
		IsFinal:       true,
	}

	require.NoError(t, store.Save(ctx, id, rec))

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.Equal(t, rec.Payload, loaded.Payload)
	require.Equal(t, rec.Compression, loaded.Compression)
	require.Equal(t, rec.SchemaVersion, loaded.SchemaVersion)
	require.True(t, rec.PersistedAt.Equal(loaded.PersistedAt))
	require.True(t, loaded.IsFinal)
}

func TestStoreSaveOverwritesExistingRecord(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	id := entityid.EntityId{Kind: "Player", Value: 9}

	require.NoError(t, store.Save(ctx, id, persistence.Record{
		Payload: []byte("first"), SchemaVersion: 1, PersistedAt: time.Now(),
	}))

	require.NoError(t, store.Save(ctx, id, persistence.Record{
		Payload: []byte("second"), SchemaVersion: 2, PersistedAt: time.Now(),
		IsFinal: true,
	}))

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), loaded.Payload)
	require.EqualValues(t, 2, loaded.SchemaVersion)
	require.True(t, loaded.IsFinal)
}

func TestStoreDistinguishesEntitiesByKindAndValue(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a := entityid.EntityId{Kind: "Player", Value: 1}
	b := entityid.EntityId{Kind: "Npc", Value: 1}

	require.NoError(t, store.Save(ctx, a, persistence.Record{
		Payload: []byte("a"), PersistedAt: time.Now(),
	}))
	require.NoError(t, store.Save(ctx, b, persistence.Record{
		Payload: []byte("b"), PersistedAt: time.Now(),
	}))

	loadedA, err := store.Load(ctx, a)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), loadedA.Payload)

	loadedB, err := store.Load(ctx, b)
	require.NoError(t, err)
	require.Equal(t, []byte("b"), loadedB.Payload)
}
