package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/entityrt/entityrt/internal/entityid"
)

// Record is the unit a Store persists and loads, one row per entity
// (spec.md §6). Payload is the already Codec-encoded and Compressor-wrapped
// blob; Store implementations never need to understand its contents.
type Record struct {
	Payload       []byte
	Compression   CompressionAlgorithm
	SchemaVersion uint32
	PersistedAt   time.Time
	IsFinal       bool
}

// Store is the external persistence backend interface (spec.md §6).
// Implementations must make Save durable before returning successfully;
// Load must return ErrNoRecord (not a zero Record) when id has never been
// persisted, so Restore can distinguish "never persisted" from "persisted
// empty".
type Store interface {
	Load(ctx context.Context, id entityid.EntityId) (Record, error)
	Save(ctx context.Context, id entityid.EntityId, rec Record) error
}

// ErrNoRecord is returned by Store.Load when id has no persisted record.
var ErrNoRecord = errors.New("persistence: no record for entity")
