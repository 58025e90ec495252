package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entityrt/entityrt/internal/entityid"
)

// SchemaRange bounds the persisted schema versions a payload type accepts
// (spec.md §4.8). A blob older than Min is treated as unreadable and the
// entity starts fresh; a blob older than Max but at least Min is migrated
// forward through the registered Migrators before PostLoad runs.
type SchemaRange struct {
	Min uint32
	Max uint32
}

// Migrator upgrades a payload from one schema version to the next. Chains
// of Migrators are applied in order; each must leave the payload at
// exactly FromVersion+1.
type Migrator[P any] struct {
	FromVersion uint32
	Upgrade     func(ctx context.Context, old P) (P, error)
}

// Hooks is the set of callbacks a persisted entity's state type supplies to
// Restore, mirroring the PersistedEntityActor lifecycle spec.md §4.8
// describes.
type Hooks[P any] struct {
	// InitializeNew builds a fresh payload when no usable persisted blob
	// exists (either none was ever saved, or its version predates
	// SchemaRange.Min).
	InitializeNew func(ctx context.Context) (P, error)

	// PostLoad runs once the payload is in its final (current-version)
	// form, whether it was freshly initialized, loaded verbatim, or
	// migrated forward. elapsedSince is zero for a fresh payload.
	PostLoad func(ctx context.Context, payload P, persistedAt time.Time,
		elapsedSince time.Duration) error

	// OnBeforeSchemaMigration, if set, runs immediately before each
	// migration step.
	OnBeforeSchemaMigration func(ctx context.Context, fromVersion uint32)

	// OnSchemaMigrated, if set, runs immediately after each migration
	// step succeeds.
	OnSchemaMigrated func(ctx context.Context, fromVersion, toVersion uint32)
}

// MetricsRecorder is an optional hook for counting restore-path events that
// internal/metrics cares about (non-final restores, schema migrations). A
// nil MetricsRecorder disables counting.
type MetricsRecorder interface {
	RecordNonFinalRestore(id entityid.EntityId)
	RecordSchemaMigration(id entityid.EntityId, fromVersion, toVersion uint32)
}

// Outcome is the end state Restore hands back, enough for a caller's own
// Controller to seed its periodic/scheduled persist bookkeeping.
type Outcome[P any] struct {
	Payload     P
	WasFresh    bool
	PersistedAt time.Time
}

// Restore implements spec.md §4.8's Restore algorithm: load id's persisted
// record (if any), decompress and decode it, migrate it forward through
// migrators up to range.Max, or fall back to hooks.InitializeNew when
// there is no usable blob at all (either none exists, or its version
// predates range.Min). It persists once, through persistFresh, whenever it
// had to synthesize a payload rather than load one verbatim.
//
// codec and compressor must be the same ones the entity's Controller uses
// to persist, or PeekTypeCode/Decompress will reject blobs they didn't
// write.
func Restore[P any](ctx context.Context, id entityid.EntityId, store Store,
	codec Codec, compressor Compressor, rnge SchemaRange, migrators []Migrator[P],
	hooks Hooks[P], metrics MetricsRecorder, persistFresh func(ctx context.Context, payload P) error,
) (Outcome[P], error) {

	rec, err := store.Load(ctx, id)

	switch {
	case errors.Is(err, ErrNoRecord):
		return restoreFresh(ctx, hooks, persistFresh)

	case err != nil:
		return Outcome[P]{}, fmt.Errorf("persistence: load %s: %w", id, err)

	case rec.SchemaVersion < rnge.Min:
		log.Warnf("persistence: %s persisted schema %d below minimum %d, "+
			"reinitializing", id, rec.SchemaVersion, rnge.Min)

		return restoreFresh(ctx, hooks, persistFresh)
	}

	if !rec.IsFinal && metrics != nil {
		metrics.RecordNonFinalRestore(id)
	}

	decomp, err := compressorFor(rec.Compression, compressor)
	if err != nil {
		return Outcome[P]{}, err
	}

	raw, err := decomp.Decompress(rec.Payload)
	if err != nil {
		return Outcome[P]{}, fmt.Errorf("persistence: decompress %s: %w", id, err)
	}

	decoded, err := codec.Decode(raw)
	if err != nil {
		return Outcome[P]{}, fmt.Errorf("persistence: decode %s: %w", id, err)
	}

	payload, ok := decoded.(P)
	if !ok {
		return Outcome[P]{}, fmt.Errorf(
			"persistence: decoded payload for %s has unexpected type %T", id, decoded)
	}

	version := rec.SchemaVersion
	for _, m := range migrators {
		if version >= rnge.Max {
			break
		}
		if m.FromVersion != version {
			continue
		}

		if hooks.OnBeforeSchemaMigration != nil {
			hooks.OnBeforeSchemaMigration(ctx, version)
		}

		payload, err = m.Upgrade(ctx, payload)
		if err != nil {
			return Outcome[P]{}, fmt.Errorf(
				"persistence: migrate %s from schema %d: %w", id, version, err)
		}

		next := version + 1
		if hooks.OnSchemaMigrated != nil {
			hooks.OnSchemaMigrated(ctx, version, next)
		}
		if metrics != nil {
			metrics.RecordSchemaMigration(id, version, next)
		}

		version = next
	}

	elapsed := time.Since(rec.PersistedAt)
	if err := hooks.PostLoad(ctx, payload, rec.PersistedAt, elapsed); err != nil {
		return Outcome[P]{}, fmt.Errorf("persistence: PostLoad %s: %w", id, err)
	}

	return Outcome[P]{Payload: payload, PersistedAt: rec.PersistedAt}, nil
}

func restoreFresh[P any](ctx context.Context, hooks Hooks[P],
	persistFresh func(ctx context.Context, payload P) error,
) (Outcome[P], error) {

	payload, err := hooks.InitializeNew(ctx)
	if err != nil {
		return Outcome[P]{}, fmt.Errorf("persistence: InitializeNew: %w", err)
	}

	if err := hooks.PostLoad(ctx, payload, time.Time{}, 0); err != nil {
		return Outcome[P]{}, fmt.Errorf("persistence: PostLoad (fresh): %w", err)
	}

	if err := persistFresh(ctx, payload); err != nil {
		return Outcome[P]{}, fmt.Errorf("persistence: initial persist: %w", err)
	}

	return Outcome[P]{Payload: payload, WasFresh: true, PersistedAt: time.Time{}}, nil
}
