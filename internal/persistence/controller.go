package persistence

import (
	"context"
	"math/rand"
	"time"

	"github.com/entityrt/entityrt/internal/entityactor"
	"github.com/entityrt/entityrt/internal/entityid"
)

// defaultTickInterval is how often the periodic snapshot check runs
// (spec.md §4.8: "tickInterval ≈ 30 s").
const defaultTickInterval = 30 * time.Second

// defaultMinScheduledInterval is the floor spacing between two
// SchedulePersistState-triggered saves (spec.md §4.8, default 10s).
const defaultMinScheduledInterval = 10 * time.Second

// Controller layers spec.md §4.8's periodic-snapshot, coalesced
// scheduled-persist, and final-persist behavior atop a plain EntityActor,
// using the same ScheduleExecuteOnActor/ContinueTaskOnActor primitives any
// other entity state would. A persisted entity's state type embeds one
// alongside entityactor.Base and drives it from OnInitialize/OnShutdown.
type Controller[P any] struct {
	id         entityid.EntityId
	base       *entityactor.Base
	store      Store
	codec      Codec
	compressor Compressor

	schemaVersion uint32

	tickInterval         time.Duration
	snapshotInterval     time.Duration
	minScheduledInterval time.Duration

	lastPersistedAt time.Time
	scheduledPend   bool

	extraChecks bool

	metrics MetricsRecorder
}

// Config configures a Controller. SnapshotInterval is the staleness
// threshold the periodic tick checks against (spec.md's "now -
// lastPersistedAt > snapshotInterval"); zero disables periodic snapshotting
// entirely (only scheduled and final persists remain active).
type Config struct {
	SchemaVersion        uint32
	SnapshotInterval     time.Duration
	TickInterval         time.Duration
	MinScheduledInterval time.Duration
	ExtraChecks          bool
	Metrics              MetricsRecorder
}

// NewController creates a Controller for id, wiring it to base's scheduler
// for periodic/scheduled persists. lastPersistedAt should be the value
// Restore returned in its Outcome (zero for a freshly-initialized entity).
func NewController[P any](base *entityactor.Base, id entityid.EntityId,
	store Store, codec Codec, compressor Compressor, cfg Config,
	lastPersistedAt time.Time,
) *Controller[P] {

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}

	minSched := cfg.MinScheduledInterval
	if minSched <= 0 {
		minSched = defaultMinScheduledInterval
	}

	c := &Controller[P]{
		id:                   id,
		base:                 base,
		store:                store,
		codec:                codec,
		compressor:           compressor,
		schemaVersion:        cfg.SchemaVersion,
		tickInterval:         tick,
		snapshotInterval:     cfg.SnapshotInterval,
		minScheduledInterval: minSched,
		extraChecks:          cfg.ExtraChecks,
		metrics:              cfg.Metrics,
	}

	c.lastPersistedAt = lastPersistedAt
	if c.lastPersistedAt.IsZero() {
		c.lastPersistedAt = time.Now()
	}

	return c
}

// StartPeriodic arms the jittered periodic snapshot timer (spec.md §4.8:
// initial lastPersistedAt jittered by +/- 0.5 * snapshotInterval to spread
// load across a fleet restart). No-op when SnapshotInterval is zero.
func (c *Controller[P]) StartPeriodic(getPayload func() P) {
	if c.snapshotInterval <= 0 {
		return
	}

	spread := time.Duration(
		(rand.Float64() - 0.5) * float64(c.snapshotInterval))
	c.lastPersistedAt = c.lastPersistedAt.Add(spread)

	c.armNextTick(getPayload)
}

func (c *Controller[P]) armNextTick(getPayload func() P) {
	deadline := time.Now().Add(c.tickInterval)

	_, _ = entityactor.ScheduleExecuteOnActor[struct{}](c.base, deadline,
		func(ctx context.Context) (struct{}, error) {
			if time.Since(c.lastPersistedAt) > c.snapshotInterval {
				if err := c.PersistState(ctx, getPayload(), false); err != nil {
					log.Errorf("persistence: periodic snapshot for %s: %v",
						c.id, err)
				}
			}

			c.armNextTick(getPayload)

			return struct{}{}, nil
		})
}

// SchedulePersistState coalesces: if a scheduled persist is already
// pending, this is a no-op; otherwise it arms a one-shot task no earlier
// than lastPersistedAt + minScheduledInterval (spec.md §4.8).
func (c *Controller[P]) SchedulePersistState(getPayload func() P) {
	if c.scheduledPend {
		return
	}

	c.scheduledPend = true

	earliest := c.lastPersistedAt.Add(c.minScheduledInterval)
	deadline := earliest
	if now := time.Now(); now.After(deadline) {
		deadline = now
	}

	_, _ = entityactor.ScheduleExecuteOnActor[struct{}](c.base, deadline,
		func(ctx context.Context) (struct{}, error) {
			c.scheduledPend = false

			if err := c.PersistState(ctx, getPayload(), false); err != nil {
				log.Errorf("persistence: scheduled persist for %s: %v",
					c.id, err)
			}

			return struct{}{}, nil
		})
}

// PersistState encodes, optionally compresses, and saves payload. final
// marks the record as a clean shutdown snapshot (spec.md §4.8: a crash
// before this call leaves the prior record marked non-final). Call this
// directly (rather than through SchedulePersistState) from OnShutdown with
// final=true.
func (c *Controller[P]) PersistState(ctx context.Context, payload P, final bool) error {
	encoded, err := c.codec.Encode(payload)
	if err != nil {
		return err
	}

	if c.extraChecks {
		if _, err := c.codec.Decode(encoded); err != nil {
			return err
		}
	}

	compressed, err := c.compressor.Compress(encoded)
	if err != nil {
		return err
	}

	now := time.Now()
	rec := Record{
		Payload:       compressed,
		Compression:   c.compressor.Algorithm(),
		SchemaVersion: c.schemaVersion,
		PersistedAt:   now,
		IsFinal:       final,
	}

	if err := c.store.Save(ctx, c.id, rec); err != nil {
		return err
	}

	c.lastPersistedAt = now

	return nil
}
