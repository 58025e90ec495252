package entityactor

import (
	"math/rand"
	"time"
)

// AutoShutdownPolicy governs whether, and after how long, an entity
// self-requests shutdown once it has no remaining watchers/subscribers
// (spec.md §4.7, §8 property 6, §8 scenario S4).
type AutoShutdownPolicy struct {
	// kind selects the policy's behavior; zero value is Never.
	kind autoShutdownKind

	// linger is the base delay after the last subscriber leaves before
	// shutdown is requested.
	linger time.Duration

	// jitter adds up to +/- jitter/2 of random spread to linger so that
	// many entities losing their last subscriber at the same instant
	// (e.g. on a node loss fan-out) don't all request shutdown in lockstep.
	jitter time.Duration
}

type autoShutdownKind int

const (
	autoShutdownNever autoShutdownKind = iota
	autoShutdownNoSubscribersAfter
)

// Never disables auto-shutdown entirely: the entity lives until explicitly
// asked to stop.
func Never() AutoShutdownPolicy {
	return AutoShutdownPolicy{kind: autoShutdownNever}
}

// NoSubscribersAfter requests shutdown linger (+/- jitter/2) after the
// entity's subscriber count drops to zero, provided it hasn't regained a
// subscriber in the meantime. The timer is armed only when a subscriber
// leaves: there is no initial delay from entity start, and an entity that
// never gains a subscriber is never shut down by this policy.
func NoSubscribersAfter(linger, jitter time.Duration) AutoShutdownPolicy {
	return AutoShutdownPolicy{
		kind:   autoShutdownNoSubscribersAfter,
		linger: linger,
		jitter: jitter,
	}
}

func (p AutoShutdownPolicy) deadline(now time.Time) time.Time {
	wait := p.linger
	if p.jitter > 0 {
		spread := time.Duration(rand.Int63n(int64(p.jitter))) - p.jitter/2
		wait += spread
		if wait < 0 {
			wait = 0
		}
	}

	return now.Add(wait)
}

// autoShutdownState tracks live subscriber count and arms/disarms a single
// scheduled task on the entity's own Scheduler as that count crosses zero.
type autoShutdownState struct {
	policy      AutoShutdownPolicy
	scheduler   *Scheduler
	subscribers int
	cancel      *CancelToken
	onExpire    func()
}

func newAutoShutdownState(policy AutoShutdownPolicy, scheduler *Scheduler,
	onExpire func(),
) *autoShutdownState {

	return &autoShutdownState{
		policy:    policy,
		scheduler: scheduler,
		onExpire:  onExpire,
	}
}

// SubscriberAdded records a new subscriber and disarms any pending
// shutdown timer.
func (a *autoShutdownState) SubscriberAdded() {
	a.subscribers++

	if a.cancel != nil {
		a.cancel.Cancel()
		a.cancel = nil
	}
}

// SubscriberRemoved records a subscriber departing and, once the count
// reaches zero, arms the policy's linger timer.
func (a *autoShutdownState) SubscriberRemoved() {
	if a.subscribers > 0 {
		a.subscribers--
	}

	if a.subscribers > 0 || a.policy.kind != autoShutdownNoSubscribersAfter {
		return
	}

	a.cancel = a.scheduler.Schedule(a.policy.deadline(time.Now()),
		func(time.Time) {
			if a.subscribers == 0 {
				a.onExpire()
			}
		})
}
