package entityactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestAutoShutdownArmsAfterLastSubscriberLeaves verifies the NoSubscribersAfter
// policy only fires once the subscriber count reaches zero and stays there.
func TestAutoShutdownArmsAfterLastSubscriberLeaves(t *testing.T) {
	t.Parallel()

	wake := make(chan struct{}, 8)
	scheduler := NewScheduler(func() { wake <- struct{}{} })

	expired := make(chan struct{}, 1)
	state := newAutoShutdownState(
		NoSubscribersAfter(10*time.Millisecond, 0),
		scheduler,
		func() { expired <- struct{}{} },
	)

	state.SubscriberAdded()
	state.SubscriberAdded()
	state.SubscriberRemoved()

	select {
	case <-expired:
		t.Fatal("should not expire immediately: subscriber count still > 0")
	default:
	}

	state.SubscriberRemoved()

	select {
	case <-wake:
		scheduler.DrainDue(time.Now().Add(time.Second))
	case <-time.After(time.Second):
		t.Fatal("timer never armed")
	}

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("onExpire never called")
	}
}

// TestAutoShutdownDisarmsOnRegain verifies a new subscriber cancels a
// pending shutdown timer.
func TestAutoShutdownDisarmsOnRegain(t *testing.T) {
	t.Parallel()

	scheduler := NewScheduler(func() {})

	expired := make(chan struct{}, 1)
	state := newAutoShutdownState(
		NoSubscribersAfter(5*time.Millisecond, 0),
		scheduler,
		func() { expired <- struct{}{} },
	)

	state.SubscriberAdded()
	state.SubscriberRemoved()
	require.NotNil(t, state.cancel)

	state.SubscriberAdded()
	require.Nil(t, state.cancel)

	select {
	case <-expired:
		t.Fatal("should not fire: subscriber regained before deadline")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestAutoShutdownNever verifies the Never policy never arms.
func TestAutoShutdownNever(t *testing.T) {
	t.Parallel()

	scheduler := NewScheduler(func() {})

	state := newAutoShutdownState(Never(), scheduler, func() {
		t.Fatal("Never policy must not expire")
	})

	state.SubscriberAdded()
	state.SubscriberRemoved()

	require.Nil(t, state.cancel)
}
