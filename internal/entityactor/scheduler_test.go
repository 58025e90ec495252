package entityactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestSchedulerFIFOTieBreak verifies that two tasks scheduled for the same
// deadline fire in insertion order.
func TestSchedulerFIFOTieBreak(t *testing.T) {
	t.Parallel()

	var order []int

	wake := make(chan struct{}, 8)
	s := NewScheduler(func() { wake <- struct{}{} })

	deadline := time.Now().Add(20 * time.Millisecond)
	for i := 0; i < 3; i++ {
		i := i
		s.Schedule(deadline, func(time.Time) {
			order = append(order, i)
		})
	}

	select {
	case <-wake:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}

	s.DrainDue(time.Now())

	require.Equal(t, []int{0, 1, 2}, order)
}

// TestSchedulerCancel verifies a cancelled task never runs.
func TestSchedulerCancel(t *testing.T) {
	t.Parallel()

	wake := make(chan struct{}, 8)
	s := NewScheduler(func() { wake <- struct{}{} })

	ran := false
	cancel := s.Schedule(time.Now().Add(10*time.Millisecond),
		func(time.Time) { ran = true })
	cancel.Cancel()

	select {
	case <-wake:
		s.DrainDue(time.Now().Add(time.Second))
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	require.False(t, ran)
}

// TestSchedulerStopCancelsAll verifies Stop cancels every pending task.
func TestSchedulerStopCancelsAll(t *testing.T) {
	t.Parallel()

	s := NewScheduler(func() {})

	tok1 := s.Schedule(time.Now().Add(time.Hour), func(time.Time) {})
	tok2 := s.Schedule(time.Now().Add(2*time.Hour), func(time.Time) {})

	s.Stop()

	require.True(t, tok1.IsCancelled())
	require.True(t, tok2.IsCancelled())
}
