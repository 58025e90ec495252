package entityactor

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// CancelToken short-circuits a scheduled task if it fires before the task's
// handler starts running. In-flight handlers are never cancelled once
// started (spec.md §5 Cancellation).
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken creates a fresh, uncancelled token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel marks the token as cancelled. Safe to call more than once and
// concurrently.
func (c *CancelToken) Cancel() {
	c.cancelled.Store(true)
}

// IsCancelled reports whether Cancel has been called.
func (c *CancelToken) IsCancelled() bool {
	return c.cancelled.Load()
}

// scheduledTask is one entry in the Scheduler's min-heap, ordered by
// (deadline, seq) so that two tasks scheduled for the same deadline still
// fire in FIFO insertion order (spec.md §3 invariant, §8 property 4).
type scheduledTask struct {
	deadline time.Time
	seq      uint64
	op       func(now time.Time)
	cancel   *CancelToken
	index    int
}

type taskHeap []*scheduledTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}

	return h[i].deadline.Before(h[j].deadline)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*scheduledTask)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]

	return t
}

// Scheduler implements the ScheduleExecuteOnActor primitive (spec.md §4.3): a
// per-actor min-heap of deadline-ordered tasks with a single "wake" timer
// armed for the earliest deadline not yet scheduled. The timer callback runs
// on its own goroutine and only ever calls onWake, which is expected to post
// a message back onto the owning actor's mailbox so the actual draining
// happens on that actor's single-threaded loop — the heap mutations
// themselves are protected by mu, but task bodies never run while mu is
// held (spec.md §5 Locking).
type Scheduler struct {
	mu       sync.Mutex
	tasks    taskHeap
	nextSeq  uint64
	timer    *time.Timer
	armedFor time.Time
	hasArm   bool
	stopped  bool
	onWake   func()
	now      func() time.Time
}

// NewScheduler creates a Scheduler that calls onWake (typically: Tell a wake
// envelope to the owning actor) whenever the earliest pending deadline is
// reached.
func NewScheduler(onWake func()) *Scheduler {
	return &Scheduler{onWake: onWake, now: time.Now}
}

// Schedule enqueues op to run at or after deadline, returning a CancelToken
// the caller can use to short-circuit it before it starts. Arming at a
// deadline that's already the earliest armed deadline is a no-op (dedup by
// tick).
func (s *Scheduler) Schedule(deadline time.Time,
	op func(now time.Time),
) *CancelToken {

	cancel := NewCancelToken()

	s.mu.Lock()
	s.nextSeq++
	task := &scheduledTask{
		deadline: deadline,
		seq:      s.nextSeq,
		op:       op,
		cancel:   cancel,
	}
	heap.Push(&s.tasks, task)
	needsRearm := !s.hasArm || deadline.Before(s.armedFor)
	s.mu.Unlock()

	if needsRearm {
		s.rearm(deadline)
	}

	return cancel
}

func (s *Scheduler) rearm(deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if s.hasArm && !deadline.Before(s.armedFor) {
		// Already armed for an earlier or equal deadline.
		return
	}

	if s.timer != nil {
		s.timer.Stop()
	}

	s.armedFor = deadline
	s.hasArm = true

	wait := time.Until(deadline)
	if wait < 0 {
		wait = 0
	}

	s.timer = time.AfterFunc(wait, s.onWake)
}

// DrainDue runs every task whose deadline is <= now, in (deadline, seq)
// order, skipping cancelled tokens, then re-arms for the next earliest
// pending deadline (if any). Firing early (e.g. during scheduler shutdown
// races) is tolerated: tasks whose deadline is still in the future are left
// in the heap and the timer is simply re-armed again. Must be called from
// the owning actor's single-threaded loop.
func (s *Scheduler) DrainDue(now time.Time) {
	var due []*scheduledTask

	s.mu.Lock()
	for len(s.tasks) > 0 && !s.tasks[0].deadline.After(now) {
		due = append(due, heap.Pop(&s.tasks).(*scheduledTask))
	}
	s.hasArm = false

	var nextDeadline time.Time
	hasNext := len(s.tasks) > 0
	if hasNext {
		nextDeadline = s.tasks[0].deadline
	}
	s.mu.Unlock()

	for _, task := range due {
		if task.cancel.IsCancelled() {
			continue
		}

		task.op(now)
	}

	if hasNext {
		s.rearm(nextDeadline)
	}
}

// Stop cancels every pending task (marking their tokens cancelled and
// dropping them, so their ops never run; a future returned by
// ScheduleExecuteOnActor for such a task is never completed) and disarms
// the wake timer. Used during entity shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}

	for _, task := range s.tasks {
		task.cancel.Cancel()
	}
	s.tasks = nil
}
