// Package thread implements the VM's cooperative green-thread scheduler
// and monitors (spec.md §4.F). There is no host OS thread per Java thread:
// a fixed bytecode quantum drives round-robin scheduling between dispatch
// steps, and the interpreter loop never suspends mid-bytecode.
//
// Frame/stack shape is grounded on other_examples' daimatz-gojvm
// interpreter.go (Frame, executeMethod's register loop, stack-depth guard);
// the scheduler state machine and monitor semantics below follow spec.md
// §4.F's textual description directly, since nothing in the retrieval pack
// runs a cooperative scheduler of its own.
package thread

import (
	"time"

	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/frame"
)

// Status is a thread's scheduling state (spec.md §4.F).
type Status int

const (
	Runnable Status = iota
	Sleeping
	Waiting
	Blocked
	Suspended
	Terminated
)

func (s Status) String() string {
	switch s {
	case Runnable:
		return "RUNNABLE"
	case Sleeping:
		return "SLEEPING"
	case Waiting:
		return "WAITING"
	case Blocked:
		return "BLOCKED"
	case Suspended:
		return "SUSPENDED"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Thread is one green thread: its own operand-stack region plus scheduling
// bookkeeping (spec.md §3 Thread).
type Thread struct {
	ID     int64
	Name   string
	Daemon bool

	Stack  *frame.Stack
	Status Status

	WakeAt      time.Time // valid while Status == Sleeping
	Interrupted bool

	PendingException cell.Ref

	// Peer is the java.lang.Thread instance backing this green thread, set
	// once by internal/vm at spawn time. Thread.currentThread() returns it.
	Peer cell.Ref

	// BlockedOn/WaitingOn name the monitor this thread is queued on, for
	// Blocked/Waiting respectively; nil otherwise.
	BlockedOn *Monitor
	WaitingOn *Monitor
	// savedReentry holds the reentry count to restore when a wait() call
	// re-acquires its monitor, and waitReentryPending marks that a restore
	// (rather than a fresh Reentry=1) is owed the next time this thread is
	// granted ownership (spec.md §4.F "on resume, re-acquire to the saved
	// reentry").
	savedReentry       int
	waitReentryPending bool

	// Next threads the run/wait/lock queues this thread currently occupies
	// (spec.md §3 "intrusive next-pointer for run/wait/lock queues").
	Next *Thread
}

// Monitor is the mutual-exclusion record lazily associated with an object
// on first synchronize (spec.md §3 Monitor, §4.F).
type Monitor struct {
	Owner    *Thread
	Reentry  int
	lockHead *Thread // queue of BLOCKED entrants awaiting ownership
	lockTail *Thread
	waitHead *Thread // queue of WAITING threads
	waitTail *Thread
}

func enqueue(head, tail **Thread, t *Thread) {
	t.Next = nil
	if *head == nil {
		*head = t
		*tail = t
		return
	}
	(*tail).Next = t
	*tail = t
}

func dequeue(head, tail **Thread) *Thread {
	t := *head
	if t == nil {
		return nil
	}
	*head = t.Next
	if *head == nil {
		*tail = nil
	}
	t.Next = nil
	return t
}

// Acquire implements monitor_acquire (spec.md §4.F). On success (owner was
// free, or t already owns it) it returns true. Otherwise t is enqueued on
// the lock queue, marked Blocked, and false is returned so the interpreter
// reschedules.
func (m *Monitor) Acquire(t *Thread) bool {
	if m.Owner == nil {
		m.Owner = t
		m.Reentry = 1
		return true
	}
	if m.Owner == t {
		m.Reentry++
		return true
	}
	t.Status = Blocked
	t.BlockedOn = m
	enqueue(&m.lockHead, &m.lockTail, t)
	return false
}

// grant hands ownership of m to t, restoring its saved reentry count if it
// got here via a wait() re-acquire rather than fresh contention.
func (m *Monitor) grant(t *Thread) {
	t.BlockedOn = nil
	t.Status = Runnable
	m.Owner = t
	if t.waitReentryPending {
		m.Reentry = t.savedReentry
		t.waitReentryPending = false
	} else {
		m.Reentry = 1
	}
}

// Release implements monitor_release: decrement reentry, and at zero hand
// ownership to the head of the lock queue, making it Runnable.
func (m *Monitor) Release() {
	if m.Owner == nil {
		return
	}
	m.Reentry--
	if m.Reentry > 0 {
		return
	}
	m.Owner = nil
	next := dequeue(&m.lockHead, &m.lockTail)
	if next == nil {
		return
	}
	m.grant(next)
}

// Wait implements wait(obj, timeout): t must already own m. Its reentry
// count is saved, it moves to the wait queue and releases ownership; once
// notified and granted the monitor again (via Release's queue walk), its
// saved reentry count is restored instead of starting over at 1.
func (m *Monitor) Wait(t *Thread, timeout time.Duration) {
	t.savedReentry = m.Reentry
	t.waitReentryPending = true
	m.Owner = nil
	next := dequeue(&m.lockHead, &m.lockTail)
	if next != nil {
		m.grant(next)
	}

	t.Status = Waiting
	t.WaitingOn = m
	enqueue(&m.waitHead, &m.waitTail, t)
	if timeout > 0 {
		t.WakeAt = time.Now().Add(timeout)
	}
}

// Notify moves one waiter from the wait queue to the lock queue.
func (m *Monitor) Notify() {
	t := dequeue(&m.waitHead, &m.waitTail)
	if t == nil {
		return
	}
	t.WaitingOn = nil
	t.Status = Blocked
	t.BlockedOn = m
	enqueue(&m.lockHead, &m.lockTail, t)
}

// NotifyAll moves every waiter from the wait queue to the lock queue.
func (m *Monitor) NotifyAll() {
	for {
		t := dequeue(&m.waitHead, &m.waitTail)
		if t == nil {
			return
		}
		t.WaitingOn = nil
		t.Status = Blocked
		t.BlockedOn = m
		enqueue(&m.lockHead, &m.lockTail, t)
	}
}

// Interrupt sets the interrupted flag; a Sleeping or Waiting thread moves
// to Runnable with a pending InterruptedException left for the interpreter
// to raise on its next dispatch (spec.md §4.F "Cancellation").
func (t *Thread) Interrupt(interruptedException cell.Ref) {
	t.Interrupted = true
	if t.Status == Sleeping || t.Status == Waiting {
		if t.Status == Waiting && t.WaitingOn != nil {
			// Threads mid-wait are simply moved to Runnable directly,
			// bypassing the lock queue: interrupt is documented to resume
			// the thread immediately rather than make it re-contend.
			t.WaitingOn = nil
		}
		t.Status = Runnable
		t.PendingException = interruptedException
	}
}

// Scheduler runs a fixed-quantum round-robin rotation over every thread
// registered with it (spec.md §4.F).
type Scheduler struct {
	Quantum int // bytecode-dispatch steps per timeslice

	threads     []*Thread
	cur         int
	nonDaemonCount int
	liveCount   int
}

func NewScheduler(quantum int) *Scheduler {
	return &Scheduler{Quantum: quantum}
}

// Spawn registers a new thread as Runnable.
func (s *Scheduler) Spawn(t *Thread) {
	t.Status = Runnable
	s.threads = append(s.threads, t)
	s.liveCount++
	if !t.Daemon {
		s.nonDaemonCount++
	}
}

// wakeSleepers promotes every Sleeping thread whose wake time has passed.
func (s *Scheduler) wakeSleepers(now time.Time) {
	for _, t := range s.threads {
		if t.Status == Sleeping && !t.WakeAt.After(now) {
			t.Status = Runnable
		}
	}
}

// earliestWake returns the nearest future wake time among Sleeping threads,
// and whether any exist.
func (s *Scheduler) earliestWake() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, t := range s.threads {
		if t.Status != Sleeping {
			continue
		}
		if !found || t.WakeAt.Before(earliest) {
			earliest = t.WakeAt
			found = true
		}
	}
	return earliest, found
}

// Next picks the next Runnable thread round-robin, blocking on the host
// clock if none is currently runnable but some thread is Sleeping (spec.md
// §4.F scheduler loop). It returns nil once every non-daemon thread has
// terminated.
func (s *Scheduler) Next() *Thread {
	for {
		if s.nonDaemonCount <= 0 {
			return nil
		}

		s.wakeSleepers(time.Now())

		n := len(s.threads)
		for i := 0; i < n; i++ {
			idx := (s.cur + i) % n
			t := s.threads[idx]
			if t.Status == Runnable {
				s.cur = (idx + 1) % n
				return t
			}
		}

		wake, ok := s.earliestWake()
		if !ok {
			// Nothing runnable and nothing sleeping: every live thread is
			// blocked or waiting with no timeout, which is a deadlock the
			// VM can't resolve on its own; report no runnable thread.
			return nil
		}
		idleWait(wake)
	}
}

// idleWait blocks the host until `until` (spec.md §4.F "block until the
// earliest wake time"). Scheduling is single-goroutine and cooperative, so
// there is exactly one waiter and nothing else to fan in or cancel; a plain
// timer is the whole job.
func idleWait(until time.Time) {
	d := time.Until(until)
	if d <= 0 {
		return
	}
	time.Sleep(d)
}

// Terminate marks a thread Terminated and updates the live/daemon counts
// that Next uses to decide when to exit the VM.
func (s *Scheduler) Terminate(t *Thread) {
	if t.Status == Terminated {
		return
	}
	t.Status = Terminated
	s.liveCount--
	if !t.Daemon {
		s.nonDaemonCount--
	}
}

// LiveCount reports how many registered threads have not yet terminated.
func (s *Scheduler) LiveCount() int { return s.liveCount }

// Walk visits every thread ever registered with this scheduler, terminated
// ones included, so a caller that wants only live roots must filter on
// Status itself. Used by the collector to enumerate every thread's stack as
// a GC root (spec.md §4.G).
func (s *Scheduler) Walk(fn func(*Thread)) {
	for _, t := range s.threads {
		fn(t)
	}
}
