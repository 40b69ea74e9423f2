package reactor

import "time"

// SchedulerRemoteReadyOption tells ProcessRemoteReady why it is being
// invoked: after draining the remote task queue, or after a kernel wait
// returned because of a wake rather than fd readiness. The scheduler may
// use this to decide how aggressively to re-check its own ready queue.
type SchedulerRemoteReadyOption int

const (
	// RemoteReadyAfterTasks indicates the call follows a remote task queue
	// drain.
	RemoteReadyAfterTasks SchedulerRemoteReadyOption = iota
	// RemoteReadyAfterWake indicates the call follows a wake-triggered
	// return from the kernel wait.
	RemoteReadyAfterWake
)

// Scheduler is the cooperative-fiber collaborator the reactor's run loop
// drives. Fiber stacks, scheduling policy, and the pool that owns one
// Reactor per worker thread are entirely the scheduler's concern; the
// reactor only needs these six operations to decide what to run and how
// long it may safely block.
type Scheduler interface {
	// ProcessRemoteReady lets the scheduler pull fibers made ready by
	// another thread into its own local ready queue.
	ProcessRemoteReady(opt SchedulerRemoteReadyOption)

	// HasReady reports whether at least one fiber is ready to run right
	// now, which determines whether the reactor may block at all this
	// iteration.
	HasReady() bool

	// RunWorkerFibersStep resumes ready fibers until none remain runnable
	// without blocking, and reports whether it did any work.
	RunWorkerFibersStep() bool

	// HasSleepingFibers reports whether any fiber is parked on a timer,
	// which determines whether the reactor's kernel wait needs a bounded
	// timeout at all.
	HasSleepingFibers() bool

	// NextSleepPoint returns the earliest wake time among sleeping fibers.
	// Only meaningful when HasSleepingFibers is true.
	NextSleepPoint() time.Time

	// DestroyTerminated reclaims fibers that finished running, called from
	// the idle path once no ready work remains.
	DestroyTerminated()
}
