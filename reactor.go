package reactor

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// Reactor drives one Scheduler on a single OS thread, arbitrating between
// kernel readiness events, a bounded remote task queue, periodic timers,
// and a secondary low-priority task queue. Every exported method that must
// run on the reactor's own goroutine checks that via isReactorThread and
// panics (wrapping ErrWrongThread) otherwise; the exceptions are Submit,
// Wake, Stop and Stats, which are explicitly safe to call from any
// goroutine.
type Reactor struct {
	id int64

	ownerGoroutine atomic.Uint64

	logger         Logger
	metricsEnabled bool
	stats          *Stats

	completions *completionTable
	kpoller     poller
	remoteQ     *remoteTaskQueue
	tqSeq       tqSeqState

	periodics *periodicRegistry

	l2 *queue.Queue

	idleTasks []func()

	armedFDs map[int]int // fd -> completion handle, reactor-thread-only

	maxSpinLimit    int
	taskDrainBudget time.Duration
	notifyQuantum   int
	batchSize       int

	spinLoops int // persists across tick() calls; reset once idleTick commits to a wait

	stopped atomic.Bool

	scheduler Scheduler
}

var nextReactorID atomic.Int64

// New constructs a Reactor and initializes its kernel poller. The Reactor
// is not running until Run is called; no goroutine is registered as the
// owner before then, so the reactor-thread-only methods (Arm, Disarm,
// SchedulePeriodic, CancelPeriodic, SubmitL2, OnIdle) panic with
// ErrWrongThread until Run has started. Tasks passed to Submit run on the
// owner goroutine and may call them.
func New(opts ...ReactorOption) (*Reactor, error) {
	cfg, err := resolveReactorOptions(opts)
	if err != nil {
		return nil, err
	}

	kp, err := newPoller()
	if err != nil {
		return nil, err
	}
	if err := kp.Init(); err != nil {
		return nil, err
	}

	r := &Reactor{
		id:              nextReactorID.Add(1),
		logger:          cfg.logger,
		metricsEnabled:  cfg.metricsEnabled,
		stats:           newStats(),
		completions:     newCompletionTableWithCapacity(cfg.initialCompletionCap),
		kpoller:         kp,
		remoteQ:         newRemoteTaskQueueWithQuantum(remoteTaskQueueCapacity, cfg.notifyQuantum),
		periodics:       newPeriodicRegistry(),
		l2:              queue.New(),
		armedFDs:        make(map[int]int),
		maxSpinLimit:    cfg.maxSpinLimit,
		taskDrainBudget: cfg.taskDrainBudget,
		notifyQuantum:   cfg.notifyQuantum,
		batchSize:       cfg.batchSize,
	}
	return r, nil
}

func (r *Reactor) isReactorThread() bool {
	owner := r.ownerGoroutine.Load()
	if owner == 0 {
		return false
	}
	return getGoroutineID() == owner
}

// getGoroutineID parses the current goroutine's numeric id out of a stack
// trace header; there is no supported API for this, but it is the standard
// idiom for detecting thread-affinity violations without paying for a
// per-call channel round-trip.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

func (r *Reactor) requireReactorThread() {
	if !r.isReactorThread() {
		fatalf(ErrWrongThread, "reactor %d", r.id)
	}
}

// Run drives scheduler until Stop is called or the process decides to
// exit; it must be called from exactly one goroutine, which becomes this
// Reactor's owner thread for the remainder of its life.
func (r *Reactor) Run(scheduler Scheduler) error {
	if r.ownerGoroutine.Load() != 0 {
		fatalf(ErrAlreadyInitialized, "reactor %d: Run called twice", r.id)
	}
	r.scheduler = scheduler
	r.ownerGoroutine.Store(getGoroutineID())
	defer r.ownerGoroutine.Store(0)

	for !r.stopped.Load() {
		r.tick()
	}

	snap := r.stats.Snapshot()
	r.logf(LogInfo, "loop exit: loops=%d stalls=%d cqe_fetches=%d suspends=%d wakeups=%d task_int=%d",
		snap.LoopCount, snap.Stalls, snap.CompletionsFetched, snap.Suspends, snap.WakeEvents, snap.TaskInterrupts)

	return nil
}

// tick is one run-loop iteration: drain remote tasks, let the scheduler
// absorb newly-ready fibers, run whatever is locally ready, and — only if
// nothing is ready — snapshot the task sequence, compute a bounded wait,
// block in the kernel, and dispatch what came back (idleTick). L2 tasks run every
// iteration regardless of which of those paths was taken.
func (r *Reactor) tick() {
	r.stats.LoopCount.Add(1)

	r.drainRemoteTasks()
	r.scheduler.ProcessRemoteReady(RemoteReadyAfterTasks)

	fiberDidWork := r.scheduler.RunWorkerFibersStep()
	if fiberDidWork {
		r.stats.FiberSteps.Add(1)
	}

	if r.scheduler.HasReady() {
		r.pollAndDispatch(0)
	} else {
		r.idleTick(fiberDidWork)
	}

	r.runL2Tasks()
}

// drainRemoteTasks pops and runs queued closures until the queue is empty
// or taskDrainBudget elapses, whichever comes first, so a burst of remote
// submissions cannot starve fd readiness or timers. Every notifyQuantum
// tasks, and once more when the drain ends, it wakes producers parked in
// PushBlocking on a full queue.
func (r *Reactor) drainRemoteTasks() {
	deadline := time.Now().Add(r.taskDrainBudget)
	var drained uint64
	for {
		task, ok := r.remoteQ.Pop()
		if !ok {
			break
		}
		r.safeExecute(task)
		drained++
		if r.metricsEnabled {
			r.stats.observeTaskRun(time.Now())
		} else {
			r.stats.TaskRuns.Add(1)
		}
		if drained%r.remoteQ.notifyQuantum == 0 {
			r.remoteQ.notifyAvailable()
		}
		if time.Now().After(deadline) {
			r.stats.TaskInterrupts.Add(1)
			break
		}
	}
	if drained > 0 {
		r.remoteQ.notifyAvailable()
	}
}

// idleTick handles the case where the scheduler has no runnable fiber: it
// spins up to maxSpinLimit cheap re-checks of HasReady and the remote queue
// (yielding with runtime.Gosched between them, and doing one zero-timeout
// poll as soon as work shows up), then commits to a real kernel wait
// bounded by the earliest sleeping fiber's wake time, if any. fiberDidWork
// carries whether this tick's RunWorkerFibersStep call actually ran
// something, since housekeeping (OnIdle callbacks, terminated-fiber reclaim)
// is only safe to run once nothing at all happened this iteration.
//
// The parking decision follows the eventcount pattern exactly: snapshot
// tqSeq, CAS the snapshot into the wait section, and on success re-check
// the queue and scheduler once more, all within this one function with no
// other tick's work interleaved. A producer's TryPush bumps tqSeq on every
// successful push (tqSeqState.producerNotify), so any push landing after
// the snapshot below invalidates the CAS below it; a push landing in the
// narrow window between a successful CAS and the blocking wait is instead
// caught by the direct re-check just after the CAS.
func (r *Reactor) idleTick(fiberDidWork bool) {
	for r.spinLoops < r.maxSpinLimit {
		if r.scheduler.HasReady() || !r.remoteQ.isEmptyHint() {
			r.spinLoops = 0
			r.pollAndDispatch(0)
			return
		}
		r.spinLoops++
		runtime.Gosched()
	}
	r.spinLoops = 0

	seq := r.tqSeq.snapshot()
	timeoutMs := r.calculateTimeout()

	parked := r.tqSeq.tryPark(seq)
	switch {
	case !parked:
		// A producer's push bumped tqSeq since the snapshot above; don't
		// block, since whatever it pushed may still be waiting.
		timeoutMs = 0
	case r.scheduler.HasReady() || !r.remoteQ.isEmptyHint():
		// The CAS succeeded, but a task or ready fiber is already visible:
		// it landed in the gap between the snapshot and the CAS itself
		// without yet reaching the point of calling producerNotify. tqSeq
		// stays at waitSectionState; wake() below resets it regardless of
		// how pollAndDispatch returns.
		timeoutMs = 0
	default:
		r.stats.Stalls.Add(1)
	}

	idleStart := time.Now()
	r.stats.Suspends.Add(1)
	n := r.pollAndDispatch(timeoutMs)
	r.tqSeq.wake()
	if n == 0 && r.metricsEnabled {
		r.stats.observeIdle(time.Since(idleStart))
	}
	r.scheduler.ProcessRemoteReady(RemoteReadyAfterWake)

	if n == 0 && !fiberDidWork {
		r.runOnIdleTasks()
		r.scheduler.DestroyTerminated()
	}
}

// calculateTimeout returns the millisecond timeout for the next kernel
// wait: -1 (block indefinitely) if no fiber is sleeping, otherwise the
// ceiling of the
// duration until the earliest sleep point, so a fiber never wakes early.
func (r *Reactor) calculateTimeout() int {
	if !r.scheduler.HasSleepingFibers() {
		return -1
	}
	until := time.Until(r.scheduler.NextSleepPoint())
	if until <= 0 {
		return 0
	}
	ms := until.Milliseconds()
	if until%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}

// pollAndDispatch performs one kernel wait and dispatches whatever came
// back, looping again immediately (with a zero timeout) whenever a wait
// returns a full batch, since a full batch implies more may be pending.
func (r *Reactor) pollAndDispatch(timeoutMs int) int {
	events := make([]PollerEvent, r.batchSize)
	total := 0
	for {
		n, err := r.kpoller.Wait(events, timeoutMs)
		if err != nil {
			r.logf(LogError, "kernel wait failed: %v", err)
			return total
		}
		r.stats.CompletionsFetched.Add(uint64(n))
		total += n
		r.dispatch(events[:n])
		if n < len(events) {
			return total
		}
		timeoutMs = 0
	}
}

// dispatch decodes each PollerEvent's user-data word and invokes the
// matching callback. Periodic timer events (BSD only) carry a packed
// *PeriodicItem pointer and bypass the Completion Table entirely.
func (r *Reactor) dispatch(events []PollerEvent) {
	for i := range events {
		ev := &events[i]
		if ev.Periodic {
			item, ok := r.periodics.get(ev.UserData)
			if !ok {
				continue
			}
			r.safeExecuteFn(item.run)
			continue
		}
		if ev.UserData == kIgnoreIndex {
			continue
		}
		if ev.UserData < kUserDataCbIndex {
			// Reserved range, currently unused; log and ignore rather than
			// silently mis-decoding it as a handle.
			r.logf(LogError, "dispatch: user-data %d in reserved range", ev.UserData)
			continue
		}
		handle := int(ev.UserData - kUserDataCbIndex)
		entry, ok := r.completions.get(handle)
		if !ok || entry.index != completionSentinel || entry.cb == nil {
			// Late completion for a released/reused handle: dropped, per
			// the documented Completion Table hazard.
			continue
		}
		cb := entry.cb
		r.safeExecuteCallback(cb, ev.Mask, ev.Err)
	}
}

func (r *Reactor) safeExecute(task remoteTask) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logf(LogError, "remote task panicked: %v", rec)
		}
	}()
	task()
}

func (r *Reactor) safeExecuteFn(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logf(LogError, "periodic task panicked: %v", rec)
		}
	}()
	fn()
}

func (r *Reactor) safeExecuteCallback(cb callback, mask ReadinessMask, errCode int) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logf(LogError, "completion callback panicked: %v", rec)
		}
	}()
	cb(mask, errCode, r)
}

// runL2Tasks drains the low-priority task queue completely; it runs once
// per tick, after whichever of the ready-dispatch or idle path ran, so
// ordinary fiber and fd work always takes precedence within the tick but
// L2 work is never starved indefinitely by a busy reactor.
func (r *Reactor) runL2Tasks() {
	for r.l2.Length() > 0 {
		v := r.l2.Remove()
		if fn, ok := v.(func()); ok {
			r.safeExecute(fn)
		}
	}
}

func (r *Reactor) runOnIdleTasks() {
	for _, fn := range r.idleTasks {
		r.safeExecute(fn)
	}
}

// SubmitL2 enqueues fn onto the low-priority task queue, drained once at
// the end of every tick. Reactor-thread-only: L2 tasks are meant for the
// reactor's own housekeeping, not cross-thread submission (use Submit for
// that).
func (r *Reactor) SubmitL2(fn func()) {
	r.requireReactorThread()
	r.l2.Add(fn)
}

// OnIdle registers fn to run whenever a tick did no fiber work and its
// kernel wait came back empty, right before DestroyTerminated.
// Reactor-thread-only, so it can only be called once Run has started (for
// example from a task passed to Submit).
func (r *Reactor) OnIdle(fn func()) {
	r.requireReactorThread()
	r.idleTasks = append(r.idleTasks, fn)
}

// Submit enqueues task for execution on the reactor thread from any
// goroutine, parking the caller on the queue's availability notifier if it
// is currently full rather than returning failure. It returns false only
// if the queue has been closed (Close was called).
func (r *Reactor) Submit(task func()) bool {
	ok, notify := r.remoteQ.PushBlocking(task, &r.tqSeq)
	if ok && notify {
		if err := r.kpoller.Wake(); err == nil {
			r.stats.WakeEvents.Add(1)
		}
	}
	return ok
}

// Wake unconditionally interrupts a blocked kernel wait, coalescing with
// any other pending wake.
func (r *Reactor) Wake() error {
	err := r.kpoller.Wake()
	if err == nil {
		r.stats.WakeEvents.Add(1)
	}
	return err
}

// Stop requests the reactor exit its Run loop after the current iteration.
// Safe to call from any goroutine.
func (r *Reactor) Stop() {
	r.stopped.Store(true)
	_ = r.Wake()
}

// Arm registers fd for the given readiness subset, invoking cb on the
// reactor thread whenever the kernel reports it. Reactor-thread-only.
func (r *Reactor) Arm(fd int, mask ReadinessMask, cb func(mask ReadinessMask, errCode int, r *Reactor)) error {
	r.requireReactorThread()
	if _, exists := r.armedFDs[fd]; exists {
		return ErrFDAlreadyArmed
	}
	handle := r.completions.allocate(cb)
	if err := r.kpoller.Arm(fd, mask, uint64(handle)+kUserDataCbIndex); err != nil {
		r.completions.release(handle)
		return err
	}
	r.armedFDs[fd] = handle
	return nil
}

// Disarm unregisters fd. Reactor-thread-only; safe to call from within the
// fd's own callback (the completion is released before this returns, so
// any completion racing in for the old registration is dropped by
// dispatch's presence check).
func (r *Reactor) Disarm(fd int) error {
	r.requireReactorThread()
	handle, exists := r.armedFDs[fd]
	if !exists {
		return ErrFDNotArmed
	}
	delete(r.armedFDs, fd)
	r.completions.release(handle)
	return r.kpoller.Disarm(fd)
}

// SchedulePeriodic registers a task to run every period, starting one
// period from now. Reactor-thread-only.
func (r *Reactor) SchedulePeriodic(period time.Duration, task func()) (PeriodicHandle, error) {
	r.requireReactorThread()
	item := &PeriodicItem{Period: period, Task: task}
	if err := schedulePeriodicPlatform(r, item); err != nil {
		return PeriodicHandle{}, err
	}
	return PeriodicHandle{item: item}, nil
}

// CancelPeriodic tears down a periodic registration. It waits for any
// in-flight invocation of the task to finish before releasing platform
// resources, so a task is never interrupted mid-execution by its own
// cancellation.
func (r *Reactor) CancelPeriodic(h PeriodicHandle) error {
	r.requireReactorThread()
	if h.item == nil {
		return ErrNotInitialized
	}
	for h.item.refCnt.Load() != 0 {
		runtime.Gosched()
	}
	return cancelPeriodicPlatform(r, h.item)
}

// Stats returns the reactor's live statistics; safe from any goroutine.
func (r *Reactor) Stats() *Stats {
	return r.stats
}

// Close stops the reactor (if running) and releases the kernel poller.
// ErrStopWithoutDrain is returned if fds remain armed, since leaving armed
// fds behind after Close leaks kernel-side registrations no one will ever
// disarm.
func (r *Reactor) Close() error {
	r.Stop()
	if len(r.armedFDs) > 0 {
		return ErrStopWithoutDrain
	}
	r.remoteQ.Close()
	return r.kpoller.Close()
}
