package reactor

import (
	"sync"
	"sync/atomic"
)

// remoteTaskQueueCapacity is the queue's fixed capacity, rounded up to a
// power of two internally. Producers that find the queue full park on its
// availability condition (PushBlocking) rather than growing the buffer —
// an unbounded remote queue would let a slow reactor thread accumulate
// unbounded memory from a fast producer.
const remoteTaskQueueCapacity = 1024

// remoteTaskDrainBudgetMicros bounds how long one tick spends draining the
// remote queue before moving on to poll/dispatch, so a
// producer flooding tasks cannot starve fd readiness or timers.
const remoteTaskDrainBudgetMicros = 500

// remoteTaskNotifyQuantum is how many enqueues accumulate before a producer
// is required to also invoke Wake, amortizing the cost of waking a
// parked reactor across a burst of submissions instead of waking once per
// task.
const remoteTaskNotifyQuantum = 32

// remoteTask is a closure submitted from any goroutine for execution on the
// reactor thread.
type remoteTask func()

// cacheLinePad isolates the head/tail cursors of remoteTaskQueue from each
// other and from neighboring fields, to avoid false sharing between
// producers and the single consumer.
const cacheLinePad = 64

type remoteTaskCell struct {
	sequence atomic.Uint64
	task     remoteTask
}

// remoteTaskQueue is a bounded MPSC queue of closures: any number of
// goroutines may call TryPush concurrently, but only the reactor thread
// calls Pop. It uses the Vyukov MPMC cell-sequencing scheme (safe for the
// single-consumer case this reactor needs) rather than a narrower true-MPSC
// design.
type remoteTaskQueue struct {
	_      [cacheLinePad]byte
	head   atomic.Uint64
	_      [cacheLinePad]byte
	tail   atomic.Uint64
	_      [cacheLinePad]byte
	mask   uint64
	cells  []remoteTaskCell
	closed atomic.Bool

	// notifyQuantum overrides remoteTaskNotifyQuantum per instance, so
	// WithNotifyQuantum takes effect without a package-level mutable default.
	notifyQuantum uint64

	// enqueued counts total successful pushes, mod notifyQuantum, used by
	// TryPush's return value to tell the caller when a notify is due.
	enqueued atomic.Uint64

	// availMu/availCond implement the "producers park on the queue's
	// available notification when full" contract: PushBlocking waits on
	// availCond when the lock-free TryPush reports the queue full, and
	// notifyAvailable (called periodically and after every drain) wakes
	// them. Only touched on the full-queue path; ordinary pushes never
	// take this lock.
	availMu   sync.Mutex
	availCond *sync.Cond
}

func newRemoteTaskQueue(capacity int) *remoteTaskQueue {
	return newRemoteTaskQueueWithQuantum(capacity, remoteTaskNotifyQuantum)
}

// newRemoteTaskQueueWithQuantum is newRemoteTaskQueue with a caller-chosen
// notify quantum, for WithNotifyQuantum.
func newRemoteTaskQueueWithQuantum(capacity, notifyQuantum int) *remoteTaskQueue {
	size := 1
	for size < capacity {
		size <<= 1
	}
	if notifyQuantum <= 0 {
		notifyQuantum = remoteTaskNotifyQuantum
	}
	q := &remoteTaskQueue{
		mask:          uint64(size - 1),
		cells:         make([]remoteTaskCell, size),
		notifyQuantum: uint64(notifyQuantum),
	}
	q.availCond = sync.NewCond(&q.availMu)
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

// TryPush enqueues task without blocking. ok is false if the queue is full
// or closed. notify reports whether the caller should also invoke the
// reactor's Wake, either because this push landed on a notify-quantum
// boundary or because seq reports the reactor was parked. seq may be nil,
// in which case notify is only ever due to the quantum boundary.
func (q *remoteTaskQueue) TryPush(task remoteTask, seq *tqSeqState) (ok, notify bool) {
	if q.closed.Load() {
		return false, false
	}
	for {
		tail := q.tail.Load()
		index := tail & q.mask
		c := &q.cells[index]
		cseq := c.sequence.Load()
		dif := int64(cseq) - int64(tail)

		switch {
		case dif == 0:
			if q.tail.CompareAndSwap(tail, tail+1) {
				c.task = task
				c.sequence.Store(tail + 1)
				n := q.enqueued.Add(1)
				var wasParked bool
				if seq != nil {
					wasParked = seq.producerNotify()
				}
				notify = wasParked || n%q.notifyQuantum == 0
				return true, notify
			}
		case dif < 0:
			return false, false
		default:
			// tail moved underneath us; retry.
		}
	}
}

// PushBlocking pushes task, parking the calling goroutine on the queue's
// availability condition while the queue is full rather than returning
// failure to the caller. ok is false only if the queue is closed.
func (q *remoteTaskQueue) PushBlocking(task remoteTask, seq *tqSeqState) (ok, notify bool) {
	for {
		if ok, notify = q.TryPush(task, seq); ok {
			return true, notify
		}
		if q.closed.Load() {
			return false, false
		}
		q.availMu.Lock()
		// Re-check while holding the same lock notifyAvailable broadcasts
		// under, so a drain that frees space between the failed TryPush
		// above and here is not missed.
		if ok, notify = q.TryPush(task, seq); ok {
			q.availMu.Unlock()
			return true, notify
		}
		q.availCond.Wait()
		q.availMu.Unlock()
	}
}

// notifyAvailable wakes every goroutine parked in PushBlocking. Called by
// the reactor thread every notifyQuantum drained tasks and once more after
// a drain completes, per the availability-notification contract.
func (q *remoteTaskQueue) notifyAvailable() {
	q.availMu.Lock()
	q.availCond.Broadcast()
	q.availMu.Unlock()
}

// Pop removes and returns the oldest task. Only the reactor thread may call
// this.
func (q *remoteTaskQueue) Pop() (remoteTask, bool) {
	head := q.head.Load()
	index := head & q.mask
	c := &q.cells[index]
	seq := c.sequence.Load()
	dif := int64(seq) - int64(head+1)
	if dif != 0 {
		return nil, false
	}
	task := c.task
	c.task = nil
	c.sequence.Store(head + q.mask + 1)
	q.head.Store(head + 1)
	return task, true
}

// isEmptyHint is a racy, allocation-free check used by idleTick, both in
// its pre-park spin loop and in its re-check after a successful tryPark, to
// decide whether to poll with a zero timeout instead of blocking.
func (q *remoteTaskQueue) isEmptyHint() bool {
	return q.head.Load() == q.tail.Load()
}

// Close marks the queue closed; subsequent TryPush calls fail. Already
// enqueued tasks remain poppable so a final drain still runs them. Any
// goroutine currently parked in PushBlocking is woken so it can observe
// the closed state and return rather than block forever.
func (q *remoteTaskQueue) Close() {
	q.closed.Store(true)
	q.notifyAvailable()
}
