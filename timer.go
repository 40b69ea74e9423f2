package reactor

import (
	"sync/atomic"
	"time"
)

// PeriodicItem is a single scheduled periodic task, kept alive for the
// lifetime of the registration by periodicRegistry (necessary on the BSD
// backend, where its address is packed into a kevent's opaque user-data
// word rather than tracked by an index into the Completion Table).
type PeriodicItem struct {
	Period time.Duration
	Task   func()

	// id is the registry key: a timerfd on Linux, an EVFILT_TIMER ident on
	// BSD. Both are caller-invisible; SchedulePeriodic returns the item
	// itself wrapped in a PeriodicHandle.
	id uint64

	// handle is the Completion Table slot backing this item's readiness
	// callback on Linux. Unused (zero) on the BSD backend, which dispatches
	// periodic events directly from the packed item pointer instead.
	handle int

	// refCnt tracks in-flight invocations of Task: cancellation must not
	// free an item while a callback is still running. CancelPeriodic spins
	// (briefly) until this reaches zero.
	refCnt atomic.Int32
}

// run invokes item.Task with reference-count bracketing, so a concurrent
// cancel can tell whether it is safe to release platform resources.
func (item *PeriodicItem) run() {
	item.refCnt.Add(1)
	defer item.refCnt.Add(-1)
	item.Task()
}

// PeriodicHandle identifies a registration returned by SchedulePeriodic, for
// later use with CancelPeriodic.
type PeriodicHandle struct {
	item *PeriodicItem
}

// periodicRegistry keeps every live PeriodicItem reachable from Go's
// perspective, independent of what the kernel does with its id. This matters
// most on BSD, where the item's address round-trips through a kevent's
// opaque *byte Udata field: without a live reference elsewhere, the
// garbage collector would be free to collect the item between arming the
// timer and the first delivery.
type periodicRegistry struct {
	items map[uint64]*PeriodicItem
}

func newPeriodicRegistry() *periodicRegistry {
	return &periodicRegistry{items: make(map[uint64]*PeriodicItem)}
}

func (r *periodicRegistry) put(item *PeriodicItem) {
	r.items[item.id] = item
}

func (r *periodicRegistry) get(id uint64) (*PeriodicItem, bool) {
	item, ok := r.items[id]
	return item, ok
}

func (r *periodicRegistry) delete(id uint64) {
	delete(r.items, id)
}
