//go:build darwin

package reactor

import "unsafe"

// schedulePeriodicPlatform arms a periodic timer as a raw EVFILT_TIMER
// kevent, keyed by the item's own address, reused as both ident and
// user-data, per the BSD periodic-timer design. Dispatch (in reactor.go)
// recognizes PollerEvent.Periodic and unpacks the pointer directly rather
// than going through the Completion Table, so no completions slot is
// consumed here.
func schedulePeriodicPlatform(r *Reactor, item *PeriodicItem) error {
	kq, ok := r.kpoller.(*kqueuePoller)
	if !ok {
		return ErrNotInitialized
	}
	// The item's own address doubles as both the kevent ident (unique for
	// as long as the item is registered) and the udata dispatch decodes,
	// so periodicRegistry's key always matches what a delivered event
	// carries — no separate id allocator needed.
	item.id = uint64(uintptr(unsafe.Pointer(item)))
	if err := kq.armTimer(item.id, item.Period.Milliseconds(), item.id); err != nil {
		return err
	}
	r.periodics.put(item)
	return nil
}

// cancelPeriodicPlatform removes the EVFILT_TIMER registration. It only
// proceeds once no invocation of item.Task is in flight; CancelPeriodic
// enforces that by spinning on item.refCnt before calling this, from the
// reactor thread, serialized against dispatch.
func cancelPeriodicPlatform(r *Reactor, item *PeriodicItem) error {
	kq, ok := r.kpoller.(*kqueuePoller)
	if !ok {
		return ErrNotInitialized
	}
	if err := kq.disarmTimer(item.id); err != nil {
		return err
	}
	r.periodics.delete(item.id)
	return nil
}
