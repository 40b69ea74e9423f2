package reactor

// completionSentinel marks a completionEntry as in-use: its index field
// only carries free-list linkage while the slot is free. The last free slot
// also holds -1 ("no next"), so an in-use slot is told apart from it by its
// non-nil callback as well (see completionEntry's invariant).
const completionSentinel = -1

// completionInitialCapacity is the Completion Table's default starting
// size, grown by doubling whenever the free list is exhausted.
const completionInitialCapacity = 512

// callback is invoked synchronously on the reactor thread for every
// dispatched completion. mask carries the readiness bits (EpollIn /
// EpollOut / hang-up); errCode is a raw kernel error observed alongside the
// event, or 0. The reactor is passed by borrow for the duration of the
// call only — callbacks must not retain it past return.
type callback func(mask ReadinessMask, errCode int, r *Reactor)

// completionEntry is a single Completion Table slot: either a live
// callback registration, or a link in the free list.
//
// Invariant: a slot is in use iff index == completionSentinel AND cb is
// non-nil. This is what dispatch checks before invoking a handle's
// callback, which is the documented partial defense against the ABA
// hazard described in completionTable's doc comment.
type completionEntry struct {
	cb    callback
	index int
}

// completionTable is an indexed slab mapping a compact integer handle to a
// user callback. It is accessed only from the reactor thread; no
// synchronization is needed internally.
//
// Known hazard, left open deliberately: if a handle is reused by Allocate
// before a late kernel completion arrives for the previous tenant, the
// dispatcher cannot distinguish the two without a generation counter. This
// implementation does not add one; it relies solely on the
// in-use-and-callback-present check.
type completionTable struct {
	entries  []completionEntry
	nextFree int // index of the free-list head, or -1 if full
}

// newCompletionTable builds a table with the initial free list already
// linked in ascending order, entries[i].index = i+1 for all but the last,
// which terminates the list with -1 (the same value as completionSentinel;
// allocate reads nextFree == -1 as "no free slot").
func newCompletionTable() *completionTable {
	return newCompletionTableWithCapacity(completionInitialCapacity)
}

// newCompletionTableWithCapacity builds a table with a caller-chosen
// starting capacity, for WithInitialCompletionCapacity.
func newCompletionTableWithCapacity(capacity int) *completionTable {
	if capacity <= 0 {
		capacity = completionInitialCapacity
	}
	t := &completionTable{
		entries: make([]completionEntry, capacity),
	}
	t.linkFreeRange(0, len(t.entries))
	return t
}

// linkFreeRange links entries[start:end] into an ascending free chain and
// sets nextFree to start. The caller is responsible for ensuring these
// slots are otherwise unused.
func (t *completionTable) linkFreeRange(start, end int) {
	for i := start; i < end-1; i++ {
		t.entries[i].index = i + 1
	}
	if end > start {
		t.entries[end-1].index = -1
	}
	t.nextFree = start
}

// allocate installs cb into a free slot and returns its handle. If the
// free list is empty the table doubles in size first; regrow is O(added
// capacity), allocate itself is O(1).
func (t *completionTable) allocate(cb callback) int {
	if t.nextFree == -1 {
		t.regrow()
	}
	handle := t.nextFree
	e := &t.entries[handle]
	t.nextFree = e.index
	e.cb = cb
	e.index = completionSentinel
	return handle
}

// regrow doubles the table's capacity and links the newly added tail into
// the free list in ascending order, per the boundary behavior: "new
// capacity = 2 × old; newly added slots are linked in ascending order".
func (t *completionTable) regrow() {
	prev := len(t.entries)
	grown := make([]completionEntry, prev*2)
	copy(grown, t.entries)
	t.entries = grown
	t.linkFreeRange(prev, len(t.entries))
}

// release pushes handle back onto the free list and clears its callback.
// Clearing the callback before the slot can be reallocated is what allows
// a late completion arriving between release and reuse to be dropped by
// dispatch's presence check, provided allocate has not yet run; the
// remaining exposure (allocate reusing the slot before a late completion
// for the old tenant surfaces) is the documented ABA hazard.
func (t *completionTable) release(handle int) {
	e := &t.entries[handle]
	e.cb = nil
	e.index = t.nextFree
	t.nextFree = handle
}

// get returns a bounds-checked view of handle's entry and whether the
// handle is within range.
func (t *completionTable) get(handle int) (completionEntry, bool) {
	if handle < 0 || handle >= len(t.entries) {
		return completionEntry{}, false
	}
	return t.entries[handle], true
}

// valid reports whether handle currently addresses a live, callable
// registration: in range, in use (index == sentinel), and callback
// present. Dispatch calls this before invoking anything.
func (t *completionTable) valid(handle int) bool {
	e, ok := t.get(handle)
	return ok && e.index == completionSentinel && e.cb != nil
}

// len reports the table's current size (capacity, not live-slot count).
func (t *completionTable) len() int {
	return len(t.entries)
}
