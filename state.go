package reactor

import "sync/atomic"

// waitSectionState is the distinguished value tqSeq takes on while the
// reactor thread is inside (or about to enter) an indefinite kernel wait.
// Any other value is an ordinary sequence snapshot with no special meaning
// beyond "not currently parked". Producers compare their observed sequence
// against this constant to decide whether a wake is necessary.
const waitSectionState uint32 = 0xFFFFFFFF

// tqSeqState implements the eventcount-style rendezvous between the
// reactor's parking decision and remote producers. It is the sole
// synchronization variable mediating parking: producers never take a lock,
// and the reactor never blocks holding one.
//
// Cache-line padding on both sides isolates the hot atomic word from
// whatever the surrounding Reactor struct places before and after it,
// following this project's convention of padding contended atomics against
// false sharing.
type tqSeqState struct { //nolint:unused
	_ [64]byte
	v atomic.Uint32
	_ [60]byte
}

// snapshot returns the current sequence value with acquire semantics,
// establishing the "happens-before" edge a producer relies on: any task
// enqueued strictly before this load is visible to the reactor once it
// re-checks the queue.
func (s *tqSeqState) snapshot() uint32 {
	return s.v.Load()
}

// tryPark attempts to transition from the given snapshot to
// waitSectionState. On success the reactor is committed to parking (or has
// already observed is_stopped) and must proceed to the kernel wait; on
// failure something changed tqSeq since the snapshot (a producer raced in)
// and the reactor must not block.
func (s *tqSeqState) tryPark(from uint32) bool {
	return s.v.CompareAndSwap(from, waitSectionState)
}

// wake exits the wait section with release ordering, so a subsequent
// producer's snapshot-then-compare sees a value other than
// waitSectionState only after this store's effects (including whatever the
// reactor drained just before) are visible.
func (s *tqSeqState) wake() {
	s.v.Store(0)
}

// producerNotify is the producer half of the eventcount protocol: every
// successful enqueue calls this after the task is visible in the queue, so
// any tryPark snapshot taken before this call observes a changed value and
// its CAS fails, closing the window between a reactor's last queue check
// and the point it commits to parking. It reports whether the reactor was
// found in the wait section, which the caller uses to decide whether a
// wake is mandatory rather than merely due on the notify quantum.
func (s *tqSeqState) producerNotify() (wasParked bool) {
	for {
		cur := s.v.Load()
		if cur == waitSectionState {
			if s.v.CompareAndSwap(cur, 1) {
				return true
			}
			continue
		}
		next := cur + 1
		if next == waitSectionState {
			next = 0
		}
		if s.v.CompareAndSwap(cur, next) {
			return false
		}
	}
}

// isParked reports whether the reactor is currently (or was, at the moment
// of this load) in the wait section. It is a plain, racy load; producers do
// not use it, and decide whether to fire Wake through producerNotify
// instead.
func (s *tqSeqState) isParked() bool {
	return s.v.Load() == waitSectionState
}
