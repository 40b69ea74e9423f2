//go:build darwin

package reactor

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// kqueueUserData packs a uint64 into the *byte Udata field kevent uses to
// carry opaque user data, mirroring the original source's cast of a
// PeriodicItem pointer (or the small kIgnoreIndex/handle constants) into
// the same field.
func kqueueUserData(v uint64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(v))
}

func kqueueUserDataOf(kev *unix.Kevent_t) uint64 {
	return uint64(uintptr(unsafe.Pointer(kev.Udata)))
}

// kqueuePoller is the BSD/Darwin backend. Unlike the epoll path, the wake
// channel here is not a separate fd: Init registers a single EVFILT_USER
// filter on ident 0, triggered via NOTE_TRIGGER, carrying kIgnoreIndex as
// udata, rather than the self-pipe idiom a portable poller usually falls
// back to.
type kqueuePoller struct {
	kq       int
	eventBuf [pollerBatchSize]unix.Kevent_t
	closed   atomic.Bool
}

const wakeIdent = 0

func newPoller() (poller, error) {
	return &kqueuePoller{}, nil
}

func (p *kqueuePoller) Init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = kq

	wake := unix.Kevent_t{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
		Udata:  (*byte)(kqueueUserData(kIgnoreIndex)),
	}
	if _, err := unix.Kevent(p.kq, []unix.Kevent_t{wake}, nil, nil); err != nil {
		_ = unix.Close(kq)
		return err
	}
	return nil
}

// Arm registers fd for the requested readiness subset in edge-triggered
// mode (EV_CLEAR), one filter per requested direction, per the kernel
// poller design.
func (p *kqueuePoller) Arm(fd int, mask ReadinessMask, userData uint64) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	kevents := readinessToKevents(fd, mask, unix.EV_ADD|unix.EV_CLEAR, userData)
	if len(kevents) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, kevents, nil, nil)
	return err
}

func (p *kqueuePoller) Disarm(fd int) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	kevents := readinessToKevents(fd, ReadinessRead|ReadinessWrite, unix.EV_DELETE, 0)
	// Deleting a filter that was never added returns ENOENT; the caller
	// (Reactor.Disarm) only calls this for fds it previously armed with
	// both directions requested at most, so ignore that specific case.
	_, err := unix.Kevent(p.kq, kevents, nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

// Wait blocks in Kevent, retrying internally on EINTR so a bare signal
// interruption is invisible to the caller; see the equivalent comment on
// epollPoller.Wait for why that distinction matters to idleTick.
func (p *kqueuePoller) Wait(events []PollerEvent, timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}
	n := len(events)
	if n > len(p.eventBuf) {
		n = len(p.eventBuf)
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64(timeoutMs%1000) * 1000000,
		}
	}
	var res int
	for {
		var err error
		res, err = unix.Kevent(p.kq, nil, p.eventBuf[:n], ts)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		break
	}
	for i := 0; i < res; i++ {
		kev := &p.eventBuf[i]
		if kev.Filter == unix.EVFILT_TIMER {
			events[i] = PollerEvent{UserData: kqueueUserDataOf(kev), Periodic: true}
			continue
		}
		events[i] = PollerEvent{
			UserData: kqueueUserDataOf(kev),
			Mask:     keventToReadiness(kev),
		}
	}
	return res, nil
}

func (p *kqueuePoller) Wake() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	trigger := unix.Kevent_t{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{trigger}, nil, nil)
	return err
}

func (p *kqueuePoller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return unix.Close(p.kq)
}

func readinessToKevents(fd int, mask ReadinessMask, flags uint16, userData uint64) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	udata := (*byte)(kqueueUserData(userData))
	if mask&ReadinessRead != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags, Udata: udata,
		})
	}
	if mask&ReadinessWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags, Udata: udata,
		})
	}
	return kevents
}

// armTimer and disarmTimer are a deliberate escape hatch below the narrow
// poller trait: EVFILT_TIMER has no analog in the Arm/Disarm(fd, mask)
// abstraction (there is no fd), so the periodic timer registry's BSD path
// (timer_darwin.go) reaches past the trait via a type assertion to call
// these directly, registering a periodic kernel timer filter keyed by id
// with the item's pointer as user-data.
func (p *kqueuePoller) armTimer(id uint64, periodMs int64, udata uint64) error {
	kev := unix.Kevent_t{
		Ident:  id,
		Filter: unix.EVFILT_TIMER,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
		Data:   periodMs,
		Udata:  (*byte)(kqueueUserData(udata)),
	}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{kev}, nil, nil)
	return err
}

func (p *kqueuePoller) disarmTimer(id uint64) error {
	kev := unix.Kevent_t{
		Ident:  id,
		Filter: unix.EVFILT_TIMER,
		Flags:  unix.EV_DELETE,
	}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{kev}, nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func keventToReadiness(kev *unix.Kevent_t) ReadinessMask {
	var m ReadinessMask
	switch kev.Filter {
	case unix.EVFILT_READ:
		m |= ReadinessRead
	case unix.EVFILT_WRITE:
		m |= ReadinessWrite
	}
	if kev.Flags&unix.EV_EOF != 0 {
		m |= ReadinessHangup
	}
	return m
}
