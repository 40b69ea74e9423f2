//go:build linux

package reactor

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// epollUserData exposes the 8-byte Fd+Pad union of an epoll_event as an
// arbitrary uint64, so a full user-data word can be stashed there instead
// of a bare fd number.
func epollUserData(ev *unix.EpollEvent) *uint64 {
	return (*uint64)(unsafe.Pointer(&ev.Fd))
}

// epollPoller is the Linux backend: a thin façade over epoll plus an
// eventfd-based wake channel. Edge-triggered registration (EPOLLET) is
// mandatory here because consumers are fiber-driven and may suspend with
// data left unread; re-arming would otherwise be necessary on every drain.
type epollPoller struct {
	epfd     int
	wakeFd   int
	eventBuf [pollerBatchSize]unix.EpollEvent
	closed   atomic.Bool
}

func newPoller() (poller, error) {
	return &epollPoller{}, nil
}

func (p *epollPoller) Init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return err
	}
	p.wakeFd = wakeFd

	// The wake eventfd is registered directly with EPOLL_CTL_ADD rather than
	// through Arm (which would add EPOLLET): level-triggered EPOLLIN is
	// sufficient since it is drained to empty on every readiness by
	// drainWake. Its user-data word is kIgnoreIndex so dispatch recognizes
	// and ignores it.
	ev := &unix.EpollEvent{Events: unix.EPOLLIN}
	*epollUserData(ev) = kIgnoreIndex
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, wakeFd, ev); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(wakeFd)
		return err
	}
	return nil
}

func (p *epollPoller) Arm(fd int, mask ReadinessMask, userData uint64) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	ev := &unix.EpollEvent{
		Events: readinessToEpoll(mask) | unix.EPOLLET,
	}
	*epollUserData(ev) = userData
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev)
}

func (p *epollPoller) Disarm(fd int) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks in EpollWait, retrying internally on EINTR so a bare signal
// interruption is invisible to the caller: idleTick treats any (0, nil)
// return as a genuine stall and unconditionally exits the wait section via
// tqSeq.wake(), which would be wrong for an interruption that carries no
// information about the queue or scheduler state. Retrying here rather
// than threading an EINTR signal up through PollerEvent keeps that
// distinction local to the syscall boundary, at the cost of not
// re-deriving a reduced timeout across the retry (a possible, bounded
// overrun of the requested timeoutMs on a heavily-signaled process).
func (p *epollPoller) Wait(events []PollerEvent, timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}
	n := len(events)
	if n > len(p.eventBuf) {
		n = len(p.eventBuf)
	}
	var res int
	for {
		var err error
		res, err = unix.EpollWait(p.epfd, p.eventBuf[:n], timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		break
	}
	for i := 0; i < res; i++ {
		ev := &p.eventBuf[i]
		userData := *epollUserData(ev)
		if userData == kIgnoreIndex {
			p.drainWake()
		}
		events[i] = PollerEvent{
			UserData: userData,
			Mask:     epollToReadiness(ev.Events),
		}
	}
	return res, nil
}

// drainWake empties the eventfd counter so the next Wake() call reliably
// produces a fresh readiness edge rather than accumulating.
func (p *epollPoller) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakeFd, buf[:])
		if err != nil {
			return
		}
	}
}

func (p *epollPoller) Wake() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	_, err := unix.Write(p.wakeFd, buf)
	return err
}

func (p *epollPoller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	_ = unix.Close(p.wakeFd)
	return unix.Close(p.epfd)
}

func readinessToEpoll(mask ReadinessMask) uint32 {
	var e uint32
	if mask&ReadinessRead != 0 {
		e |= unix.EPOLLIN
	}
	if mask&ReadinessWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToReadiness(events uint32) ReadinessMask {
	var m ReadinessMask
	if events&unix.EPOLLIN != 0 {
		m |= ReadinessRead
	}
	if events&unix.EPOLLOUT != 0 {
		m |= ReadinessWrite
	}
	if events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		m |= ReadinessHangup
	}
	return m
}
