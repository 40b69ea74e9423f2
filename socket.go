package reactor

import "golang.org/x/sys/unix"

// Socket is the minimal fd wrapper CreateSocket hands back: just enough to
// bind an already-created file descriptor to this reactor's Arm/Disarm/Wait
// machinery. It carries no wire protocol, no buffering, and no read/write
// helpers — those remain entirely out of scope for this package.
type Socket struct {
	fd int
	r  *Reactor
}

// Fd returns the underlying file descriptor, for callers that need to pass
// it to syscalls this package does not wrap.
func (s *Socket) Fd() int {
	return s.fd
}

// Arm registers the socket for the given readiness subset, invoking cb on
// the reactor thread whenever the kernel reports it. See Reactor.Arm for
// the full contract.
func (s *Socket) Arm(mask ReadinessMask, cb func(mask ReadinessMask, errCode int, r *Reactor)) error {
	return s.r.Arm(s.fd, mask, cb)
}

// Disarm removes the socket's registration without closing the fd.
func (s *Socket) Disarm() error {
	return s.r.Disarm(s.fd)
}

// Close disarms (best-effort, ignoring "not armed") and closes the
// underlying fd.
func (s *Socket) Close() error {
	_ = s.r.Disarm(s.fd)
	return unix.Close(s.fd)
}

// CreateSocket binds an existing, already-nonblocking fd to this reactor.
// Callers are responsible for creating the fd itself (socket(2)/accept4(2)
// and friends) and for ensuring it is non-blocking; CreateSocket only
// wraps it for use with Arm/Disarm.
func (r *Reactor) CreateSocket(fd int) *Socket {
	return &Socket{fd: fd, r: r}
}
