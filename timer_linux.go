//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// schedulePeriodicPlatform arms a periodic timer using a kernel timerfd,
// registered through the same completionTable + poller.Arm path ordinary
// fds use — the timerfd's readiness callback drains the fd's expiration
// counter and invokes item.run().
func schedulePeriodicPlatform(r *Reactor, item *PeriodicItem) error {
	tfd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return err
	}

	spec := unix.ItimerSpec{
		Value:    unix.NsecToTimespec(item.Period.Nanoseconds()),
		Interval: unix.NsecToTimespec(item.Period.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(tfd, 0, &spec, nil); err != nil {
		_ = unix.Close(tfd)
		return err
	}

	item.id = uint64(tfd)
	handle := r.completions.allocate(func(mask ReadinessMask, errCode int, r *Reactor) {
		item.run()
		var buf [8]byte
		if _, err := unix.Read(tfd, buf[:]); err != nil && err != unix.EAGAIN {
			r.logf(LogWarn, "periodic timer %d: drain failed: %v", tfd, err)
		}
	})
	if err := r.kpoller.Arm(tfd, ReadinessRead, uint64(handle)+kUserDataCbIndex); err != nil {
		r.completions.release(handle)
		_ = unix.Close(tfd)
		return err
	}
	item.handle = handle
	r.periodics.put(item)
	return nil
}

// cancelPeriodicPlatform tears down the timerfd registration. The item is
// only released once no invocation is in flight; CancelPeriodic only ever
// calls this from the reactor thread between dispatch batches, so a
// concurrent run() can only be the one currently unwinding, never a fresh
// one starting.
func cancelPeriodicPlatform(r *Reactor, item *PeriodicItem) error {
	tfd := int(item.id)
	if err := r.kpoller.Disarm(tfd); err != nil {
		return err
	}
	r.completions.release(item.handle)
	r.periodics.delete(item.id)
	return unix.Close(tfd)
}
