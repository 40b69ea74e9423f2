package reactor

import (
	"errors"
	"fmt"
)

// Sentinel errors covering the reactor's failure conditions.
//
// Programming errors (wrong thread, double Run) are fatal: the methods
// that detect them panic, wrapping the sentinel below, rather than
// returning an error a caller could accidentally ignore. Transient and
// logged conditions return a plain error instead.
var (
	// ErrWrongThread is wrapped into a panic when a reactor-thread-only
	// method is invoked from any goroutine other than the one that called
	// Run.
	ErrWrongThread = errors.New("reactor: method must run on the reactor thread")

	// ErrAlreadyInitialized is wrapped into a panic by a second call to Run.
	ErrAlreadyInitialized = errors.New("reactor: already initialized")

	// ErrNotInitialized is returned by CancelPeriodic for a zero
	// PeriodicHandle, and by the BSD periodic timer path when the reactor's
	// poller is not the kqueue backend.
	ErrNotInitialized = errors.New("reactor: not initialized")

	// ErrPollerClosed is returned by poller operations after Close.
	ErrPollerClosed = errors.New("reactor: poller closed")

	// ErrFDAlreadyArmed is returned when Arm targets an fd already
	// registered with the poller.
	ErrFDAlreadyArmed = errors.New("reactor: fd already armed")

	// ErrFDNotArmed is returned when Disarm targets an fd that was never
	// armed, or was already disarmed.
	ErrFDNotArmed = errors.New("reactor: fd not armed")

	// ErrStopWithoutDrain is returned by Close if fds remain armed when it
	// is called, since leaving them behind leaks kernel-side registrations.
	ErrStopWithoutDrain = errors.New("reactor: stopped with armed completions outstanding")
)

// fatalf panics with err wrapped by a descriptive message, so a programming
// error aborts loudly rather than propagating silently. A panic (versus
// os.Exit) lets a supervising test harness recover and assert on the
// failure.
func fatalf(err error, format string, args ...any) {
	panic(fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err))
}
