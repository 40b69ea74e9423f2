// Package reactor implements a per-thread I/O reactor that drives
// cooperatively scheduled fibers on top of epoll (Linux) or kqueue
// (Darwin/BSD). Each Reactor is affine to the single goroutine that calls
// Run (its reactor thread): it owns a
// Completion Table, a Kernel Poller, a Remote Task Queue, and a Periodic
// Timer Registry, and arbitrates between them in its run loop.
//
// A Reactor does not itself own fibers; it drives a Scheduler collaborator
// (see scheduler.go) supplied by the caller. Socket I/O beyond the minimal
// fd wrapper in socket.go, fiber stacks, and the pool that owns one Reactor
// per worker thread are out of scope.
package reactor
