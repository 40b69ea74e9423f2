package reactor

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds the reactor's core operational counters, plus two derived
// series this implementation adds: an idle-to-wake latency P99 estimate
// and a coarse tasks-per-second rate. All counter fields are safe to read
// concurrently with the reactor thread's writes; Snapshot returns a
// consistent-enough point-in-time copy for monitoring, not a linearizable
// one.
type Stats struct {
	LoopCount          atomic.Uint64
	TaskRuns           atomic.Uint64
	FiberSteps         atomic.Uint64
	Stalls             atomic.Uint64
	CompletionsFetched atomic.Uint64
	Suspends           atomic.Uint64
	TaskInterrupts     atomic.Uint64
	WakeEvents         atomic.Uint64

	mu       sync.Mutex
	idle     *pSquareQuantile
	rateWin  time.Time
	rateRuns uint64
	tps      float64
}

func newStats() *Stats {
	return &Stats{
		idle:    newPSquareQuantile(0.99),
		rateWin: time.Time{},
	}
}

// observeIdle records one idle-to-wake latency sample, in seconds.
func (s *Stats) observeIdle(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idle.Update(d.Seconds())
}

// IdleLatencyP99 returns the current P99 estimate of idle-to-wake latency,
// or zero if no samples have been observed yet.
func (s *Stats) IdleLatencyP99() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.idle.Quantile() * float64(time.Second))
}

// observeTaskRun counts one drained remote-queue task and updates the
// rolling tasks-per-second estimate off that count, recomputed once per
// second of wall-clock time to avoid recomputing on every task. A fiber
// making progress during RunWorkerFibersStep is a different event, counted
// separately by FiberSteps; the two are never added to the same counter.
func (s *Stats) observeTaskRun(now time.Time) {
	total := s.TaskRuns.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rateWin.IsZero() {
		s.rateWin = now
		s.rateRuns = total
		return
	}
	if elapsed := now.Sub(s.rateWin); elapsed >= time.Second {
		s.tps = float64(total-s.rateRuns) / elapsed.Seconds()
		s.rateWin = now
		s.rateRuns = total
	}
}

// TasksPerSecond returns the most recently computed rate.
func (s *Stats) TasksPerSecond() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tps
}

// Snapshot is a plain-value copy of the counters, convenient for logging or
// exporting without exposing the atomics themselves.
type Snapshot struct {
	LoopCount          uint64
	TaskRuns           uint64
	FiberSteps         uint64
	Stalls             uint64
	CompletionsFetched uint64
	Suspends           uint64
	TaskInterrupts     uint64
	WakeEvents         uint64
	IdleLatencyP99     time.Duration
	TasksPerSecond     float64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		LoopCount:          s.LoopCount.Load(),
		TaskRuns:           s.TaskRuns.Load(),
		FiberSteps:         s.FiberSteps.Load(),
		Stalls:             s.Stalls.Load(),
		CompletionsFetched: s.CompletionsFetched.Load(),
		Suspends:           s.Suspends.Load(),
		TaskInterrupts:     s.TaskInterrupts.Load(),
		WakeEvents:         s.WakeEvents.Load(),
		IdleLatencyP99:     s.IdleLatencyP99(),
		TasksPerSecond:     s.TasksPerSecond(),
	}
}
