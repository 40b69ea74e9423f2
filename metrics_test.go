package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsSnapshotCounters(t *testing.T) {
	s := newStats()
	s.LoopCount.Add(3)
	s.Stalls.Add(1)
	s.WakeEvents.Add(2)

	snap := s.Snapshot()
	assert.EqualValues(t, 3, snap.LoopCount)
	assert.EqualValues(t, 1, snap.Stalls)
	assert.EqualValues(t, 2, snap.WakeEvents)
}

func TestStatsIdleLatencyP99(t *testing.T) {
	s := newStats()
	for i := 0; i < 200; i++ {
		s.observeIdle(time.Duration(i) * time.Microsecond)
	}
	p99 := s.IdleLatencyP99()
	assert.Greater(t, p99, time.Duration(0))
}

func TestStatsTasksPerSecond(t *testing.T) {
	s := newStats()
	start := time.Now()
	for i := 0; i < 10; i++ {
		s.observeTaskRun(start)
	}
	s.observeTaskRun(start.Add(1100 * time.Millisecond))
	assert.Greater(t, s.TasksPerSecond(), 0.0)
}
