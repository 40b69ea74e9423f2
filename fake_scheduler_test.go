package reactor

import (
	"sync"
	"time"
)

// fakeScheduler is a minimal, call-counting Scheduler test double: it
// tracks how many times each method fired and lets a test script a fixed
// number of RunWorkerFibersStep "did work" responses.
type fakeScheduler struct {
	mu sync.Mutex

	processRemoteReadyCalls int
	lastRemoteReadyOpt      SchedulerRemoteReadyOption

	ready        bool
	runStepsLeft int
	runStepCalls int
	sleeping     bool
	nextSleep    time.Time
	destroyCalls int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{}
}

func (f *fakeScheduler) ProcessRemoteReady(opt SchedulerRemoteReadyOption) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processRemoteReadyCalls++
	f.lastRemoteReadyOpt = opt
}

func (f *fakeScheduler) HasReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeScheduler) RunWorkerFibersStep() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runStepCalls++
	if f.runStepsLeft <= 0 {
		return false
	}
	f.runStepsLeft--
	return true
}

func (f *fakeScheduler) HasSleepingFibers() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sleeping
}

func (f *fakeScheduler) NextSleepPoint() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextSleep
}

func (f *fakeScheduler) DestroyTerminated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyCalls++
}

func (f *fakeScheduler) setReady(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = v
}

func (f *fakeScheduler) setRunSteps(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runStepsLeft = n
}

func (f *fakeScheduler) setSleeping(v bool, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeping = v
	f.nextSleep = at
}
