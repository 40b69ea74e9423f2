package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteTaskQueuePushPopOrder(t *testing.T) {
	q := newRemoteTaskQueue(8)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		ok, _ := q.TryPush(func() { order = append(order, i) }, nil)
		require.True(t, ok)
	}

	for i := 0; i < 5; i++ {
		task, ok := q.Pop()
		require.True(t, ok)
		task()
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestRemoteTaskQueueFullRejectsPush(t *testing.T) {
	q := newRemoteTaskQueue(2) // rounds up to 2

	ok1, _ := q.TryPush(func() {}, nil)
	ok2, _ := q.TryPush(func() {}, nil)
	ok3, _ := q.TryPush(func() {}, nil)

	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.False(t, ok3, "third push into a 2-slot queue must fail")
}

func TestRemoteTaskQueueNotifyQuantum(t *testing.T) {
	q := newRemoteTaskQueue(64)
	var seq tqSeqState

	sawNotify := false
	for i := 0; i < remoteTaskNotifyQuantum; i++ {
		_, notify := q.TryPush(func() {}, &seq)
		if notify {
			sawNotify = true
		}
	}
	assert.True(t, sawNotify, "the notify quantum'th push must report notify=true")
}

func TestRemoteTaskQueueNotifiesWhenParked(t *testing.T) {
	q := newRemoteTaskQueue(64)
	var seq tqSeqState
	require.True(t, seq.tryPark(seq.snapshot()))

	_, notify := q.TryPush(func() {}, &seq)
	assert.True(t, notify, "a push while the reactor is parked must always notify")
}

// TestRemoteTaskQueueTryPushInvalidatesParkSnapshot exercises the
// eventcount protocol directly: a push after a snapshot but before the
// corresponding tryPark call must make that tryPark fail, since otherwise
// the reactor could commit to an indefinite wait with the pushed task
// stranded.
func TestRemoteTaskQueueTryPushInvalidatesParkSnapshot(t *testing.T) {
	q := newRemoteTaskQueue(64)
	var seq tqSeqState

	snap := seq.snapshot()
	ok, _ := q.TryPush(func() {}, &seq)
	require.True(t, ok)

	assert.False(t, seq.tryPark(snap), "tryPark must fail once a producer has pushed since the snapshot")
}

// TestRemoteTaskQueuePushBlockingUnparksOnDrain exercises the availability
// notifier end to end: a PushBlocking call against a full queue must
// return once the consumer pops an item and calls notifyAvailable, not
// hang forever.
func TestRemoteTaskQueuePushBlockingUnparksOnDrain(t *testing.T) {
	q := newRemoteTaskQueue(2)
	var seq tqSeqState

	ok1, _ := q.TryPush(func() {}, &seq)
	ok2, _ := q.TryPush(func() {}, &seq)
	require.True(t, ok1)
	require.True(t, ok2)

	done := make(chan bool, 1)
	go func() {
		ok, _ := q.PushBlocking(func() {}, &seq)
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("PushBlocking returned before the queue had any space")
	case <-time.After(20 * time.Millisecond):
	}

	_, ok := q.Pop()
	require.True(t, ok)
	q.notifyAvailable()

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("PushBlocking did not unblock after notifyAvailable")
	}
}

func TestRemoteTaskQueueClosedRejectsPush(t *testing.T) {
	q := newRemoteTaskQueue(8)
	q.Close()
	ok, _ := q.TryPush(func() {}, nil)
	assert.False(t, ok)
}

// TestRemoteTaskQueueConcurrentProducersSingleConsumer exercises the
// documented usage shape: many producer goroutines pushing concurrently
// against the one consumer (the reactor thread) draining in a loop. Every
// push retries until accepted, so the total observed by the consumer must
// equal producers*perProducer with neither a deadlock nor a lost task.
func TestRemoteTaskQueueConcurrentProducersSingleConsumer(t *testing.T) {
	q := newRemoteTaskQueue(256)
	const producers = 4
	const perProducer = 1000
	const total = producers * perProducer

	done := make(chan struct{})
	var processed int64
	var mu sync.Mutex
	go func() {
		for {
			if task, ok := q.Pop(); ok {
				task()
				mu.Lock()
				processed++
				mu.Unlock()
				continue
			}
			mu.Lock()
			p := processed
			mu.Unlock()
			if p >= total {
				close(done)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for {
					ok, _ := q.TryPush(func() {}, nil)
					if ok {
						break
					}
				}
			}
		}()
	}
	wg.Wait()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.EqualValues(t, total, processed)
}
