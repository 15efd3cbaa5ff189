package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// DelayedTask represents a callback scheduled for the future
type DelayedTask struct {
	RunAt  time.Time
	Fn     func()
	handle TimerHandle
	index  int // for heap interface
}

// DelayedTaskHeap implements heap.Interface
type DelayedTaskHeap []*DelayedTask

func (h DelayedTaskHeap) Len() int { return len(h) }
func (h DelayedTaskHeap) Less(i, j int) bool {
	if h[i].RunAt.Equal(h[j].RunAt) {
		return h[i].handle < h[j].handle
	}
	return h[i].RunAt.Before(h[j].RunAt)
}
func (h DelayedTaskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *DelayedTaskHeap) Push(x any) {
	n := len(*h)
	item := x.(*DelayedTask)
	item.index = n
	*h = append(*h, item)
}

func (h *DelayedTaskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *DelayedTaskHeap) Peek() *DelayedTask {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// DelayManager is a Timers implementation that keeps every pending callback in
// one heap served by a single goroutine.
//
// Expired callbacks of one wake-up run in due order on a separate goroutine,
// so a slow callback never delays the timer loop itself.
type DelayManager struct {
	pq      DelayedTaskHeap
	pending map[TimerHandle]*DelayedTask
	mu      sync.Mutex
	wakeup  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

var _ Timers = (*DelayManager)(nil)

func NewDelayManager() *DelayManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DelayManager{
		pq:      make(DelayedTaskHeap, 0),
		pending: make(map[TimerHandle]*DelayedTask),
		wakeup:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

// AfterFunc schedules fn to run once delay has elapsed.
// Scheduling on a stopped manager returns a handle that never fires.
func (dm *DelayManager) AfterFunc(delay time.Duration, fn func()) TimerHandle {
	handle := nextTimerHandle()
	if dm.ctx.Err() != nil {
		return handle
	}

	dm.mu.Lock()
	item := &DelayedTask{
		RunAt:  time.Now().Add(delay),
		Fn:     fn,
		handle: handle,
	}
	heap.Push(&dm.pq, item)
	dm.pending[handle] = item
	first := item.index == 0
	dm.mu.Unlock()

	if first {
		dm.notify()
	}
	return handle
}

// Cancel removes a pending callback. It returns false if the callback already
// ran or the handle is unknown.
func (dm *DelayManager) Cancel(handle TimerHandle) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item, ok := dm.pending[handle]
	if !ok {
		return false
	}
	delete(dm.pending, handle)
	heap.Remove(&dm.pq, item.index)
	return true
}

// NextRunAt returns when the earliest pending callback is due.
func (dm *DelayManager) NextRunAt() (time.Time, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return time.Time{}, false
	}
	return item.RunAt, true
}

func (dm *DelayManager) notify() {
	select {
	case dm.wakeup <- struct{}{}:
	default:
	}
}

func (dm *DelayManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		// Calculate next run time
		nextRun, hasTasks := dm.calculateNextRun()
		if !hasTasks {
			// No tasks, wait indefinitely
			nextRun = 1000 * time.Hour
		}

		timer.Reset(nextRun)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			// Timer fired, process all expired tasks in one go
			dm.processExpiredTasks()
		case <-dm.wakeup:
			// New earliest task added, need to recalculate
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// calculateNextRun determines how long to wait until the next task.
// A zero duration with hasTasks=true means a task is already due.
func (dm *DelayManager) calculateNextRun() (wait time.Duration, hasTasks bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return 0, false
	}

	now := time.Now()
	if !item.RunAt.After(now) {
		return 0, true
	}
	return item.RunAt.Sub(now), true
}

// processExpiredTasks pops every due callback and runs them outside the lock
func (dm *DelayManager) processExpiredTasks() {
	dm.mu.Lock()

	now := time.Now()
	var expired []*DelayedTask

	for dm.pq.Len() > 0 {
		item := dm.pq.Peek()
		if item.RunAt.After(now) {
			break
		}
		heap.Pop(&dm.pq)
		delete(dm.pending, item.handle)
		expired = append(expired, item)
	}

	dm.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	go func() {
		for _, item := range expired {
			item.Fn()
		}
	}()
}

// Stop terminates the timer goroutine and drops every pending callback.
func (dm *DelayManager) Stop() {
	dm.cancel()

	dm.mu.Lock()
	dm.pq = make(DelayedTaskHeap, 0)
	heap.Init(&dm.pq)
	dm.pending = make(map[TimerHandle]*DelayedTask)
	dm.mu.Unlock()
}

func (dm *DelayManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}
