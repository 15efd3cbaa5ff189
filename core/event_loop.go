package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// IdleDeadline describes the idle period granted to an idle callback.
type IdleDeadline interface {
	// TimeRemaining returns the budget left in the period, never negative.
	TimeRemaining() time.Duration

	// DidTimeout reports whether the callback ran because a timeout expired
	// rather than because the host became idle. Always false here.
	DidTimeout() bool
}

// IdleHandle identifies a pending idle request.
type IdleHandle uint64

type idleRequest struct {
	handle IdleHandle
	fn     func(IdleDeadline)
}

type loopDeadline struct {
	deadline time.Time
}

func (d loopDeadline) TimeRemaining() time.Duration {
	if remaining := time.Until(d.deadline); remaining > 0 {
		return remaining
	}
	return 0
}

func (d loopDeadline) DidTimeout() bool { return false }

// EventLoop binds a dedicated goroutine that executes posted tasks one at a
// time, in posting order. It is the host the cooperative runners schedule on.
//
// Besides plain tasks it offers:
//   - timers (AfterFunc/Cancel) whose callbacks run on the loop goroutine
//   - idle notification (RequestIdle/CancelIdle): callbacks run only when the
//     work queue is empty, with a budget capped by IdlePeriod and by the next
//     pending timer
type EventLoop struct {
	// Task queue: Buffered channel for tasks
	workQueue chan Task

	// Lifecycle control
	ctx    context.Context
	cancel context.CancelFunc

	// For graceful shutdown
	stopped      chan struct{}
	once         sync.Once
	closed       atomic.Bool
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	timers *DelayManager

	mu          sync.Mutex
	liveTimers  map[TimerHandle]struct{}
	idleQueue   []idleRequest
	idleWake    chan struct{}
	tasksRun    atomic.Int64
	idlePeriods atomic.Int64
	panics      atomic.Int64

	config *EventLoopConfig
}

var _ Timers = (*EventLoop)(nil)

// NewEventLoop creates and starts a new EventLoop.
// It immediately spawns a dedicated goroutine for task execution.
func NewEventLoop(config *EventLoopConfig) *EventLoop {
	cfg := config.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	r := &EventLoop{
		workQueue:    make(chan Task, cfg.QueueSize),
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
		shutdownChan: make(chan struct{}),
		timers:       NewDelayManager(),
		liveTimers:   make(map[TimerHandle]struct{}),
		idleWake:     make(chan struct{}, 1),
		config:       cfg,
	}

	go r.runLoop()

	return r
}

// Name returns the name of the loop
func (r *EventLoop) Name() string {
	return r.config.Name
}

// PostTask submits a task for execution. Tasks posted after Shutdown are dropped.
func (r *EventLoop) PostTask(task Task) {
	if r.closed.Load() {
		return
	}

	select {
	case <-r.ctx.Done():
		return
	case r.workQueue <- task:
	}
}

// PostDelayedTask submits a task that is posted once delay has elapsed.
func (r *EventLoop) PostDelayedTask(task Task, delay time.Duration) TimerHandle {
	return r.schedule(delay, task)
}

// AfterFunc implements Timers; fn runs on the loop goroutine.
func (r *EventLoop) AfterFunc(delay time.Duration, fn func()) TimerHandle {
	return r.schedule(delay, func(ctx context.Context) { fn() })
}

func (r *EventLoop) schedule(delay time.Duration, task Task) TimerHandle {
	if r.closed.Load() {
		return nextTimerHandle()
	}

	var handle TimerHandle
	r.mu.Lock()
	handle = r.timers.AfterFunc(delay, func() {
		r.PostTask(func(ctx context.Context) {
			// A Cancel may land between expiry and execution.
			r.mu.Lock()
			_, live := r.liveTimers[handle]
			delete(r.liveTimers, handle)
			r.mu.Unlock()
			if live {
				task(ctx)
			}
		})
	})
	r.liveTimers[handle] = struct{}{}
	r.mu.Unlock()
	return handle
}

// Cancel implements Timers. It returns false once the callback has started.
func (r *EventLoop) Cancel(handle TimerHandle) bool {
	r.mu.Lock()
	_, live := r.liveTimers[handle]
	delete(r.liveTimers, handle)
	r.mu.Unlock()

	if live {
		r.timers.Cancel(handle)
	}
	return live
}

// RequestIdle schedules fn to run during the next idle period of the loop.
func (r *EventLoop) RequestIdle(fn func(IdleDeadline)) IdleHandle {
	handle := IdleHandle(nextTimerHandle())
	if r.closed.Load() {
		return handle
	}

	r.mu.Lock()
	r.idleQueue = append(r.idleQueue, idleRequest{handle: handle, fn: fn})
	r.mu.Unlock()

	select {
	case r.idleWake <- struct{}{}:
	default:
	}
	return handle
}

// CancelIdle removes a pending idle request. It returns false once the
// callback has started or if the handle is unknown.
func (r *EventLoop) CancelIdle(handle IdleHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, req := range r.idleQueue {
		if req.handle == handle {
			r.idleQueue = append(r.idleQueue[:i], r.idleQueue[i+1:]...)
			return true
		}
	}
	return false
}

// Stats returns current observability data for this loop.
func (r *EventLoop) Stats() LoopStats {
	r.mu.Lock()
	idlePending := len(r.idleQueue)
	timersPending := len(r.liveTimers)
	r.mu.Unlock()

	return LoopStats{
		Name:          r.Name(),
		Pending:       len(r.workQueue),
		IdlePending:   idlePending,
		TimersPending: timersPending,
		TasksRun:      r.tasksRun.Load(),
		IdlePeriods:   r.idlePeriods.Load(),
		Panics:        r.panics.Load(),
		Closed:        r.IsClosed(),
	}
}

// Shutdown marks the loop as closed and signals shutdown waiters.
// It may be called from a task running on the loop itself.
func (r *EventLoop) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.closed.Store(true)
		r.cancel()
		r.timers.Stop()
		close(r.shutdownChan)
		r.config.Logger.Debug("event loop shut down", F("loop", r.Name()), F("tasks_run", r.tasksRun.Load()))
	})
}

// IsClosed returns true if the loop has been shut down
func (r *EventLoop) IsClosed() bool {
	return r.closed.Load()
}

// Stop shuts the loop down and waits for the running task to complete.
// It must not be called from a task on the loop.
func (r *EventLoop) Stop() {
	r.once.Do(func() {
		r.Shutdown()
		<-r.stopped
	})
}

// WaitIdle blocks until all currently queued tasks have completed execution.
// Tasks posted after WaitIdle is called, timers and idle callbacks are not waited for.
func (r *EventLoop) WaitIdle(ctx context.Context) error {
	if r.IsClosed() {
		return ErrLoopClosed
	}

	done := make(chan struct{})
	r.PostTask(func(taskCtx context.Context) {
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-r.shutdownChan:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitShutdown blocks until Shutdown() is called on this loop.
func (r *EventLoop) WaitShutdown(ctx context.Context) error {
	select {
	case <-r.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop is the core of the loop, it occupies a dedicated goroutine
func (r *EventLoop) runLoop() {
	defer close(r.stopped)

	runCtx := context.WithValue(r.ctx, eventLoopKey, r)

	for {
		// Posted work always goes before idle callbacks.
		select {
		case <-r.ctx.Done():
			return
		case task := <-r.workQueue:
			r.runTask(runCtx, task)
			continue
		default:
		}

		if r.hasIdleWork() {
			r.runIdlePeriod(runCtx)
			continue
		}

		select {
		case <-r.ctx.Done():
			return
		case task := <-r.workQueue:
			r.runTask(runCtx, task)
		case <-r.idleWake:
		}
	}
}

func (r *EventLoop) runTask(ctx context.Context, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.panics.Add(1)
			r.config.Logger.Error("task panicked", F("loop", r.Name()), F("panic", rec))
			r.config.PanicHandler.HandlePanic(ctx, r.Name(), rec, debug.Stack())
		}
	}()
	r.tasksRun.Add(1)
	task(ctx)
}

func (r *EventLoop) hasIdleWork() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.idleQueue) > 0
}

// idleDeadline computes the end of an idle period starting now.
func (r *EventLoop) idleDeadline() loopDeadline {
	now := time.Now()
	deadline := now.Add(r.config.IdlePeriod)
	if next, ok := r.timers.NextRunAt(); ok && next.Before(deadline) {
		deadline = next
	}
	return loopDeadline{deadline: deadline}
}

// runIdlePeriod runs the idle callbacks requested before the period started.
// Callbacks requested during the period wait for the next one; callbacks left
// over when the budget runs out are kept at the head of the queue.
func (r *EventLoop) runIdlePeriod(ctx context.Context) {
	r.mu.Lock()
	batch := r.idleQueue
	r.idleQueue = nil
	r.mu.Unlock()

	r.idlePeriods.Add(1)
	deadline := r.idleDeadline()

	for i, req := range batch {
		if i > 0 && deadline.TimeRemaining() == 0 {
			r.mu.Lock()
			r.idleQueue = append(append([]idleRequest(nil), batch[i:]...), r.idleQueue...)
			r.mu.Unlock()
			return
		}
		fn := req.fn
		r.runTask(ctx, func(context.Context) { fn(deadline) })
	}
}
