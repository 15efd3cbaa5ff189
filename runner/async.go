package runner

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/Swind/go-idle-tasks/core"
)

const (
	// DefaultMax is the default number of tasks in flight at once.
	DefaultMax = 10

	// DefaultRetryTime is the default number of attempts per task.
	DefaultRetryTime = 2

	// DefaultTimeout bounds a task across all of its attempts.
	DefaultTimeout = 10 * time.Second
)

// AsyncTask is one unit of asynchronous work. ctx is cancelled once the task
// has a definitive outcome or the batch has settled; the task is expected to
// return promptly then, but nothing forces it to.
type AsyncTask[T any] func(ctx context.Context) (T, error)

// FromFuture adapts a task that produces a future.
func FromFuture[T any](fn func() *core.Future[T]) AsyncTask[T] {
	return func(ctx context.Context) (T, error) {
		return fn().Wait(ctx)
	}
}

// AsyncResult is the report of one task, stored at the task's input index.
type AsyncResult[T any] struct {
	Start   time.Time
	Elapse  time.Duration
	Result  T
	Success bool
}

// TaskDone is handed to OnSingleTaskDone after each task settles.
type TaskDone[T any] struct {
	Result  T
	Index   int
	Success bool
}

// Verdict is what OnSingleTaskDone may answer.
type Verdict[T any] struct {
	// Abort ends the batch: RunAsyncTasks resolves with an empty slice and
	// no further task is dispatched.
	Abort bool

	// Data replaces the stored result of the task. The zero value is ignored.
	Data T
}

// AsyncOptions configures RunAsyncTasks. Zero fields take their defaults.
type AsyncOptions[T any] struct {
	// Max is the number of tasks in flight at once.
	Max int

	// RetryTime is the number of attempts per task, the first one included.
	RetryTime int

	// Timeout bounds each task across all of its attempts.
	Timeout time.Duration

	// OnSingleTaskDone runs after each task settles, on the batch coordinator.
	// Returning nil keeps the result as is.
	OnSingleTaskDone func(done TaskDone[T]) *Verdict[T]

	// Backoff is waited between two attempts. The zero value retries at once.
	Backoff core.Backoff

	// Timers drives timeouts and backoff. Defaults to a DelayManager owned by
	// the batch and stopped when it settles.
	Timers core.Timers

	Clock   core.Clock
	Logger  core.Logger
	Metrics core.Metrics

	// Name labels logs and metrics.
	Name string
}

// DefaultAsyncOptions returns the options used for zero fields.
func DefaultAsyncOptions[T any]() AsyncOptions[T] {
	return AsyncOptions[T]{
		Max:       DefaultMax,
		RetryTime: DefaultRetryTime,
		Timeout:   DefaultTimeout,
		Clock:     core.SystemClock(),
		Logger:    core.NewNoOpLogger(),
		Metrics:   &core.NilMetrics{},
		Name:      "async",
	}
}

func (o AsyncOptions[T]) normalize() AsyncOptions[T] {
	def := DefaultAsyncOptions[T]()
	if o.Max < 1 {
		o.Max = def.Max
	}
	if o.RetryTime < 1 {
		o.RetryTime = def.RetryTime
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.Clock == nil {
		o.Clock = def.Clock
	}
	if o.Logger == nil {
		o.Logger = def.Logger
	}
	if o.Metrics == nil {
		o.Metrics = def.Metrics
	}
	if o.Name == "" {
		o.Name = def.Name
	}
	return o
}

// RunAsyncTasks runs tasks with at most opts.Max in flight, dispatching them
// in input order. Each task gets opts.RetryTime attempts and opts.Timeout of
// wall-clock time in total; a task that fails every attempt or times out is
// reported with Success=false and a zero Result.
//
// The returned future resolves with one AsyncResult per task in input order,
// or with an empty slice when OnSingleTaskDone aborts the batch. It never fails.
func RunAsyncTasks[T any](ctx context.Context, tasks []AsyncTask[T], opts AsyncOptions[T]) *core.Future[[]AsyncResult[T]] {
	if len(tasks) == 0 {
		return core.Resolved([]AsyncResult[T]{})
	}

	b := newAsyncBatch(ctx, tasks, opts.normalize())
	go b.run()
	return b.out.Outcome
}

// =============================================================================
// Batch coordinator
// =============================================================================

// taskPhase is the state of one task:
// Pending -> Attempting <-> Retrying -> Succeeded | Exhausted | TimedOut
type taskPhase int

const (
	phasePending taskPhase = iota
	phaseAttempting
	phaseRetrying
	phaseSucceeded
	phaseExhausted
	phaseTimedOut
)

func (p taskPhase) settled() bool {
	return p >= phaseSucceeded
}

// attemptOutcome is the tagged result of a single attempt.
type attemptOutcome int

const (
	attemptOK attemptOutcome = iota
	attemptRetry
	attemptFailed
)

type eventKind int

const (
	eventAttempt eventKind = iota
	eventRetryDue
	eventTimeout
)

type asyncEvent[T any] struct {
	kind    eventKind
	index   int
	attempt int
	outcome attemptOutcome
	value   T
	err     error
}

type taskState struct {
	phase      taskPhase
	attempts   int
	start      time.Time
	timeout    core.TimerHandle
	retryTimer core.TimerHandle
	ctx        context.Context
	cancel     context.CancelFunc
}

// asyncBatch owns all scheduling state of one RunAsyncTasks call. Only the
// coordinator goroutine (run) touches it; attempts report through events.
type asyncBatch[T any] struct {
	id     string
	tasks  []AsyncTask[T]
	opts   AsyncOptions[T]
	timers core.Timers
	owned  *core.DelayManager

	ctx    context.Context
	cancel context.CancelFunc

	states      []taskState
	results     []AsyncResult[T]
	runIndex    int
	finishCount int

	events   chan asyncEvent[T]
	finished chan struct{}
	out      *core.Deferred[[]AsyncResult[T]]
}

func newAsyncBatch[T any](ctx context.Context, tasks []AsyncTask[T], opts AsyncOptions[T]) *asyncBatch[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	batchCtx, cancel := context.WithCancel(ctx)

	b := &asyncBatch[T]{
		id:       uuid.NewString(),
		tasks:    tasks,
		opts:     opts,
		timers:   opts.Timers,
		ctx:      batchCtx,
		cancel:   cancel,
		states:   make([]taskState, len(tasks)),
		results:  make([]AsyncResult[T], len(tasks)),
		events:   make(chan asyncEvent[T]),
		finished: make(chan struct{}),
		out:      core.NewDeferred[[]AsyncResult[T]](),
	}
	if b.timers == nil {
		b.owned = core.NewDelayManager()
		b.timers = b.owned
	}
	return b
}

func (b *asyncBatch[T]) run() {
	defer b.release()

	n := min(b.opts.Max, len(b.tasks))
	b.opts.Logger.Debug("async batch started",
		core.F("batch", b.id),
		core.F("runner", b.opts.Name),
		core.F("tasks", len(b.tasks)),
		core.F("slots", n),
	)
	for range n {
		b.dispatchNext()
	}

	for ev := range b.events {
		if b.handle(ev) {
			return
		}
	}
}

// post delivers ev to the coordinator, or drops it once the batch is over.
func (b *asyncBatch[T]) post(ev asyncEvent[T]) {
	select {
	case b.events <- ev:
	case <-b.finished:
	}
}

func (b *asyncBatch[T]) dispatchNext() {
	index := b.runIndex
	b.runIndex++

	st := &b.states[index]
	st.start = b.opts.Clock.Now()
	st.ctx, st.cancel = context.WithCancel(b.ctx)
	st.timeout = b.timers.AfterFunc(b.opts.Timeout, func() {
		b.post(asyncEvent[T]{kind: eventTimeout, index: index})
	})

	b.opts.Logger.Debug("task dispatched", core.F("batch", b.id), core.F("index", index))
	b.startAttempt(index)
}

func (b *asyncBatch[T]) startAttempt(index int) {
	st := &b.states[index]
	taskCtx := st.ctx
	st.phase = phaseAttempting
	st.attempts++
	attempt := st.attempts
	task := b.tasks[index]
	retryTime := b.opts.RetryTime

	go func() {
		value, err := callTask(taskCtx, task)
		ev := asyncEvent[T]{kind: eventAttempt, index: index, attempt: attempt, value: value, err: err}
		switch {
		case err == nil:
			ev.outcome = attemptOK
		case attempt < retryTime:
			ev.outcome = attemptRetry
		default:
			ev.outcome = attemptFailed
		}
		b.post(ev)
	}()
}

// callTask runs one attempt; a panic counts as a failed attempt.
func callTask[T any](ctx context.Context, task AsyncTask[T]) (value T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, rec)
		}
	}()
	return task(ctx)
}

// handle applies one event and reports whether the batch is over.
func (b *asyncBatch[T]) handle(ev asyncEvent[T]) bool {
	st := &b.states[ev.index]
	if st.phase.settled() {
		return false
	}

	switch ev.kind {
	case eventAttempt:
		if st.phase != phaseAttempting || ev.attempt != st.attempts {
			return false
		}
		switch ev.outcome {
		case attemptOK:
			return b.finish(ev.index, phaseSucceeded, ev.value)
		case attemptRetry:
			return b.retry(ev.index, ev.err)
		default:
			b.opts.Logger.Debug("task exhausted retries",
				core.F("batch", b.id), core.F("index", ev.index), core.F("error", ev.err))
			var zero T
			return b.finish(ev.index, phaseExhausted, zero)
		}

	case eventRetryDue:
		if st.phase == phaseRetrying && ev.attempt == st.attempts {
			b.startAttempt(ev.index)
		}
		return false

	case eventTimeout:
		b.opts.Logger.Warn("task timed out",
			core.F("batch", b.id),
			core.F("index", ev.index),
			core.F("timeout", b.opts.Timeout),
			core.F("attempts", st.attempts),
		)
		var zero T
		return b.finish(ev.index, phaseTimedOut, zero)
	}
	return false
}

func (b *asyncBatch[T]) retry(index int, cause error) bool {
	st := &b.states[index]
	st.phase = phaseRetrying
	b.opts.Metrics.RecordRetry(b.opts.Name)
	b.opts.Logger.Debug("retrying task",
		core.F("batch", b.id),
		core.F("index", index),
		core.F("attempt", st.attempts),
		core.F("error", cause),
	)

	delay := b.opts.Backoff.Delay(st.attempts - 1)
	if delay <= 0 {
		b.startAttempt(index)
		return false
	}
	attempt := st.attempts
	st.retryTimer = b.timers.AfterFunc(delay, func() {
		b.post(asyncEvent[T]{kind: eventRetryDue, index: index, attempt: attempt})
	})
	return false
}

// finish records the definitive outcome of a task, consults OnSingleTaskDone
// and refills the slot. It reports whether the batch is over.
func (b *asyncBatch[T]) finish(index int, phase taskPhase, value T) bool {
	st := &b.states[index]
	st.phase = phase
	b.timers.Cancel(st.timeout)
	if st.retryTimer != 0 {
		b.timers.Cancel(st.retryTimer)
	}
	st.cancel()

	success := phase == phaseSucceeded
	elapse := b.opts.Clock.Now().Sub(st.start)
	b.opts.Metrics.RecordTaskOutcome(b.opts.Name, outcomeLabel(phase))
	b.opts.Metrics.RecordTaskDuration(b.opts.Name, "async", elapse)

	if cb := b.opts.OnSingleTaskDone; cb != nil {
		if verdict := cb(TaskDone[T]{Result: value, Index: index, Success: success}); verdict != nil {
			if verdict.Abort {
				b.opts.Metrics.RecordAbort(b.opts.Name)
				b.opts.Logger.Info("async batch aborted",
					core.F("batch", b.id),
					core.F("index", index),
					core.F("finished", b.finishCount),
				)
				b.out.Settle([]AsyncResult[T]{})
				return true
			}
			if !isZero(verdict.Data) {
				value = verdict.Data
			}
		}
	}

	b.results[index] = AsyncResult[T]{
		Start:   st.start,
		Elapse:  elapse,
		Result:  value,
		Success: success,
	}
	b.finishCount++

	if b.finishCount == len(b.tasks) {
		b.opts.Logger.Debug("async batch done", core.F("batch", b.id))
		b.out.Settle(b.results)
		return true
	}
	if b.runIndex < len(b.tasks) {
		b.dispatchNext()
	}
	return false
}

// release stops every pending timer and signals outstanding attempts.
func (b *asyncBatch[T]) release() {
	close(b.finished)
	for i := range b.states[:b.runIndex] {
		st := &b.states[i]
		if st.phase.settled() {
			continue
		}
		b.timers.Cancel(st.timeout)
		if st.retryTimer != 0 {
			b.timers.Cancel(st.retryTimer)
		}
		st.cancel()
	}
	b.cancel()
	if b.owned != nil {
		b.owned.Stop()
	}
}

func outcomeLabel(phase taskPhase) string {
	switch phase {
	case phaseSucceeded:
		return core.OutcomeSuccess
	case phaseTimedOut:
		return core.OutcomeTimeout
	default:
		return core.OutcomeFailed
	}
}

func isZero[T any](v T) bool {
	return reflect.ValueOf(&v).Elem().IsZero()
}
