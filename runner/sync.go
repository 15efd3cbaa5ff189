package runner

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Swind/go-idle-tasks/core"
	"github.com/Swind/go-idle-tasks/idle"
)

var (
	// ErrTaskPanicked wraps the value recovered from a panicking task.
	ErrTaskPanicked = errors.New("task panicked")

	// ErrNoProvider is returned when RunTasks is called without an idle provider.
	ErrNoProvider = errors.New("no idle provider")
)

// SyncTask is one unit of synchronous work.
type SyncTask[T any] func() T

// SyncResult is the report of one synchronous task.
type SyncResult[T any] struct {
	Start  time.Time
	Elapse time.Duration
	Result T

	// Round is the zero-based index of the idle slice the task ran in.
	Round int
}

// SyncOptions configures RunTasks. All fields are optional.
type SyncOptions[T any] struct {
	// OnSingleTaskDone runs right after each task, within the same slice.
	OnSingleTaskDone func(result T, index int)

	Clock   core.Clock
	Logger  core.Logger
	Metrics core.Metrics

	// Name labels logs and metrics.
	Name string
}

func (o SyncOptions[T]) normalize() SyncOptions[T] {
	if o.Clock == nil {
		o.Clock = core.SystemClock()
	}
	if o.Logger == nil {
		o.Logger = core.NewNoOpLogger()
	}
	if o.Metrics == nil {
		o.Metrics = &core.NilMetrics{}
	}
	if o.Name == "" {
		o.Name = "sync"
	}
	return o
}

// RunTasks runs tasks in order across as many idle slices of provider as
// needed. Within a slice each task's elapsed time is charged against the
// budget the slice started with; once the budget is spent the runner asks for
// another slice. A task is never interrupted, and every slice runs at least
// one task so the batch always progresses.
//
// The returned future resolves with one SyncResult per task in input order.
// It fails only if a task panics.
func RunTasks[T any](provider idle.Provider, tasks []SyncTask[T], opts SyncOptions[T]) *core.Future[[]SyncResult[T]] {
	if len(tasks) == 0 {
		return core.Resolved([]SyncResult[T]{})
	}
	if provider == nil {
		return core.Rejected[[]SyncResult[T]](ErrNoProvider)
	}

	b := &syncBatch[T]{
		id:       uuid.NewString(),
		provider: provider,
		tasks:    tasks,
		opts:     opts.normalize(),
		results:  make([]SyncResult[T], 0, len(tasks)),
		out:      core.NewDeferred[[]SyncResult[T]](),
	}
	b.requestSlice()
	return b.out.Outcome
}

// syncBatch owns the scheduling state of one RunTasks call. Slices never
// overlap, so it needs no locking.
type syncBatch[T any] struct {
	id       string
	provider idle.Provider
	tasks    []SyncTask[T]
	opts     SyncOptions[T]

	round    int
	runIndex int
	results  []SyncResult[T]

	out *core.Deferred[[]SyncResult[T]]
}

func (b *syncBatch[T]) requestSlice() {
	b.opts.Logger.Debug("requesting idle slice",
		core.F("batch", b.id),
		core.F("round", b.round),
		core.F("next", b.runIndex),
	)
	b.provider.RequestSlice(b.runSlice)
}

func (b *syncBatch[T]) runSlice(deadline idle.Deadline) {
	budget := deadline.TimeRemaining()
	remaining := budget
	ran := 0
	prev := b.opts.Clock.Now()

	for ran == 0 || remaining > 0 {
		index := b.runIndex
		result, err := b.runOne(index)
		if err != nil {
			b.opts.Metrics.RecordTaskPanic(b.opts.Name, err)
			b.opts.Logger.Error("sync task panicked",
				core.F("batch", b.id),
				core.F("index", index),
				core.F("error", err),
			)
			b.out.Fail(err)
			return
		}
		b.runIndex++
		ran++

		now := b.opts.Clock.Now()
		elapse := now.Sub(prev)
		b.opts.Metrics.RecordTaskDuration(b.opts.Name, "sync", elapse)
		b.results = append(b.results, SyncResult[T]{
			Start:  prev,
			Elapse: elapse,
			Result: result,
			Round:  b.round,
		})

		if b.runIndex >= len(b.tasks) {
			b.opts.Metrics.RecordSlice(b.opts.Name, budget, ran)
			b.opts.Logger.Debug("sync batch done",
				core.F("batch", b.id),
				core.F("rounds", b.round+1),
			)
			b.out.Settle(b.results)
			return
		}
		prev = now
		remaining -= elapse
	}

	b.opts.Metrics.RecordSlice(b.opts.Name, budget, ran)
	b.round++
	b.requestSlice()
}

// runOne executes the task and its callback, turning a panic into an error.
func (b *syncBatch[T]) runOne(index int) (result T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: task %d: %v", ErrTaskPanicked, index, rec)
		}
	}()
	result = b.tasks[index]()
	if cb := b.opts.OnSingleTaskDone; cb != nil {
		cb(result, index)
	}
	return result, nil
}
