package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Swind/go-idle-tasks/core"
)

var (
	// ErrStepPanicked wraps the value recovered from a panicking step.
	ErrStepPanicked = errors.New("pipeline step panicked")

	// ErrNilFuture is returned when a step answers Pending(nil).
	ErrNilFuture = errors.New("pipeline step returned a nil future")
)

type resultKind int

const (
	kindValue resultKind = iota
	kindPending
	kindTerminal
)

// StepResult is what a step hands to the pipeline: a plain value, a future
// of a value, or a terminal value that stops the pipeline.
type StepResult[T any] struct {
	kind   resultKind
	value  T
	future *core.Future[T]
}

// Value feeds v to the next step.
func Value[T any](v T) StepResult[T] {
	return StepResult[T]{kind: kindValue, value: v}
}

// Pending suspends the pipeline until f settles, then feeds its value on.
func Pending[T any](f *core.Future[T]) StepResult[T] {
	return StepResult[T]{kind: kindPending, future: f}
}

// End stops the pipeline with v as its final value.
func End[T any](v T) StepResult[T] {
	return StepResult[T]{kind: kindTerminal, value: v}
}

// IsTerminal reports whether r stops the pipeline.
func (r StepResult[T]) IsTerminal() bool {
	return r.kind == kindTerminal
}

// EndFunc is handed to every step. Calling it marks the step as the last one;
// the step's own result becomes the pipeline's final value.
type EndFunc[T any] func(v T) StepResult[T]

// Step receives the value produced by the previous step (the zero value for
// the first step).
type Step[T any] func(prev T, end EndFunc[T]) (StepResult[T], error)

// Outcome is the result of RunTaskQueue: Immediate when every step answered
// synchronously, Deferred as soon as one step answered Pending.
type Outcome[T any] struct {
	value  T
	err    error
	future *core.Future[T]
}

// IsAsync reports whether the outcome is Deferred.
func (o Outcome[T]) IsAsync() bool {
	return o.future != nil
}

// Get returns the immediate value. ok is false for a Deferred outcome.
func (o Outcome[T]) Get() (value T, err error, ok bool) {
	if o.future != nil {
		var zero T
		return zero, nil, false
	}
	return o.value, o.err, true
}

// Future returns the outcome as a future, settled already when Immediate.
func (o Outcome[T]) Future() *core.Future[T] {
	if o.future != nil {
		return o.future
	}
	if o.err != nil {
		return core.Rejected[T](o.err)
	}
	return core.Resolved(o.value)
}

// Wait returns the final value, blocking on a Deferred outcome.
func (o Outcome[T]) Wait(ctx context.Context) (T, error) {
	if o.future == nil {
		return o.value, o.err
	}
	return o.future.Wait(ctx)
}

// RunTaskQueue runs steps strictly in sequence.
//
// As long as every step answers Value, the pipeline runs to completion before
// returning and the outcome is Immediate. The first Pending commits the whole
// invocation to a Deferred outcome, even if every later step is synchronous.
// This lets one step list back both a blocking and a non-blocking variant of
// an operation.
//
// A step error, a panic, or a rejected future ends the pipeline with that
// error. When the list runs out, the last produced value is the result.
func RunTaskQueue[T any](steps []Step[T]) Outcome[T] {
	q := &queueRun[T]{steps: steps}
	return q.advance()
}

// queueRun owns the state of one RunTaskQueue invocation.
type queueRun[T any] struct {
	steps    []Step[T]
	next     int
	prev     T
	finished bool

	// out is set once the run has gone asynchronous.
	out *core.Deferred[T]
}

func (q *queueRun[T]) end(v T) StepResult[T] {
	q.finished = true
	return End(v)
}

func (q *queueRun[T]) advance() Outcome[T] {
	for q.next < len(q.steps) {
		index := q.next
		q.next++

		res, err := q.call(index)
		if err != nil {
			return q.fail(err)
		}

		switch res.kind {
		case kindTerminal:
			return q.succeed(res.value)
		case kindPending:
			if res.future == nil {
				return q.fail(fmt.Errorf("step %d: %w", index, ErrNilFuture))
			}
			q.suspend(res.future)
			return Outcome[T]{future: q.out.Outcome}
		default:
			if q.finished {
				return q.succeed(res.value)
			}
			q.prev = res.value
		}
	}
	return q.succeed(q.prev)
}

func (q *queueRun[T]) call(index int) (res StepResult[T], err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: step %d: %v", ErrStepPanicked, index, rec)
		}
	}()
	return q.steps[index](q.prev, q.end)
}

// suspend commits the run to a Deferred outcome and resumes once f settles.
func (q *queueRun[T]) suspend(f *core.Future[T]) {
	if q.out == nil {
		q.out = core.NewDeferred[T]()
	}
	f.Then(func(v T, err error) {
		if err != nil {
			q.out.Fail(err)
			return
		}
		if q.finished {
			q.out.Settle(v)
			return
		}
		q.prev = v
		q.advance()
	})
}

func (q *queueRun[T]) succeed(v T) Outcome[T] {
	if q.out == nil {
		return Outcome[T]{value: v}
	}
	q.out.Settle(v)
	return Outcome[T]{future: q.out.Outcome}
}

func (q *queueRun[T]) fail(err error) Outcome[T] {
	if q.out == nil {
		return Outcome[T]{err: err}
	}
	q.out.Fail(err)
	return Outcome[T]{future: q.out.Outcome}
}
