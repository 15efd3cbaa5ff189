package idletasks

import (
	"context"

	"github.com/Swind/go-idle-tasks/core"
	"github.com/Swind/go-idle-tasks/pipeline"
	"github.com/Swind/go-idle-tasks/runner"
)

// Re-export commonly used types so that most callers only import this package.

// Future is a write-once outcome observable any number of times
type Future[T any] = core.Future[T]

// Deferred pairs a Future with its Settle/Fail triggers
type Deferred[T any] = core.Deferred[T]

// AsyncTask is a unit of asynchronous work for RunAsyncTasks
type AsyncTask[T any] = runner.AsyncTask[T]

// AsyncOptions configures RunAsyncTasks
type AsyncOptions[T any] = runner.AsyncOptions[T]

// AsyncResult is the per-task report of RunAsyncTasks
type AsyncResult[T any] = runner.AsyncResult[T]

// TaskDone and Verdict are the OnSingleTaskDone argument and answer
type TaskDone[T any] = runner.TaskDone[T]
type Verdict[T any] = runner.Verdict[T]

// SyncTask is a unit of synchronous work for RunTasks
type SyncTask[T any] = runner.SyncTask[T]

// SyncResult is the per-task report of RunTasks
type SyncResult[T any] = runner.SyncResult[T]

// Step, StepResult and Outcome make up a RunTaskQueue pipeline
type Step[T any] = pipeline.Step[T]
type StepResult[T any] = pipeline.StepResult[T]
type Outcome[T any] = pipeline.Outcome[T]
type EndFunc[T any] = pipeline.EndFunc[T]

// WithResolve creates a pending Deferred.
func WithResolve[T any]() *Deferred[T] {
	return core.NewDeferred[T]()
}

// RunAsyncTasks runs tasks with bounded concurrency, timeout and retry.
// See runner.RunAsyncTasks.
func RunAsyncTasks[T any](tasks []AsyncTask[T], opts AsyncOptions[T]) *Future[[]AsyncResult[T]] {
	return runner.RunAsyncTasks(context.Background(), tasks, opts)
}

// RunTasks runs synchronous tasks across idle slices of the process-wide idle
// provider, installing the timer fallback if none is installed yet.
// See runner.RunTasks.
func RunTasks[T any](tasks []SyncTask[T], onSingleTaskDone func(result T, index int)) *Future[[]SyncResult[T]] {
	return runner.RunTasks(EnsureIdleProvider(), tasks, runner.SyncOptions[T]{
		OnSingleTaskDone: onSingleTaskDone,
	})
}

// RunTaskQueue runs steps in sequence, synchronously while they allow it.
// See pipeline.RunTaskQueue.
func RunTaskQueue[T any](steps []Step[T]) Outcome[T] {
	return pipeline.RunTaskQueue(steps)
}

// Value feeds v to the next step of a RunTaskQueue pipeline.
func Value[T any](v T) StepResult[T] {
	return pipeline.Value(v)
}

// Pending suspends a RunTaskQueue pipeline until f settles.
func Pending[T any](f *Future[T]) StepResult[T] {
	return pipeline.Pending(f)
}

// End builds the terminal step result that stops a RunTaskQueue pipeline.
func End[T any](v T) StepResult[T] {
	return pipeline.End(v)
}
