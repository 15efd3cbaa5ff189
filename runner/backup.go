package runner

import (
	"context"
	"time"

	"github.com/Swind/go-idle-tasks/core"
)

// DefaultBackupWait is how long RunWithBackup waits before using the fallback.
const DefaultBackupWait = 200 * time.Millisecond

// BackupOptions configures RunWithBackup.
type BackupOptions[T any] struct {
	// Wait is how long the task may take before the fallback is used.
	Wait time.Duration

	// Fallback computes the value used when the task is too slow. When nil,
	// Value is used instead.
	Fallback func(ctx context.Context) (T, error)

	// Value is the static fallback, the zero value by default.
	Value T

	// Timers defaults to a DelayManager stopped once the result settles.
	Timers core.Timers
}

// RunWithBackup races task against opts.Wait. The future resolves with the
// task's value if it succeeds in time, and with the fallback otherwise. A
// failing task does not settle the future early: the fallback still decides
// once the wait is over.
func RunWithBackup[T any](ctx context.Context, task AsyncTask[T], opts BackupOptions[T]) *core.Future[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Wait <= 0 {
		opts.Wait = DefaultBackupWait
	}

	out := core.NewDeferred[T]()
	taskCtx, cancel := context.WithCancel(ctx)

	timers := opts.Timers
	if timers == nil {
		dm := core.NewDelayManager()
		timers = dm
		out.Outcome.Then(func(T, error) { dm.Stop() })
	}
	out.Outcome.Then(func(T, error) { cancel() })

	timer := timers.AfterFunc(opts.Wait, func() {
		if out.Outcome.IsSettled() {
			return
		}
		if opts.Fallback == nil {
			out.Settle(opts.Value)
			return
		}
		value, err := opts.Fallback(ctx)
		if err != nil {
			out.Fail(err)
			return
		}
		out.Settle(value)
	})

	go func() {
		value, err := callTask(taskCtx, task)
		if err != nil {
			return
		}
		timers.Cancel(timer)
		out.Settle(value)
	}()

	return out.Outcome
}
