// Package runner schedules batches of tasks cooperatively.
//
// RunAsyncTasks keeps a bounded number of asynchronous tasks in flight, with a
// per-task timeout and retries. RunTasks splits synchronous work across idle
// slices granted by an idle.Provider. RunWithBackup races a task against a
// fallback.
//
// Every batch settles a core.Future; callers pick between blocking on it with
// Wait and observing it with Then.
package runner
