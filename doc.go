// Package idletasks provides cooperative task scheduling for Go hosts that
// hand out short uninterrupted time slices or bound the number of in-flight
// asynchronous operations.
//
// Three primitives are provided:
//
//   - RunAsyncTasks runs asynchronous tasks with at most Max in flight, each
//     bounded by a timeout and retried on failure.
//   - RunTasks runs synchronous tasks across idle slices, yielding back to the
//     host before each slice's budget is spent.
//   - RunTaskQueue runs a list of steps that may each answer synchronously or
//     with a future, returning an immediate value or a future accordingly.
//
// # Quick Start
//
// Start the process-wide event loop once at startup. It also installs the
// idle provider used by RunTasks:
//
//	idletasks.InitGlobalEventLoop(nil)
//	defer idletasks.ShutdownGlobal()
//
// Run synchronous work in idle slices:
//
//	results, err := idletasks.RunTasks(tasks, nil).Wait(ctx)
//
// Run asynchronous work with bounded concurrency:
//
//	results, _ := idletasks.RunAsyncTasks(tasks, idletasks.AsyncOptions[int]{Max: 4}).Wait(ctx)
//
// Without an event loop, RunTasks falls back to a timer-based idle provider
// that grants 16ms slices.
//
// # Key Concepts
//
// Slot: one unit of permitted concurrency in RunAsyncTasks.
//
// Idle slice: a window of execution time granted by the host, outside of
// which cooperative work must pause and ask again.
//
// Round: the ordinal of an idle slice, recorded against every task it ran.
//
// Deferred: a future paired with the triggers that settle it.
//
// The runner, pipeline, idle and core packages expose the same operations
// with every collaborator injected explicitly; this package only adds the
// process-wide idle provider.
package idletasks
