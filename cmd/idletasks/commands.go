package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-idle-tasks/core"
	"github.com/Swind/go-idle-tasks/idle"
	"github.com/Swind/go-idle-tasks/pipeline"
	"github.com/Swind/go-idle-tasks/runner"
)

// =============================================================================
// sync
// =============================================================================

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run CPU-bound fib tasks across idle slices",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "tasks", Aliases: []string{"n"}, Value: 2000, Usage: "Number of tasks"},
			&cli.IntFlag{Name: "fib", Value: 25, Usage: "Fibonacci index computed by each task"},
			&cli.BoolFlag{Name: "polyfill", Usage: "Use the timer fallback instead of the event loop's idle notification"},
		},
		Action: syncAction,
	}
}

func syncAction(c *cli.Context) error {
	env := envFrom(c)
	n, k := c.Int("tasks"), c.Int("fib")
	if n < 0 || k < 0 {
		return cli.Exit("tasks and fib must not be negative", 1)
	}

	loop := core.NewEventLoop(&core.EventLoopConfig{
		Name:       "sync",
		IdlePeriod: env.cfg.Idle.IdlePeriod,
		Logger:     env.coreLogger("sync"),
	})
	defer loop.Stop()

	var provider idle.Provider = idle.NewLoopProvider(loop)
	if c.Bool("polyfill") {
		provider = idle.NewTimerProvider(loop, nil).WithSliceSize(env.cfg.Idle.SliceSize)
	}

	start := time.Now()
	results, err := runner.RunTasks(provider, fibTasks(n, k), runner.SyncOptions[int]{
		Logger: env.coreLogger("sync"),
		Name:   "sync",
	}).Wait(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	s := summarizeSync(results)
	fmt.Printf("✓ %d tasks in %d rounds, busy %s, wall %s\n",
		s.Total, s.Rounds, s.Busy.Round(time.Millisecond), time.Since(start).Round(time.Millisecond))
	return nil
}

// =============================================================================
// async
// =============================================================================

func asyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "async",
		Usage: "Run random-latency tasks with bounded concurrency, timeout and retry",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "tasks", Aliases: []string{"n"}, Value: 2000, Usage: "Number of tasks"},
			&cli.IntFlag{Name: "max", Usage: "Tasks in flight at once (default from config)"},
			&cli.DurationFlag{Name: "timeout", Usage: "Per-task timeout across attempts (default from config)"},
			&cli.IntFlag{Name: "retry", Usage: "Attempts per task (default from config)"},
			&cli.DurationFlag{Name: "latency", Value: 100 * time.Millisecond, Usage: "Upper bound of the random task latency"},
			&cli.Float64Flag{Name: "fail-rate", Value: 0.1, Usage: "Probability that an attempt fails"},
		},
		Action: asyncAction,
	}
}

func asyncAction(c *cli.Context) error {
	env := envFrom(c)
	opts := runner.AsyncOptions[int]{
		Max:       env.cfg.Async.Max,
		RetryTime: env.cfg.Async.RetryTime,
		Timeout:   env.cfg.Async.Timeout,
		Logger:    env.coreLogger("async"),
		Name:      "async",
	}
	if c.IsSet("max") {
		opts.Max = c.Int("max")
	}
	if c.IsSet("timeout") {
		opts.Timeout = c.Duration("timeout")
	}
	if c.IsSet("retry") {
		opts.RetryTime = c.Int("retry")
	}
	failRate := c.Float64("fail-rate")
	if failRate < 0 || failRate > 1 {
		return cli.Exit("fail-rate must be within [0, 1]", 1)
	}

	tasks := latencyTasks(c.Int("tasks"), c.Duration("latency"), failRate)
	start := time.Now()
	results, err := runner.RunAsyncTasks(c.Context, tasks, opts).Wait(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	s := summarizeAsync(results)
	fmt.Printf("✓ %d tasks: %d succeeded, %d failed, slowest %s, wall %s\n",
		s.Total, s.Succeeded, s.Failed, s.Slowest.Round(time.Millisecond), time.Since(start).Round(time.Millisecond))
	return nil
}

// =============================================================================
// pipeline
// =============================================================================

func pipelineCommand() *cli.Command {
	return &cli.Command{
		Name:  "pipeline",
		Usage: "Write a file through one step list, blocking and non-blocking",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: os.TempDir(), Usage: "Directory to write into"},
		},
		Action: pipelineAction,
	}
}

// writeFileSteps prepares dir, then writes content to name. With async set the
// mkdir and write run on their own goroutine and the steps answer Pending.
func writeFileSteps(dir, name, content string, async bool) []pipeline.Step[string] {
	run := func(fn func() (string, error)) (pipeline.StepResult[string], error) {
		if !async {
			v, err := fn()
			return pipeline.Value(v), err
		}
		d := core.NewDeferred[string]()
		go func() {
			v, err := fn()
			if err != nil {
				d.Fail(err)
				return
			}
			d.Settle(v)
		}()
		return pipeline.Pending(d.Outcome), nil
	}

	return []pipeline.Step[string]{
		func(_ string, _ pipeline.EndFunc[string]) (pipeline.StepResult[string], error) {
			return run(func() (string, error) {
				return dir, os.MkdirAll(dir, 0o755)
			})
		},
		func(dir string, _ pipeline.EndFunc[string]) (pipeline.StepResult[string], error) {
			path := filepath.Join(dir, name)
			return run(func() (string, error) {
				return path, os.WriteFile(path, []byte(content), 0o644)
			})
		},
	}
}

func pipelineAction(c *cli.Context) error {
	dir := filepath.Join(c.String("dir"), "idletasks-pipeline")

	out := pipeline.RunTaskQueue(writeFileSteps(dir, "sync.txt", "written synchronously\n", false))
	path, err, ok := out.Get()
	if !ok {
		return cli.Exit("blocking variant unexpectedly went asynchronous", 1)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	fmt.Printf("✓ blocking variant wrote %s (async=%v)\n", path, out.IsAsync())

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()
	out = pipeline.RunTaskQueue(writeFileSteps(dir, "async.txt", "written asynchronously\n", true))
	path, err = out.Wait(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	fmt.Printf("✓ non-blocking variant wrote %s (async=%v)\n", path, out.IsAsync())
	return nil
}
