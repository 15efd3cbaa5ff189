package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/Swind/go-idle-tasks/runner"
)

var errInjected = errors.New("injected failure")

// fib is deliberately naive so each task burns a predictable amount of CPU.
func fib(n int) int {
	if n < 2 {
		return n
	}
	return fib(n-1) + fib(n-2)
}

func fibTasks(n, k int) []runner.SyncTask[int] {
	tasks := make([]runner.SyncTask[int], n)
	for i := range tasks {
		tasks[i] = func() int { return fib(k) }
	}
	return tasks
}

// latencyTasks returns n tasks that each wait up to maxLatency and then fail
// with probability failRate. A task returns its own index on success.
func latencyTasks(n int, maxLatency time.Duration, failRate float64) []runner.AsyncTask[int] {
	tasks := make([]runner.AsyncTask[int], n)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (int, error) {
			var wait time.Duration
			if maxLatency > 0 {
				wait = rand.N(maxLatency)
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
			if rand.Float64() < failRate {
				return 0, errInjected
			}
			return i, nil
		}
	}
	return tasks
}

type asyncSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Slowest   time.Duration
}

func summarizeAsync[T any](results []runner.AsyncResult[T]) asyncSummary {
	s := asyncSummary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.Slowest = max(s.Slowest, r.Elapse)
	}
	return s
}

type syncSummary struct {
	Total  int
	Rounds int
	Busy   time.Duration
}

func summarizeSync[T any](results []runner.SyncResult[T]) syncSummary {
	s := syncSummary{Total: len(results)}
	for _, r := range results {
		s.Busy += r.Elapse
	}
	if len(results) > 0 {
		s.Rounds = results[len(results)-1].Round + 1
	}
	return s
}
