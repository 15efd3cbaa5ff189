package runner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Swind/go-idle-tasks/runner"
)

func TestRunWithBackup_FastTaskWins(t *testing.T) {
	task := func(ctx context.Context) (string, error) {
		return "primary", nil
	}

	got := waitResults(t, runner.RunWithBackup(context.Background(), task, runner.BackupOptions[string]{
		Wait:  100 * time.Millisecond,
		Value: "backup",
	}))
	if got != "primary" {
		t.Fatalf("got %q, want primary", got)
	}
}

func TestRunWithBackup_SlowTaskFallsBack(t *testing.T) {
	cancelled := make(chan struct{})
	task := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		close(cancelled)
		return "late", nil
	}

	start := time.Now()
	got := waitResults(t, runner.RunWithBackup(context.Background(), task, runner.BackupOptions[string]{
		Wait:  30 * time.Millisecond,
		Value: "backup",
	}))
	if got != "backup" {
		t.Fatalf("got %q, want backup", got)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("fallback used after %v, want >= 30ms", elapsed)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("slow task context was not cancelled")
	}
}

func TestRunWithBackup_FailingTaskWaitsForFallback(t *testing.T) {
	task := func(ctx context.Context) (int, error) {
		return 0, errors.New("broken")
	}

	start := time.Now()
	got := waitResults(t, runner.RunWithBackup(context.Background(), task, runner.BackupOptions[int]{
		Wait: 20 * time.Millisecond,
		Fallback: func(ctx context.Context) (int, error) {
			return 7, nil
		},
	}))
	if got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("fallback used after %v, want >= 20ms", elapsed)
	}
}

func TestRunWithBackup_FallbackError(t *testing.T) {
	boom := errors.New("no fallback")
	task := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}

	_, err := runner.RunWithBackup(context.Background(), task, runner.BackupOptions[int]{
		Wait: 10 * time.Millisecond,
		Fallback: func(ctx context.Context) (int, error) {
			return 0, boom
		},
	}).Wait(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
