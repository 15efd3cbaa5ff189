package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-idle-tasks/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type loopStub struct {
	stats core.LoopStats
}

func (s loopStub) Stats() core.LoopStats { return s.stats }

func TestSnapshotPoller_CollectsLoopStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddLoop("loop-a", loopStub{stats: core.LoopStats{
		Name:          "loop-a",
		Pending:       3,
		IdlePending:   2,
		TimersPending: 4,
		TasksRun:      10,
		IdlePeriods:   6,
		Panics:        1,
		Closed:        true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		pending := testutil.ToFloat64(poller.loopPending.WithLabelValues("loop-a"))
		idle := testutil.ToFloat64(poller.loopIdlePending.WithLabelValues("loop-a"))
		return pending == 3 && idle == 2
	})

	if got := testutil.ToFloat64(poller.loopTimersPending.WithLabelValues("loop-a")); got != 4 {
		t.Fatalf("timers pending gauge = %v, want 4", got)
	}
	if got := testutil.ToFloat64(poller.loopIdlePeriods.WithLabelValues("loop-a")); got != 6 {
		t.Fatalf("idle periods gauge = %v, want 6", got)
	}
	if got := testutil.ToFloat64(poller.loopClosed.WithLabelValues("loop-a")); got != 1 {
		t.Fatalf("loop closed gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_LiveEventLoop(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	loop := core.NewEventLoop(nil)
	defer loop.Stop()
	poller.AddLoop("", loop)

	for i := 0; i < 5; i++ {
		loop.PostTask(func(ctx context.Context) {})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		return testutil.ToFloat64(poller.loopTasksRun.WithLabelValues("loop")) == 5
	})
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
