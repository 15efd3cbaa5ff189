package core_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Swind/go-idle-tasks/core"
)

// =============================================================================
// Deferred / Future Tests
// =============================================================================

func TestDeferred_SettleOnce(t *testing.T) {
	d := core.NewDeferred[int]()

	if d.Outcome.IsSettled() {
		t.Fatal("new deferred should be pending")
	}
	if !d.Settle(1) {
		t.Fatal("first Settle should take effect")
	}
	if d.Settle(2) {
		t.Fatal("second Settle should be ignored")
	}
	if d.Fail(errors.New("late")) {
		t.Fatal("Fail after Settle should be ignored")
	}

	v, err, ok := d.Outcome.Result()
	if !ok || err != nil || v != 1 {
		t.Fatalf("Result() = (%v, %v, %v), want (1, nil, true)", v, err, ok)
	}
}

func TestDeferred_Fail(t *testing.T) {
	boom := errors.New("boom")
	d := core.WithResolve[string]()
	d.Fail(boom)

	v, err := d.Outcome.Wait(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if v != "" {
		t.Fatalf("value = %q, want zero value", v)
	}
}

func TestFuture_ResultWhilePending(t *testing.T) {
	d := core.NewDeferred[int]()
	if _, _, ok := d.Outcome.Result(); ok {
		t.Fatal("Result() on pending future should report ok=false")
	}
}

func TestFuture_WaitRespectsContext(t *testing.T) {
	d := core.NewDeferred[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Outcome.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestFuture_ThenBeforeAndAfterSettle(t *testing.T) {
	d := core.NewDeferred[int]()

	var calls atomic.Int32
	var got atomic.Int64
	d.Outcome.Then(func(v int, err error) {
		calls.Add(1)
		got.Store(int64(v))
	})

	d.Settle(7)
	if calls.Load() != 1 || got.Load() != 7 {
		t.Fatalf("early observer: calls=%d value=%d, want 1 and 7", calls.Load(), got.Load())
	}

	// Late observers run immediately with the settled value
	late := 0
	d.Outcome.Then(func(v int, err error) { late = v })
	if late != 7 {
		t.Fatalf("late observer saw %d, want 7", late)
	}

	d.Settle(8)
	if calls.Load() != 1 {
		t.Fatalf("observer ran %d times, want 1", calls.Load())
	}
}

func TestDeferred_ConcurrentSettle(t *testing.T) {
	d := core.NewDeferred[int]()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			if d.Settle(v) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins.Load())
	}
	select {
	case <-d.Outcome.Done():
	default:
		t.Fatal("Done() channel should be closed")
	}
}

func TestResolvedAndRejected(t *testing.T) {
	v, err := core.Resolved(3).Wait(context.Background())
	if v != 3 || err != nil {
		t.Fatalf("Resolved = (%v, %v), want (3, nil)", v, err)
	}

	boom := errors.New("boom")
	_, err = core.Rejected[int](boom).Wait(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Rejected err = %v, want %v", err, boom)
	}
}
