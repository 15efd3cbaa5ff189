package idle_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-idle-tasks/core"
	"github.com/Swind/go-idle-tasks/idle"
)

// manualTimers collects callbacks and fires them on demand.
type manualTimers struct {
	mu      sync.Mutex
	next    core.TimerHandle
	pending map[core.TimerHandle]func()
}

func newManualTimers() *manualTimers {
	return &manualTimers{pending: make(map[core.TimerHandle]func())}
}

func (m *manualTimers) AfterFunc(delay time.Duration, fn func()) core.TimerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.pending[m.next] = fn
	return m.next
}

func (m *manualTimers) Cancel(h core.TimerHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[h]
	delete(m.pending, h)
	return ok
}

func (m *manualTimers) fireAll() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.pending))
	for h, fn := range m.pending {
		fns = append(fns, fn)
		delete(m.pending, h)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTimerProvider_BudgetIsSliceMinusWait(t *testing.T) {
	timers := newManualTimers()
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := idle.NewTimerProvider(timers, clock)
	require.Equal(t, idle.DefaultSliceSize, p.SliceSize())

	var got []time.Duration
	p.RequestSlice(func(d idle.Deadline) {
		got = append(got, d.TimeRemaining())
		assert.False(t, d.DidTimeout())
	})

	clock.Advance(4 * time.Millisecond)
	timers.fireAll()

	require.Len(t, got, 1)
	assert.Equal(t, 12*time.Millisecond, got[0])
}

func TestTimerProvider_BudgetNeverNegative(t *testing.T) {
	timers := newManualTimers()
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := idle.NewTimerProvider(timers, clock)

	var got time.Duration = -1
	p.RequestSlice(func(d idle.Deadline) {
		got = d.TimeRemaining()
	})

	clock.Advance(40 * time.Millisecond)
	timers.fireAll()

	assert.Equal(t, time.Duration(0), got)
}

func TestTimerProvider_BudgetShrinksDuringSlice(t *testing.T) {
	timers := newManualTimers()
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := idle.NewTimerProvider(timers, clock).WithSliceSize(10 * time.Millisecond)

	var before, after time.Duration
	p.RequestSlice(func(d idle.Deadline) {
		before = d.TimeRemaining()
		clock.Advance(3 * time.Millisecond)
		after = d.TimeRemaining()
	})
	timers.fireAll()

	assert.Equal(t, 10*time.Millisecond, before)
	assert.Equal(t, 7*time.Millisecond, after)
}

func TestTimerProvider_Cancel(t *testing.T) {
	timers := newManualTimers()
	p := idle.NewTimerProvider(timers, nil)

	ran := false
	h := p.RequestSlice(func(idle.Deadline) { ran = true })
	assert.True(t, p.CancelSlice(h))
	assert.False(t, p.CancelSlice(h))

	timers.fireAll()
	assert.False(t, ran)
}

func TestTimerProvider_WithDelayManager(t *testing.T) {
	dm := core.NewDelayManager()
	defer dm.Stop()
	p := idle.NewTimerProvider(dm, nil)

	budget := make(chan time.Duration, 1)
	p.RequestSlice(func(d idle.Deadline) { budget <- d.TimeRemaining() })

	select {
	case got := <-budget:
		assert.LessOrEqual(t, got, idle.DefaultSliceSize)
	case <-time.After(time.Second):
		t.Fatal("slice was never granted")
	}
}

func TestLoopProvider_UsesNativeIdle(t *testing.T) {
	loop := core.NewEventLoop(&core.EventLoopConfig{IdlePeriod: 25 * time.Millisecond})
	defer loop.Stop()

	p := idle.NewLoopProvider(loop)
	budget := make(chan time.Duration, 1)
	p.RequestSlice(func(d idle.Deadline) { budget <- d.TimeRemaining() })

	select {
	case got := <-budget:
		assert.LessOrEqual(t, got, 25*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("slice was never granted")
	}
}

func TestDetect(t *testing.T) {
	loop := core.NewEventLoop(nil)
	defer loop.Stop()

	assert.IsType(t, &idle.LoopProvider{}, idle.Detect(loop), "event loop offers native idle")

	dm := core.NewDelayManager()
	defer dm.Stop()
	assert.IsType(t, &idle.TimerProvider{}, idle.Detect(dm), "timers only falls back to the polyfill")

	tp := idle.NewTimerProvider(dm, nil)
	assert.Same(t, tp, idle.Detect(tp), "a provider is used as is")

	assert.Nil(t, idle.Detect(struct{}{}))
}
