// Package idle abstracts "run this when the host has spare time, and tell me
// how much time is left in this slice".
//
// Two providers are available:
//   - LoopProvider uses the native idle notification of a core.EventLoop.
//   - TimerProvider is the fallback for hosts that only offer timers: the
//     callback runs on the next timer tick with a synthesized budget of
//     SliceSize minus the time spent waiting for the tick.
//
// Use Detect to pick the right one for a host.
package idle

import (
	"time"

	"github.com/Swind/go-idle-tasks/core"
)

// Deadline is the budget handed to a slice callback.
type Deadline = core.IdleDeadline

// Handle identifies a pending slice request.
type Handle uint64

// Provider grants idle slices.
type Provider interface {
	// RequestSlice schedules cb to run when the host is idle.
	RequestSlice(cb func(Deadline)) Handle

	// CancelSlice cancels a pending request. It returns false when the
	// callback already started or the handle is unknown.
	CancelSlice(h Handle) bool
}

// NativeHost is implemented by hosts with their own idle notification.
type NativeHost interface {
	RequestIdle(fn func(core.IdleDeadline)) core.IdleHandle
	CancelIdle(h core.IdleHandle) bool
}

// Detect returns the native provider when host supports idle notification,
// and the timer polyfill when it only supports timers. It returns nil when
// host offers neither.
func Detect(host any) Provider {
	switch h := host.(type) {
	case Provider:
		return h
	case NativeHost:
		return NewLoopProvider(h)
	case core.Timers:
		return NewTimerProvider(h, nil)
	default:
		return nil
	}
}

// staticDeadline is a fixed budget measured against a clock.
type staticDeadline struct {
	deadline time.Time
	clock    core.Clock
}

func (d staticDeadline) TimeRemaining() time.Duration {
	if remaining := d.deadline.Sub(d.clock.Now()); remaining > 0 {
		return remaining
	}
	return 0
}

func (d staticDeadline) DidTimeout() bool { return false }
