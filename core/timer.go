package core

import (
	"sync/atomic"
	"time"
)

// TimerHandle identifies a scheduled callback. The zero handle is never issued.
type TimerHandle uint64

var timerSeq atomic.Uint64

func nextTimerHandle() TimerHandle {
	return TimerHandle(timerSeq.Add(1))
}

// Timers is the host timer primitive: run a callback after a delay, cancelable.
//
// Implementations must be safe for concurrent use. Cancel returns false when
// the callback already ran, was already canceled, or the handle is unknown.
type Timers interface {
	AfterFunc(delay time.Duration, fn func()) TimerHandle
	Cancel(handle TimerHandle) bool
}

// Clock abstracts wall-clock reads so budget math can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the Clock backed by time.Now.
func SystemClock() Clock {
	return systemClock{}
}
