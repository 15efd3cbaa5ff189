package core

import (
	"context"
	"errors"
)

// Task is the unit of work (Closure) executed by an EventLoop
type Task func(ctx context.Context)

// ErrLoopClosed is returned by operations on an EventLoop that has been shut down.
var ErrLoopClosed = errors.New("event loop is closed")

// =============================================================================
// Context Helper
// =============================================================================
type eventLoopKeyType struct{}

var eventLoopKey eventLoopKeyType

// GetCurrentLoop returns the EventLoop executing the task that owns ctx,
// or nil when ctx does not come from a loop.
func GetCurrentLoop(ctx context.Context) *EventLoop {
	if v := ctx.Value(eventLoopKey); v != nil {
		return v.(*EventLoop)
	}
	return nil
}
