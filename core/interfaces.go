package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task posted to an EventLoop panics.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked task (carries the current loop)
	// - loopName: The name of the event loop where the panic occurred
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, loopName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, loopName string, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Loop %s] Panic: %v\nStack trace:\n%s", loopName, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Outcome labels reported through Metrics.RecordTaskOutcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
)

// Metrics defines the interface for collecting scheduling metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a task took, from dispatch to its
	// definitive outcome.
	//
	// Parameters:
	// - runnerName: The name given to the runner invocation
	// - kind: "async" or "sync"
	// - duration: How long the task took
	RecordTaskDuration(runnerName string, kind string, duration time.Duration)

	// RecordTaskOutcome records the definitive outcome of an async task
	// (OutcomeSuccess, OutcomeFailed or OutcomeTimeout).
	RecordTaskOutcome(runnerName string, outcome string)

	// RecordRetry records that a failed attempt is being retried.
	RecordRetry(runnerName string)

	// RecordAbort records that OnSingleTaskDone ended a batch early.
	RecordAbort(runnerName string)

	// RecordSlice records one idle slice consumed by the sync runner.
	//
	// Parameters:
	// - runnerName: The name given to the runner invocation
	// - budget: The time budget granted by the host for the slice
	// - tasks: How many tasks ran within the slice
	RecordSlice(runnerName string, budget time.Duration, tasks int)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(runnerName string, panicInfo any)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(runnerName string, kind string, duration time.Duration) {
}

// RecordTaskOutcome is a no-op.
func (m *NilMetrics) RecordTaskOutcome(runnerName string, outcome string) {
}

// RecordRetry is a no-op.
func (m *NilMetrics) RecordRetry(runnerName string) {
}

// RecordAbort is a no-op.
func (m *NilMetrics) RecordAbort(runnerName string) {
}

// RecordSlice is a no-op.
func (m *NilMetrics) RecordSlice(runnerName string, budget time.Duration, tasks int) {
}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(runnerName string, panicInfo any) {
}

// =============================================================================
// EventLoopConfig: Configuration for EventLoop
// =============================================================================

const (
	// DefaultIdlePeriod is the longest idle period an EventLoop grants at once.
	DefaultIdlePeriod = 50 * time.Millisecond

	defaultWorkQueueSize = 100
)

// EventLoopConfig holds configuration options for EventLoop.
// All fields are optional; zero values fall back to defaults.
type EventLoopConfig struct {
	// Name identifies the loop in logs, panics and stats.
	Name string

	// IdlePeriod caps the budget of one idle period. Defaults to DefaultIdlePeriod.
	IdlePeriod time.Duration

	// QueueSize is the buffer of the work queue. Defaults to 100.
	QueueSize int

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Logger receives loop lifecycle messages. Defaults to NoOpLogger.
	Logger Logger
}

// DefaultEventLoopConfig returns a config with default handlers.
func DefaultEventLoopConfig() *EventLoopConfig {
	return &EventLoopConfig{
		Name:         "event-loop",
		IdlePeriod:   DefaultIdlePeriod,
		QueueSize:    defaultWorkQueueSize,
		PanicHandler: &DefaultPanicHandler{},
		Logger:       NewNoOpLogger(),
	}
}

func (c *EventLoopConfig) normalize() *EventLoopConfig {
	out := DefaultEventLoopConfig()
	if c == nil {
		return out
	}
	if c.Name != "" {
		out.Name = c.Name
	}
	if c.IdlePeriod > 0 {
		out.IdlePeriod = c.IdlePeriod
	}
	if c.QueueSize > 0 {
		out.QueueSize = c.QueueSize
	}
	if c.PanicHandler != nil {
		out.PanicHandler = c.PanicHandler
	}
	if c.Logger != nil {
		out.Logger = c.Logger
	}
	return out
}
