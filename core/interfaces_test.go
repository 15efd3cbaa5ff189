package core

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// =============================================================================
// EventLoopConfig
// =============================================================================

func TestEventLoopConfig_NormalizeNil(t *testing.T) {
	var cfg *EventLoopConfig
	got := cfg.normalize()

	if got.Name != "event-loop" {
		t.Errorf("Name = %q, want event-loop", got.Name)
	}
	if got.IdlePeriod != DefaultIdlePeriod {
		t.Errorf("IdlePeriod = %v, want %v", got.IdlePeriod, DefaultIdlePeriod)
	}
	if got.QueueSize != defaultWorkQueueSize {
		t.Errorf("QueueSize = %d, want %d", got.QueueSize, defaultWorkQueueSize)
	}
	if got.PanicHandler == nil || got.Logger == nil {
		t.Error("handlers should default to non-nil")
	}
}

func TestEventLoopConfig_NormalizeKeepsOverrides(t *testing.T) {
	logger := NewDefaultLogger()
	got := (&EventLoopConfig{Name: "ui", IdlePeriod: 5 * time.Millisecond, Logger: logger}).normalize()

	if got.Name != "ui" || got.IdlePeriod != 5*time.Millisecond || got.Logger != logger {
		t.Errorf("normalize() = %+v, want overrides kept", got)
	}
	if got.QueueSize != defaultWorkQueueSize {
		t.Errorf("QueueSize = %d, want default", got.QueueSize)
	}
}

func TestNilMetrics(t *testing.T) {
	var m Metrics = &NilMetrics{}
	m.RecordTaskDuration("r", "sync", time.Second)
	m.RecordTaskOutcome("r", OutcomeSuccess)
	m.RecordRetry("r")
	m.RecordAbort("r")
	m.RecordSlice("r", time.Millisecond, 3)
	m.RecordTaskPanic("r", "boom")
}

// =============================================================================
// LogrusLogger
// =============================================================================

func TestLogrusLogger_Fields(t *testing.T) {
	base, hook := logtest.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)

	logger := NewLogrusLogger(base).With(F("batch", "b-1"))
	logger.Warn("task timed out", F("index", 3))

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("no entry logged")
	}
	if entry.Level != logrus.WarnLevel || entry.Message != "task timed out" {
		t.Fatalf("entry = %v %q, want warning 'task timed out'", entry.Level, entry.Message)
	}
	if entry.Data["batch"] != "b-1" || entry.Data["index"] != 3 {
		t.Fatalf("entry fields = %v, want batch and index", entry.Data)
	}
}

func TestLogrusLogger_Levels(t *testing.T) {
	base, hook := logtest.NewNullLogger()
	base.SetLevel(logrus.InfoLevel)
	logger := NewLogrusLogger(base)

	logger.Debug("hidden")
	logger.Info("shown")
	logger.Error("also shown")

	if got := len(hook.AllEntries()); got != 2 {
		t.Fatalf("entries = %d, want 2 (debug filtered)", got)
	}
}
