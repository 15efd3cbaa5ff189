package prometheus

import (
	"testing"
	"time"

	"github.com/Swind/go-idle-tasks/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("idletasks", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("batch-a", "async", 250*time.Millisecond)
	exporter.RecordTaskOutcome("batch-a", core.OutcomeTimeout)
	exporter.RecordRetry("batch-a")
	exporter.RecordRetry("batch-a")
	exporter.RecordAbort("batch-a")
	exporter.RecordTaskPanic("batch-a", "panic")
	exporter.RecordSlice("sync-a", 12*time.Millisecond, 5)

	if got := testutil.ToFloat64(exporter.taskOutcomeTotal.WithLabelValues("batch-a", "timeout")); got != 1 {
		t.Fatalf("timeout outcomes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.taskRetryTotal.WithLabelValues("batch-a")); got != 2 {
		t.Fatalf("retry total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(exporter.batchAbortTotal.WithLabelValues("batch-a")); got != 1 {
		t.Fatalf("abort total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("batch-a")); got != 1 {
		t.Fatalf("panic total = %v, want 1", got)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("batch-a", "async"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}

	sliceCount, err := histogramSampleCount(exporter.sliceTasks.WithLabelValues("sync-a"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if sliceCount != 1 {
		t.Fatalf("slice sample count = %d, want 1", sliceCount)
	}
}

func TestMetricsExporter_EmptyLabelsFallBack(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskOutcome("", "")

	if got := testutil.ToFloat64(exporter.taskOutcomeTotal.WithLabelValues("unknown", "unknown")); got != 1 {
		t.Fatalf("fallback outcome total = %v, want 1", got)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("idletasks", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("idletasks", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic("batch-a", nil)
	second.RecordTaskPanic("batch-a", nil)

	got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("batch-a"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilReceiver(t *testing.T) {
	var exporter *MetricsExporter
	exporter.RecordTaskDuration("x", "sync", time.Millisecond)
	exporter.RecordSlice("x", time.Millisecond, 1)
	exporter.RecordAbort("x")
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
