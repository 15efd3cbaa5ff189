package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-idle-tasks/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	BudgetBuckets   []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskOutcomeTotal    *prom.CounterVec
	taskRetryTotal      *prom.CounterVec
	batchAbortTotal     *prom.CounterVec
	taskPanicTotal      *prom.CounterVec
	sliceBudgetSeconds  *prom.HistogramVec
	sliceTasks          *prom.HistogramVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "idletasks"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	durationBuckets := opts.DurationBuckets
	if len(durationBuckets) == 0 {
		durationBuckets = prom.DefBuckets
	}
	budgetBuckets := opts.BudgetBuckets
	if len(budgetBuckets) == 0 {
		// 1ms .. 64ms, idle slices are short by nature
		budgetBuckets = prom.ExponentialBuckets(0.001, 2, 7)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task duration in seconds, from dispatch to definitive outcome.",
		Buckets:   durationBuckets,
	}, []string{"runner", "kind"})
	outcomeVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_outcome_total",
		Help:      "Total number of async task outcomes.",
	}, []string{"runner", "outcome"})
	retryVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_retry_total",
		Help:      "Total number of retried task attempts.",
	}, []string{"runner"})
	abortVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "batch_abort_total",
		Help:      "Total number of batches aborted by their callback.",
	}, []string{"runner"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"runner"})
	budgetVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "idle_slice_budget_seconds",
		Help:      "Budget granted per idle slice in seconds.",
		Buckets:   budgetBuckets,
	}, []string{"runner"})
	sliceTasksVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "idle_slice_tasks",
		Help:      "Number of tasks run per idle slice.",
		Buckets:   prom.ExponentialBuckets(1, 2, 10),
	}, []string{"runner"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if outcomeVec, err = registerCollector(reg, outcomeVec); err != nil {
		return nil, err
	}
	if retryVec, err = registerCollector(reg, retryVec); err != nil {
		return nil, err
	}
	if abortVec, err = registerCollector(reg, abortVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if budgetVec, err = registerCollector(reg, budgetVec); err != nil {
		return nil, err
	}
	if sliceTasksVec, err = registerCollector(reg, sliceTasksVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskOutcomeTotal:    outcomeVec,
		taskRetryTotal:      retryVec,
		batchAbortTotal:     abortVec,
		taskPanicTotal:      panicVec,
		sliceBudgetSeconds:  budgetVec,
		sliceTasks:          sliceTasksVec,
	}, nil
}

// RecordTaskDuration records task duration.
func (m *MetricsExporter) RecordTaskDuration(runnerName string, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(runnerName, "unknown"), normalizeLabel(kind, "unknown")).Observe(duration.Seconds())
}

// RecordTaskOutcome records the definitive outcome of an async task.
func (m *MetricsExporter) RecordTaskOutcome(runnerName string, outcome string) {
	if m == nil {
		return
	}
	m.taskOutcomeTotal.WithLabelValues(normalizeLabel(runnerName, "unknown"), normalizeLabel(outcome, "unknown")).Inc()
}

// RecordRetry records a retried attempt.
func (m *MetricsExporter) RecordRetry(runnerName string) {
	if m == nil {
		return
	}
	m.taskRetryTotal.WithLabelValues(normalizeLabel(runnerName, "unknown")).Inc()
}

// RecordAbort records an aborted batch.
func (m *MetricsExporter) RecordAbort(runnerName string) {
	if m == nil {
		return
	}
	m.batchAbortTotal.WithLabelValues(normalizeLabel(runnerName, "unknown")).Inc()
}

// RecordSlice records one consumed idle slice.
func (m *MetricsExporter) RecordSlice(runnerName string, budget time.Duration, tasks int) {
	if m == nil {
		return
	}
	runner := normalizeLabel(runnerName, "unknown")
	m.sliceBudgetSeconds.WithLabelValues(runner).Observe(budget.Seconds())
	m.sliceTasks.WithLabelValues(runner).Observe(float64(tasks))
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(runnerName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(runnerName, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
