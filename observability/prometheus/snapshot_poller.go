package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-idle-tasks/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// LoopSnapshotProvider provides current event loop stats snapshots.
type LoopSnapshotProvider interface {
	Stats() core.LoopStats
}

// SnapshotPoller periodically exports EventLoop Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	loopsMu sync.RWMutex
	loops   map[string]LoopSnapshotProvider

	loopPending       *prom.GaugeVec
	loopIdlePending   *prom.GaugeVec
	loopTimersPending *prom.GaugeVec
	loopTasksRun      *prom.GaugeVec
	loopIdlePeriods   *prom.GaugeVec
	loopPanics        *prom.GaugeVec
	loopClosed        *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "idletasks",
			Name:      name,
			Help:      help,
		}, []string{"loop"})
	}

	p := &SnapshotPoller{
		interval:          interval,
		loops:             make(map[string]LoopSnapshotProvider),
		loopPending:       gauge("loop_pending", "Number of queued tasks per loop."),
		loopIdlePending:   gauge("loop_idle_pending", "Number of pending idle requests per loop."),
		loopTimersPending: gauge("loop_timers_pending", "Number of pending timers per loop."),
		loopTasksRun:      gauge("loop_tasks_run_total", "Loop executed task count snapshot."),
		loopIdlePeriods:   gauge("loop_idle_periods_total", "Loop idle period count snapshot."),
		loopPanics:        gauge("loop_panics_total", "Loop task panic count snapshot."),
		loopClosed:        gauge("loop_closed", "Loop closed state (1=closed, 0=open)."),
	}

	for _, g := range []**prom.GaugeVec{
		&p.loopPending,
		&p.loopIdlePending,
		&p.loopTimersPending,
		&p.loopTasksRun,
		&p.loopIdlePeriods,
		&p.loopPanics,
		&p.loopClosed,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}

	return p, nil
}

// AddLoop adds or replaces a loop snapshot provider by name.
func (p *SnapshotPoller) AddLoop(name string, provider LoopSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "loop")
	p.loopsMu.Lock()
	p.loops[name] = provider
	p.loopsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.loopsMu.RLock()
	defer p.loopsMu.RUnlock()

	for name, provider := range p.loops {
		stats := provider.Stats()
		p.loopPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.loopIdlePending.WithLabelValues(name).Set(float64(stats.IdlePending))
		p.loopTimersPending.WithLabelValues(name).Set(float64(stats.TimersPending))
		p.loopTasksRun.WithLabelValues(name).Set(float64(stats.TasksRun))
		p.loopIdlePeriods.WithLabelValues(name).Set(float64(stats.IdlePeriods))
		p.loopPanics.WithLabelValues(name).Set(float64(stats.Panics))
		if stats.Closed {
			p.loopClosed.WithLabelValues(name).Set(1)
		} else {
			p.loopClosed.WithLabelValues(name).Set(0)
		}
	}
}
