package idle

import (
	"time"

	"github.com/Swind/go-idle-tasks/core"
)

// DefaultSliceSize is the budget synthesized by TimerProvider, one frame at 60Hz.
const DefaultSliceSize = 16 * time.Millisecond

// TimerProvider grants slices on the next timer tick for hosts without idle
// notification. The budget is SliceSize minus the time elapsed between the
// request and the tick, floored at zero.
type TimerProvider struct {
	timers    core.Timers
	clock     core.Clock
	sliceSize time.Duration
}

var _ Provider = (*TimerProvider)(nil)

// NewTimerProvider creates a polyfill on top of timers. A nil clock uses the
// system clock.
func NewTimerProvider(timers core.Timers, clock core.Clock) *TimerProvider {
	if clock == nil {
		clock = core.SystemClock()
	}
	return &TimerProvider{
		timers:    timers,
		clock:     clock,
		sliceSize: DefaultSliceSize,
	}
}

// WithSliceSize returns a copy of p granting size per slice.
func (p *TimerProvider) WithSliceSize(size time.Duration) *TimerProvider {
	cp := *p
	if size > 0 {
		cp.sliceSize = size
	}
	return &cp
}

// SliceSize returns the nominal budget of one slice.
func (p *TimerProvider) SliceSize() time.Duration {
	return p.sliceSize
}

func (p *TimerProvider) RequestSlice(cb func(Deadline)) Handle {
	requestedAt := p.clock.Now()
	h := p.timers.AfterFunc(0, func() {
		cb(staticDeadline{
			deadline: requestedAt.Add(p.sliceSize),
			clock:    p.clock,
		})
	})
	return Handle(h)
}

func (p *TimerProvider) CancelSlice(h Handle) bool {
	return p.timers.Cancel(core.TimerHandle(h))
}
