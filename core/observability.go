package core

// LoopStats represents runtime observability state for an EventLoop.
type LoopStats struct {
	Name          string
	Pending       int
	IdlePending   int
	TimersPending int
	TasksRun      int64
	IdlePeriods   int64
	Panics        int64
	Closed        bool
}
