package idle

import "github.com/Swind/go-idle-tasks/core"

// LoopProvider grants slices through a host's native idle notification.
type LoopProvider struct {
	host NativeHost
}

var _ Provider = (*LoopProvider)(nil)

// NewLoopProvider wraps host, typically a *core.EventLoop.
func NewLoopProvider(host NativeHost) *LoopProvider {
	return &LoopProvider{host: host}
}

func (p *LoopProvider) RequestSlice(cb func(Deadline)) Handle {
	return Handle(p.host.RequestIdle(cb))
}

func (p *LoopProvider) CancelSlice(h Handle) bool {
	return p.host.CancelIdle(core.IdleHandle(h))
}
