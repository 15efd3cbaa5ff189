package idletasks

import (
	"sync"

	"github.com/Swind/go-idle-tasks/core"
	"github.com/Swind/go-idle-tasks/idle"
)

// =============================================================================
// Global Idle Provider (Singleton)
// =============================================================================

var (
	globalProvider idle.Provider
	globalLoop     *core.EventLoop
	globalTimers   *core.DelayManager
	globalMu       sync.Mutex
)

// InstallIdleProvider installs p as the process-wide idle provider.
// Only the first installation takes effect; later calls return false.
func InstallIdleProvider(p idle.Provider) bool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalProvider != nil || p == nil {
		return false
	}
	globalProvider = p
	return true
}

// EnsureIdleProvider returns the process-wide idle provider, installing the
// timer-based fallback first if nothing is installed.
func EnsureIdleProvider() idle.Provider {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalProvider == nil {
		globalTimers = core.NewDelayManager()
		globalProvider = idle.NewTimerProvider(globalTimers, nil)
	}
	return globalProvider
}

// GetIdleProvider returns the installed idle provider, or nil.
func GetIdleProvider() idle.Provider {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalProvider
}

// InitGlobalEventLoop starts the process-wide event loop and installs its
// native idle notification as the idle provider. Calling it again returns the
// running loop.
func InitGlobalEventLoop(config *core.EventLoopConfig) *core.EventLoop {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLoop != nil {
		return globalLoop
	}

	globalLoop = core.NewEventLoop(config)
	if globalProvider == nil {
		globalProvider = idle.NewLoopProvider(globalLoop)
	}
	return globalLoop
}

// GetGlobalEventLoop returns the global event loop instance.
// It panics if InitGlobalEventLoop has not been called.
func GetGlobalEventLoop() *core.EventLoop {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLoop == nil {
		panic("global event loop not initialized. Call InitGlobalEventLoop() first.")
	}
	return globalLoop
}

// ShutdownGlobal stops the global event loop and the fallback timers and
// forgets the installed provider. Meant for process exit and tests.
func ShutdownGlobal() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLoop != nil {
		globalLoop.Stop()
		globalLoop = nil
	}
	if globalTimers != nil {
		globalTimers.Stop()
		globalTimers = nil
	}
	globalProvider = nil
}
