package hooks

import "sync"

var (
	defaultMu         sync.Mutex
	defaultDispatcher *Dispatcher
)

// Default returns the process-wide dispatcher, creating it on first use.
// Every call returns the same instance until SetDefault or ResetDefault.
//
// Prefer passing a *Dispatcher explicitly; Default exists for code that
// needs to reach the shared instance without one
func Default() *Dispatcher {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultDispatcher == nil {
		defaultDispatcher = New()
	}
	return defaultDispatcher
}

// SetDefault installs d as the process-wide dispatcher
func SetDefault(d *Dispatcher) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	defaultDispatcher = d
}

// ResetDefault discards the process-wide dispatcher so the next Default
// call creates a fresh one. Intended for tests
func ResetDefault() {
	SetDefault(nil)
}
