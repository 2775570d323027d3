package hooks

import "time"

// RunRecord summarizes one completed Run
type RunRecord struct {
	Tag Tag
	// Fired counts callbacks invoked, including a failing one
	Fired int
	// Depth is 1 for a top-level run and grows with each nested run
	Depth    int
	Duration time.Duration
	Err      error
}

// Observer receives a RunRecord after every run, once the hook has left the
// running stack. Observers are called synchronously on the running goroutine
type Observer interface {
	ObserveRun(rec RunRecord)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(rec RunRecord)

// ObserveRun calls f(rec)
func (f ObserverFunc) ObserveRun(rec RunRecord) {
	f(rec)
}
