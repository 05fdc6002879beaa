package reader

import (
	"sync"
	"time"
)

// Timer is a handle of scheduled call.
type Timer interface {
	// Stop prevents call from firing, returns false if it already fired or
	// was stopped.
	Stop() bool
}

// Scheduler runs fn after delay.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Debouncer collapses burst of calls into single one, fired when no new calls
// came during quiet window. Only the function from the last call runs.
type Debouncer struct {
	mu      sync.Mutex
	sched   Scheduler
	quiet   time.Duration
	pending Timer
	gen     uint64
}

func NewDebouncer(sched Scheduler, quiet time.Duration) *Debouncer {
	if sched == nil {
		sched = wallClock{}
	}
	return &Debouncer{sched: sched, quiet: quiet}
}

// Call cancels pending call, if any, and schedules fn.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		d.pending.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = d.sched.AfterFunc(d.quiet, func() {
		d.mu.Lock()
		// superseded while timer was firing
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.pending = nil
		d.mu.Unlock()
		fn()
	})
}

// Stop cancels pending call.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	d.gen++
}
