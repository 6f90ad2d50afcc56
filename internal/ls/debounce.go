package ls

import (
	"sync"
	"time"
)

const (
	defaultDebounce = 0 * time.Millisecond
	// maxDebounce bounds diagnostic latency: a burst of changes fires a
	// lint no later than this after the burst's first call, and the
	// configurable window may not exceed it.
	maxDebounce = 350 * time.Millisecond
)

// debouncer collapses bursts of calls into a single execution of the
// most recently supplied function. Execution happens once the configured
// wait elapses without a new call, or at maxWait after the burst's first
// call, whichever comes first. A wait of zero still collapses calls that
// arrive before the timer goroutine gets scheduled.
type debouncer struct {
	mu       sync.Mutex
	wait     time.Duration
	maxWait  time.Duration
	gen      uint64
	timer    *time.Timer
	deadline time.Time
	fn       func()
}

func newDebouncer(wait, maxWait time.Duration) *debouncer {
	return &debouncer{wait: wait, maxWait: maxWait}
}

// Call schedules fn, superseding any previously scheduled function.
func (d *debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fn = fn
	now := time.Now()
	if d.deadline.IsZero() {
		d.deadline = now.Add(d.maxWait)
	}
	fireAt := now.Add(d.wait)
	if fireAt.After(d.deadline) {
		fireAt = d.deadline
	}

	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(time.Until(fireAt), func() { d.fire(gen) })
}

func (d *debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.fn == nil {
		d.mu.Unlock()
		return
	}
	fn := d.fn
	d.reset()
	d.mu.Unlock()
	fn()
}

// Reconfigure installs a new wait window. A pending call under the old
// window is flushed immediately rather than dropped or rescheduled.
func (d *debouncer) Reconfigure(wait time.Duration) {
	d.mu.Lock()
	d.wait = wait
	fn := d.fn
	d.reset()
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Stop drops any pending call.
func (d *debouncer) Stop() {
	d.mu.Lock()
	d.reset()
	d.mu.Unlock()
}

// reset clears the pending state. Callers must hold d.mu.
func (d *debouncer) reset() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.fn = nil
	d.deadline = time.Time{}
}
