// internal/editor/debounce/debounce.go
package debounce

import (
	"sync"
	"time"
)

// DefaultWindow is the coalescing window used when none is configured.
const DefaultWindow = 50 * time.Millisecond

// Debouncer coalesces bursts of Trigger calls into a single call of its
// function, fired once the window has elapsed with no further triggers.
// The function runs on a timer goroutine; callers that need it on a
// specific goroutine hand it off themselves.
type Debouncer struct {
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// New creates a debouncer. A non-positive window falls back to DefaultWindow.
func New(window time.Duration, fn func()) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{window: window, fn: fn}
}

// Window reports the configured coalescing window.
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Trigger (re)starts the window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() { d.fire(gen) })
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Flush runs a pending call immediately on the caller's goroutine. It
// reports whether anything was pending.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.stopped || d.timer == nil {
		d.mu.Unlock()
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	d.mu.Unlock()

	d.fn()
	return true
}

// Stop cancels any pending call and disables further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// A newer Trigger, a Flush, or Stop superseded this timer.
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}
