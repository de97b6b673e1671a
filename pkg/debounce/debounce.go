// Package debounce delays propagation of a rapidly changing value until it
// has been stable for a fixed period.
package debounce

import (
	"sync"
	"time"
)

// Debouncer holds back values pushed through Set until no new value has
// arrived for the configured delay, then makes the settled value available
// on C. The channel always carries the most recent settled value; stale
// settled values that were never consumed are replaced.
type Debouncer[T any] struct {
	delay time.Duration

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	out     chan T
	stopped bool
}

// New creates a debouncer with the given settle delay.
func New[T any](delay time.Duration) *Debouncer[T] {
	return &Debouncer[T]{
		delay: delay,
		out:   make(chan T, 1),
	}
}

// Set pushes a new value, canceling any pending emission and scheduling a
// new one for delay from now. The generation counter covers the window
// where the previous timer has fired but its callback has not run yet:
// timer.Stop cannot cancel it, the stale generation does.
func (d *Debouncer[T]) Set(value T) {
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
	d.timer = time.AfterFunc(d.delay, func() {
		d.emit(gen, value)
	})
}

// C returns the channel on which settled values are delivered.
func (d *Debouncer[T]) C() <-chan T {
	return d.out
}

// Stop cancels any pending emission. No value is ever delivered after Stop
// returns.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer[T]) emit(gen uint64, value T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || gen != d.gen {
		return
	}
	// Replace an unconsumed settled value so the channel never blocks.
	select {
	case <-d.out:
	default:
	}
	d.out <- value
}
