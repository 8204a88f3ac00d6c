// Package refresh coalesces bursty UI-refresh signals into a single
// downstream call per quiet period.
package refresh

import (
	"sync"
	"time"
)

// DefaultWindow is the debounce window used when none is given.
const DefaultWindow = time.Second

// Coalescer debounces RequestUpdate calls: each signal resets the
// pending timer, and once the window elapses without a new signal the
// downstream refresh fires exactly once. One instance per UI surface,
// not shared globally.
type Coalescer struct {
	window time.Duration
	fire   func()

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// New creates a coalescer calling fire after each quiet window.
// window <= 0 selects DefaultWindow.
func New(window time.Duration, fire func()) *Coalescer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Coalescer{window: window, fire: fire}
}

// RequestUpdate records a refresh signal. Non-blocking and safe to
// call from any goroutine; only the last signal within the window
// survives.
func (c *Coalescer) RequestUpdate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.window, c.fire)
}

// Close cancels any pending refresh. Required on shutdown so the
// debounce timer does not leak.
func (c *Coalescer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
