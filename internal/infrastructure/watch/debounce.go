// Package watch reports changes to the settings and config files that other
// processes may rewrite, coalescing bursts of writes into one callback.
package watch

import (
	"sync"
	"time"
)

// coalescer delivers the last event of a burst once no new event has arrived
// for window. Editors and the settings store itself write a file in several
// steps.
type coalescer struct {
	window  time.Duration
	deliver func(ChangeEvent)

	mu      sync.Mutex
	timer   *time.Timer
	pending ChangeEvent
	stopped bool
}

func newCoalescer(window time.Duration, deliver func(ChangeEvent)) *coalescer {
	return &coalescer{window: window, deliver: deliver}
}

// add records e as the latest event and restarts the quiet period.
func (c *coalescer) add(e ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.pending = e
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.window, c.fire)
}

func (c *coalescer) fire() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	e := c.pending
	c.mu.Unlock()
	if c.deliver != nil {
		c.deliver(e)
	}
}

// stop drops any pending delivery. Later events are ignored.
func (c *coalescer) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
	}
}
