package watch

import (
	"sync"
	"testing"
	"time"
)

type delivered struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (d *delivered) add(e ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
}

func (d *delivered) all() []ChangeEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ChangeEvent(nil), d.events...)
}

func TestCoalescer_DeliversLastEventOfBurst(t *testing.T) {
	var got delivered
	c := newCoalescer(50*time.Millisecond, got.add)
	defer c.stop()

	c.add(ChangeEvent{Path: "settings.yaml", ChangeType: "create"})
	for i := 0; i < 5; i++ {
		c.add(ChangeEvent{Path: "settings.yaml", ChangeType: "write"})
		time.Sleep(10 * time.Millisecond)
	}
	c.add(ChangeEvent{Path: "settings.yaml", ChangeType: "rename"})

	time.Sleep(120 * time.Millisecond)

	events := got.all()
	if len(events) != 1 || events[0].ChangeType != "rename" {
		t.Errorf("expected only the last event, got %+v", events)
	}
}

func TestCoalescer_StopDropsPending(t *testing.T) {
	var got delivered
	c := newCoalescer(30*time.Millisecond, got.add)

	c.add(ChangeEvent{Path: "settings.yaml", ChangeType: "write"})
	c.stop()
	c.add(ChangeEvent{Path: "settings.yaml", ChangeType: "write"})

	time.Sleep(80 * time.Millisecond)
	if events := got.all(); len(events) != 0 {
		t.Errorf("expected nothing after stop, got %+v", events)
	}
}
