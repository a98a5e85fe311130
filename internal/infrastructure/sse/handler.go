// Package sse streams alerts and check outcomes to browser pages via
// Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/google/uuid"
)

// Event names written on the stream.
const (
	EventAlert = "alert"
	EventCheck = "check"
)

// Event is one message fanned out to connected clients.
type Event struct {
	ID   string
	Type string
	Data json.RawMessage
}

// Broadcaster fans events out to every connected stream. It doubles as a
// browser.Notifier so high-risk alerts reach companion pages.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan Event]struct{}
}

// NewBroadcaster creates a broadcaster with no clients.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[chan Event]struct{})}
}

// Publish marshals data and sends it to every client. Slow clients drop the
// event rather than block the publisher.
func (b *Broadcaster) Publish(eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	e := Event{ID: uuid.NewString(), Type: eventType, Data: raw}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

// Notify publishes n as an alert event.
func (b *Broadcaster) Notify(_ context.Context, n browser.Notification) error {
	return b.Publish(EventAlert, n)
}

// Clients reports the number of connected streams.
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP streams events until the client goes away. The optional
// ?types=alert,check query limits which events are written.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	typeFilter := make(map[string]bool)
	if types := r.URL.Query().Get("types"); types != "" {
		for _, t := range strings.Split(types, ",") {
			typeFilter[strings.TrimSpace(t)] = true
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := make(chan Event, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			if len(typeFilter) > 0 && !typeFilter[e.Type] {
				continue
			}
			_, _ = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, e.Data)
			flusher.Flush()
		}
	}
}
