// Package messaging delivers protocol messages between isolated contexts: the
// background, the popup and one content agent per tab.
package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/truthguard/pkg/domain/protocol"
)

// Handler answers one request. Handlers for actions that expect no reply
// return a nil Response.
type Handler func(ctx context.Context, req protocol.Request, from Sender) (protocol.Response, error)

// Router is a dispatch table keyed by action tag.
type Router struct {
	mu       sync.RWMutex
	handlers map[protocol.Action]Handler
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[protocol.Action]Handler)}
}

// Handle registers h for action, replacing any previous handler.
func (r *Router) Handle(action protocol.Action, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = h
}

// Handles reports whether a handler is registered for action.
func (r *Router) Handles(action protocol.Action) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[action]
	return ok
}

// Dispatch runs the handler registered for req's action.
func (r *Router) Dispatch(ctx context.Context, req protocol.Request, from Sender) (protocol.Response, error) {
	r.mu.RLock()
	h, ok := r.handlers[req.Action()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, req.Action())
	}
	return h(ctx, req, from)
}
