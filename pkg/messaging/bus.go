package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/truthguard/pkg/domain/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNoReceiver is returned when no context is registered under the target id.
	ErrNoReceiver = errors.New("messaging: could not establish connection, receiving end does not exist")
	// ErrUnknownAction is returned when the receiver has no handler for the action.
	ErrUnknownAction = protocol.ErrUnknownAction
	// ErrContextClosed is returned when the receiver goes away before replying.
	ErrContextClosed = errors.New("messaging: receiving context closed before a response was received")
	// ErrContextExists is returned when registering an id twice.
	ErrContextExists = errors.New("messaging: context already registered")
)

// ContextID names an isolated execution context.
type ContextID string

const (
	Background ContextID = "background"
	Popup      ContextID = "popup"
)

// TabContext returns the id of the content agent running in tab.
func TabContext(tabID string) ContextID {
	return ContextID("tab:" + tabID)
}

// Sender identifies the origin of a message.
type Sender struct {
	Context ContextID
	TabID   string
	URL     string
}

// RemoteError is a handler failure reported by the receiving context.
type RemoteError struct {
	Context ContextID
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Context, e.Message)
}

// envelope is the reply crossing the context boundary.
type envelope struct {
	ID    string          `json:"id"`
	Body  json.RawMessage `json:"body,omitempty"`
	Error string          `json:"error,omitempty"`
	// Unhandled is set when the receiver has no handler for the action.
	Unhandled bool `json:"unhandled,omitempty"`
	// Closed is set when the receiver closed while handling the message.
	Closed bool `json:"closed,omitempty"`
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// Bus routes serialised messages between registered contexts. Every
// delivery runs on its own goroutine and produces at most one reply.
type Bus struct {
	logger *zap.Logger

	mu        sync.RWMutex
	endpoints map[ContextID]*Endpoint
	closed    bool
	// wg counts deliveries. Add happens under mu so Close never races it.
	wg sync.WaitGroup
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		logger:    zap.NewNop(),
		endpoints: make(map[ContextID]*Endpoint),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register attaches a context to the bus. Messages addressed to
// self.Context are dispatched through router.
func (b *Bus) Register(self Sender, router *Router) (*Endpoint, error) {
	if router == nil {
		router = NewRouter()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrContextClosed
	}
	if _, ok := b.endpoints[self.Context]; ok {
		return nil, fmt.Errorf("%w: %s", ErrContextExists, self.Context)
	}
	ctx, cancel := context.WithCancel(context.Background())
	ep := &Endpoint{
		bus:    b,
		self:   self,
		router: router,
		ctx:    ctx,
		cancel: cancel,
	}
	b.endpoints[self.Context] = ep
	return ep, nil
}

// Registered reports whether id has a live endpoint.
func (b *Bus) Registered(id ContextID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.endpoints[id]
	return ok
}

// Send delivers req from one context to another and waits for the reply, the
// receiver closing, or ctx ending.
func (b *Bus) Send(ctx context.Context, from Sender, to ContextID, req protocol.Request) (protocol.Response, error) {
	ep, raw, err := b.prepare(to, req)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	reply := make(chan envelope, 1)
	var once sync.Once
	respond := func(env envelope) {
		once.Do(func() { reply <- env })
	}

	b.logger.Debug("sending message",
		zap.String("id", id),
		zap.String("action", req.Action().String()),
		zap.String("from", string(from.Context)),
		zap.String("to", string(to)))

	go func() {
		defer b.wg.Done()
		respond(ep.deliver(id, raw, from))
	}()

	select {
	case env := <-reply:
		if env.Closed {
			return nil, ErrContextClosed
		}
		if env.Unhandled {
			return nil, fmt.Errorf("%w: %s has no handler for %s", ErrUnknownAction, to, req.Action())
		}
		if env.Error != "" {
			return nil, &RemoteError{Context: to, Message: env.Error}
		}
		if len(env.Body) == 0 {
			return nil, nil
		}
		return protocol.DecodeResponse(req.Action(), env.Body)
	case <-ep.ctx.Done():
		return nil, ErrContextClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Post delivers req without waiting for a reply.
func (b *Bus) Post(from Sender, to ContextID, req protocol.Request) error {
	ep, raw, err := b.prepare(to, req)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	go func() {
		defer b.wg.Done()
		if env := ep.deliver(id, raw, from); env.Error != "" {
			b.logger.Debug("posted message failed",
				zap.String("id", id),
				zap.String("to", string(to)),
				zap.String("error", env.Error))
		}
	}()
	return nil
}

// prepare encodes req and reserves a delivery slot. The caller must start
// exactly one delivery goroutine that calls b.wg.Done.
func (b *Bus) prepare(to ContextID, req protocol.Request) (*Endpoint, []byte, error) {
	raw, err := protocol.EncodeRequest(req)
	if err != nil {
		return nil, nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, nil, ErrContextClosed
	}
	ep, ok := b.endpoints[to]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoReceiver, to)
	}
	b.wg.Add(1)
	return ep, raw, nil
}

// Close tears down every endpoint and waits for deliveries to finish. Sends
// after Close fail with ErrContextClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	eps := make([]*Endpoint, 0, len(b.endpoints))
	for _, ep := range b.endpoints {
		eps = append(eps, ep)
	}
	b.mu.Unlock()
	for _, ep := range eps {
		ep.Close()
	}
	b.wg.Wait()
}

func (b *Bus) unregister(ep *Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.endpoints[ep.self.Context] == ep {
		delete(b.endpoints, ep.self.Context)
	}
}

// Endpoint is one context's attachment to the bus.
type Endpoint struct {
	bus    *Bus
	self   Sender
	router *Router
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// ID returns the context id of the endpoint.
func (e *Endpoint) ID() ContextID { return e.self.Context }

// Router returns the endpoint's dispatch table.
func (e *Endpoint) Router() *Router { return e.router }

// Context is cancelled when the endpoint closes.
func (e *Endpoint) Context() context.Context { return e.ctx }

// Send sends req from this endpoint to another context.
func (e *Endpoint) Send(ctx context.Context, to ContextID, req protocol.Request) (protocol.Response, error) {
	return e.bus.Send(ctx, e.self, to, req)
}

// Post posts req from this endpoint to another context.
func (e *Endpoint) Post(to ContextID, req protocol.Request) error {
	return e.bus.Post(e.self, to, req)
}

// Close detaches the endpoint. Pending senders receive ErrContextClosed.
func (e *Endpoint) Close() {
	e.once.Do(func() {
		e.bus.unregister(e)
		e.cancel()
	})
}

func (e *Endpoint) deliver(id string, raw []byte, from Sender) envelope {
	if e.ctx.Err() != nil {
		return envelope{ID: id, Error: ErrContextClosed.Error(), Closed: true}
	}
	req, err := protocol.DecodeRequest(raw)
	if err != nil {
		return envelope{ID: id, Error: err.Error()}
	}
	resp, err := e.router.Dispatch(e.ctx, req, from)
	if e.ctx.Err() != nil {
		return envelope{ID: id, Error: ErrContextClosed.Error(), Closed: true}
	}
	if err != nil {
		return envelope{ID: id, Error: err.Error(), Unhandled: errors.Is(err, ErrUnknownAction)}
	}
	if resp == nil {
		return envelope{ID: id}
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return envelope{ID: id, Error: fmt.Sprintf("encode %s response: %v", req.Action(), err)}
	}
	return envelope{ID: id, Body: body}
}
