// Package lifecycle implements the result panel shared by the page overlay and
// the popup: Idle, Loading, ShowingResult and ShowingError, with at most one
// check in flight per controller.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"go.uber.org/zap"
)

// Display timeouts of the page overlay. The popup uses none.
const (
	OverlayResultTimeout = 10 * time.Second
	OverlayErrorTimeout  = 5 * time.Second
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("lifecycle: controller closed")

// Scorer performs one credibility check.
type Scorer interface {
	Check(ctx context.Context, text string) (credibility.CheckResult, error)
}

// Snapshot describes what the panel shows.
type Snapshot struct {
	State      State
	Text       string
	Result     *credibility.CheckResult
	Risk       credibility.RiskLevel
	Error      string
	Generation uint64
}

// Renderer draws the panel. Retire removes the view currently shown and is
// always called before Render on a transition. Both run with the controller
// locked and must not call back into it.
type Renderer interface {
	Retire()
	Render(Snapshot)
}

// RendererFunc adapts a function to Renderer with a no-op Retire.
type RendererFunc func(Snapshot)

func (f RendererFunc) Retire()            {}
func (f RendererFunc) Render(s Snapshot) { f(s) }

// Option configures a Controller.
type Option func(*Controller)

// WithResultTimeout dismisses a shown result after d. Zero disables it.
func WithResultTimeout(d time.Duration) Option {
	return func(c *Controller) { c.resultTimeout = d }
}

// WithErrorTimeout dismisses a shown error after d. Zero disables it.
func WithErrorTimeout(d time.Duration) Option {
	return func(c *Controller) { c.errorTimeout = d }
}

// WithLogger sets the controller logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// Overlay configures the page overlay timeouts.
func Overlay() []Option {
	return []Option{WithResultTimeout(OverlayResultTimeout), WithErrorTimeout(OverlayErrorTimeout)}
}

// Controller owns one panel. A Submit while a check is in flight supersedes
// it: the generation counter moves on and the earlier response is discarded
// when it arrives.
type Controller struct {
	scorer        Scorer
	renderer      Renderer
	resultTimeout time.Duration
	errorTimeout  time.Duration
	logger        *zap.Logger

	mu       sync.Mutex
	machine  *panelMachine
	snapshot Snapshot
	gen      uint64
	timer    *time.Timer
	closed   bool
	inflight sync.WaitGroup
}

// New creates a controller in the Idle state. Without timeout options the
// panel stays until dismissed.
func New(scorer Scorer, renderer Renderer, opts ...Option) (*Controller, error) {
	machine, err := newPanelMachine()
	if err != nil {
		return nil, err
	}
	if renderer == nil {
		renderer = RendererFunc(func(Snapshot) {})
	}
	c := &Controller{
		scorer:   scorer,
		renderer: renderer,
		logger:   zap.NewNop(),
		machine:  machine,
		snapshot: Snapshot{State: StateIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit validates text and starts a check. A validation failure returns a
// *credibility.ValidationError, leaves the state untouched and sends nothing.
func (c *Controller) Submit(ctx context.Context, text string) error {
	trimmed, err := credibility.ValidateText(text)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.gen++
	gen := c.gen
	c.stopTimerLocked()
	if c.machine.current() == StateLoading {
		c.logger.Debug("superseding in-flight check", zap.Uint64("generation", gen))
	} else if err := c.machine.send(EventSubmit); err != nil {
		c.mu.Unlock()
		return err
	}
	c.showLocked(Snapshot{State: StateLoading, Text: trimmed, Generation: gen})
	c.inflight.Add(1)
	c.mu.Unlock()

	// The check outlives the caller: there is no cancellation signal.
	checkCtx := context.WithoutCancel(ctx)
	go func() {
		defer c.inflight.Done()
		res, err := c.scorer.Check(checkCtx, trimmed)
		c.complete(gen, trimmed, res, err)
	}()
	return nil
}

func (c *Controller) complete(gen uint64, text string, res credibility.CheckResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.gen || c.machine.current() != StateLoading {
		c.logger.Debug("discarding stale check response", zap.Uint64("generation", gen), zap.Uint64("current", c.gen))
		return
	}

	if err == nil {
		err = credibility.AsError(res)
	}
	if err != nil {
		if ferr := c.machine.send(EventFail); ferr != nil {
			c.logger.Error("panel transition failed", zap.Error(ferr))
			return
		}
		c.showLocked(Snapshot{State: StateShowingError, Text: text, Error: err.Error(), Generation: gen})
		c.armTimerLocked(gen, c.errorTimeout)
		return
	}

	if serr := c.machine.send(EventSucceed); serr != nil {
		c.logger.Error("panel transition failed", zap.Error(serr))
		return
	}
	result := res
	level, _ := result.Risk()
	c.showLocked(Snapshot{State: StateShowingResult, Text: text, Result: &result, Risk: level, Generation: gen})
	c.armTimerLocked(gen, c.resultTimeout)
}

// Dismiss closes a shown result or error. It does nothing in Idle or Loading.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dismissLocked(c.gen)
}

func (c *Controller) dismissLocked(gen uint64) {
	if gen != c.gen {
		return
	}
	switch c.machine.current() {
	case StateShowingResult, StateShowingError:
	default:
		return
	}
	if err := c.machine.send(EventDismiss); err != nil {
		c.logger.Error("panel transition failed", zap.Error(err))
		return
	}
	c.stopTimerLocked()
	c.showLocked(Snapshot{State: StateIdle, Generation: c.gen})
}

// Reset returns the panel to Idle from any state. A check in flight is
// abandoned and its response will be discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	c.gen++
	c.stopTimerLocked()
	if c.machine.current() == StateIdle {
		c.snapshot = Snapshot{State: StateIdle, Generation: c.gen}
		return
	}
	if err := c.machine.send(EventReset); err != nil {
		c.logger.Error("panel transition failed", zap.Error(err))
		return
	}
	c.showLocked(Snapshot{State: StateIdle, Generation: c.gen})
}

// Close tears the controller down with its owning context. Responses still
// in flight are never processed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.resetLocked()
	c.closed = true
}

// Wait blocks until every check started so far has returned. Intended for
// tests and orderly shutdown.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// State returns the current panel state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.current()
}

// Snapshot returns what the panel currently shows.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

func (c *Controller) showLocked(s Snapshot) {
	c.snapshot = s
	c.renderer.Retire()
	c.renderer.Render(s)
}

func (c *Controller) armTimerLocked(gen uint64, d time.Duration) {
	if d <= 0 {
		return
	}
	c.timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		c.dismissLocked(gen)
	})
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
