// Package content implements the per-page content agent: it answers
// selection queries, shows the in-page context menu and drives an overlay
// result panel against the scoring service.
package content

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/domain/protocol"
	"github.com/felixgeelhaar/truthguard/pkg/lifecycle"
	"github.com/felixgeelhaar/truthguard/pkg/messaging"
	"go.uber.org/zap"
)

// ClaimName marks a page as owned by a content agent.
const ClaimName = "truthguard-content"

// minMenuSelection is the selection length the in-page menu needs to appear.
const minMenuSelection = 5

// ErrAlreadyInstalled is returned when the page already runs an agent.
var ErrAlreadyInstalled = errors.New("content: agent already installed on page")

// Option configures an Agent.
type Option func(*config)

type config struct {
	logger     *zap.Logger
	controller []lifecycle.Option
}

// WithLogger sets the agent logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithControllerOptions overrides the overlay controller options.
func WithControllerOptions(opts ...lifecycle.Option) Option {
	return func(c *config) { c.controller = opts }
}

// Agent is the content context of one page.
type Agent struct {
	tab        browser.TabID
	page       browser.Page
	controller *lifecycle.Controller
	router     *messaging.Router
	endpoint   *messaging.Endpoint
	logger     *zap.Logger

	mu       sync.Mutex
	menuText string
}

// Install claims page and registers a new agent for tab on bus. The scorer is
// called directly, without going through the background.
func Install(bus *messaging.Bus, tab browser.Tab, page browser.Page, scorer lifecycle.Scorer, opts ...Option) (*Agent, error) {
	if !page.Claim(ClaimName) {
		return nil, ErrAlreadyInstalled
	}
	cfg := config{logger: zap.NewNop(), controller: lifecycle.Overlay()}
	for _, opt := range opts {
		opt(&cfg)
	}

	controller, err := lifecycle.New(scorer, page.Overlay(), append(cfg.controller, lifecycle.WithLogger(cfg.logger))...)
	if err != nil {
		return nil, err
	}
	a := &Agent{
		tab:        tab.ID,
		page:       page,
		controller: controller,
		router:     messaging.NewRouter(),
		logger:     cfg.logger.With(zap.String("tab", string(tab.ID))),
	}
	a.router.Handle(protocol.ActionGetSelectedText, a.handleGetSelectedText)
	a.router.Handle(protocol.ActionHighlightText, a.handleHighlightText)
	a.router.Handle(protocol.ActionCheckSelectedText, a.handleCheckSelectedText)

	self := messaging.Sender{Context: messaging.TabContext(string(tab.ID)), TabID: string(tab.ID), URL: tab.URL}
	ep, err := bus.Register(self, a.router)
	if err != nil {
		controller.Close()
		return nil, err
	}
	a.endpoint = ep
	return a, nil
}

// Controller returns the overlay controller.
func (a *Agent) Controller() *lifecycle.Controller { return a.controller }

func (a *Agent) handleGetSelectedText(context.Context, protocol.Request, messaging.Sender) (protocol.Response, error) {
	return protocol.SelectedTextResponse{Text: strings.TrimSpace(a.page.Selection())}, nil
}

func (a *Agent) handleHighlightText(_ context.Context, req protocol.Request, _ messaging.Sender) (protocol.Response, error) {
	h := req.(protocol.HighlightText)
	a.page.Highlight(h.Text, credibility.LevelFor(h.Score))
	return nil, nil
}

func (a *Agent) handleCheckSelectedText(ctx context.Context, req protocol.Request, _ messaging.Sender) (protocol.Response, error) {
	text := req.(protocol.CheckSelectedText).Text
	if text == "" {
		text = a.page.Selection()
	}
	if err := a.Check(ctx, text); err != nil {
		a.logger.Debug("forwarded check rejected", zap.Error(err))
	}
	return nil, nil
}

// OnContextMenu handles a right-click at page coordinates x, y.
func (a *Agent) OnContextMenu(x, y int) {
	text := strings.TrimSpace(a.page.Selection())
	if utf8.RuneCountInString(text) <= minMenuSelection {
		return
	}
	a.mu.Lock()
	a.menuText = text
	a.mu.Unlock()
	a.page.HideContextMenu()
	a.page.ShowContextMenu(x, y)
}

// OnClick handles any click on the page.
func (a *Agent) OnClick() {
	a.page.HideContextMenu()
}

// InvokeMenuCheck runs the in-page menu's check action on the text captured
// when the menu opened.
func (a *Agent) InvokeMenuCheck(ctx context.Context) error {
	a.mu.Lock()
	text := a.menuText
	a.menuText = ""
	a.mu.Unlock()
	a.page.HideContextMenu()
	return a.Check(ctx, text)
}

// Check submits text to the overlay controller.
func (a *Agent) Check(ctx context.Context, text string) error {
	return a.controller.Submit(ctx, text)
}

// Dismiss closes the overlay.
func (a *Agent) Dismiss() {
	a.controller.Dismiss()
}

// Close tears the agent down with its page. Responses still in flight are
// dropped.
func (a *Agent) Close() {
	a.controller.Close()
	if a.endpoint != nil {
		a.endpoint.Close()
	}
}
