// Package popup implements the popup context: a manual check form, a
// preview of the active tab's selection and a result panel without
// auto-dismiss.
package popup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/lifecycle"
	"go.uber.org/zap"
)

// PreviewLength is how many characters of the selection are displayed.
const PreviewLength = 200

// DefaultWebsiteURL is the companion page opened from the popup.
const DefaultWebsiteURL = "http://localhost:5001"

// View is what the popup currently displays.
type View struct {
	Input            string
	Counter          string
	CanSubmit        bool
	Selection        string
	SelectionPreview string
	Panel            lifecycle.Snapshot
}

// HasSelection reports whether the selection panel is visible.
func (v View) HasSelection() bool { return v.Selection != "" }

// Option configures an Agent.
type Option func(*Agent)

// WithRenderer receives every panel transition. The renderer must not call
// back into the Agent.
func WithRenderer(r lifecycle.Renderer) Option {
	return func(a *Agent) { a.renderer = r }
}

// WithWebsiteURL sets the companion page link.
func WithWebsiteURL(u string) Option {
	return func(a *Agent) { a.websiteURL = u }
}

// WithLogger sets the agent logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// Agent is the popup context.
type Agent struct {
	tabs       browser.Tabs
	controller *lifecycle.Controller
	renderer   lifecycle.Renderer
	websiteURL string
	logger     *zap.Logger

	// mu guards the form and is held across controller calls so the form and
	// the panel change together. Order: mu, then the controller.
	mu        sync.Mutex
	input     string
	selection string
	// epoch invalidates a selection load that finishes after Clear.
	epoch   uint64
	loading sync.WaitGroup
}

// New creates a popup agent. The scorer is called directly, without going
// through the background.
func New(tabs browser.Tabs, scorer lifecycle.Scorer, opts ...Option) (*Agent, error) {
	a := &Agent{
		tabs:       tabs,
		websiteURL: DefaultWebsiteURL,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	controller, err := lifecycle.New(scorer, a.renderer, lifecycle.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.controller = controller
	return a, nil
}

// Open starts reading the active tab's selection in the background. Failures
// leave the selection panel hidden.
func (a *Agent) Open(ctx context.Context) {
	a.mu.Lock()
	epoch := a.epoch
	a.mu.Unlock()

	a.loading.Add(1)
	go func() {
		defer a.loading.Done()
		text, err := a.readSelection(ctx)
		if err != nil {
			a.logger.Debug("could not read selected text", zap.Error(err))
			return
		}
		if text == "" {
			return
		}
		a.mu.Lock()
		if a.epoch == epoch {
			a.selection = text
		}
		a.mu.Unlock()
	}()
}

// WaitOpen blocks until the selection read started by Open finishes.
func (a *Agent) WaitOpen() {
	a.loading.Wait()
}

func (a *Agent) readSelection(ctx context.Context) (string, error) {
	tab, err := a.tabs.Active(ctx)
	if err != nil {
		return "", err
	}
	text, err := a.tabs.ExecuteScript(ctx, tab.ID, browser.SelectionScript)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// SetInput replaces the manual input text.
func (a *Agent) SetInput(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input = text
}

// Check submits the manual input.
func (a *Agent) Check(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.controller.Submit(ctx, a.input)
}

// CheckSelected submits the full captured selection.
func (a *Agent) CheckSelected(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.controller.Submit(ctx, a.selection)
}

// Clear resets the input, the selection panel and the result panel.
func (a *Agent) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input = ""
	a.selection = ""
	a.epoch++
	a.controller.Reset()
}

// Dismiss closes the result panel.
func (a *Agent) Dismiss() {
	a.controller.Dismiss()
}

// WebsiteURL is the companion page link target.
func (a *Agent) WebsiteURL() string { return a.websiteURL }

// Controller returns the result panel controller.
func (a *Agent) Controller() *lifecycle.Controller { return a.controller }

// View returns the current display state.
func (a *Agent) View() View {
	a.mu.Lock()
	input, selection := a.input, a.selection
	panel := a.controller.Snapshot()
	a.mu.Unlock()

	n := utf8.RuneCountInString(input)
	return View{
		Input:            input,
		Counter:          Counter(n),
		CanSubmit:        credibility.WithinBounds(n),
		Selection:        selection,
		SelectionPreview: Preview(selection),
		Panel:            panel,
	}
}

// Close tears the popup down. Pending checks are dropped.
func (a *Agent) Close() {
	a.controller.Close()
}

// Counter renders the input counter, e.g. "12/250".
func Counter(n int) string {
	return fmt.Sprintf("%d/%d", n, credibility.MaxTextLength)
}

// Preview truncates text for the selection panel.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:PreviewLength]) + "..."
}
