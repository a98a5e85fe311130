// Package background implements the long-lived background context: it
// answers protocol messages, owns the notification surface and reacts to
// browser lifecycle events.
package background

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/domain/protocol"
	"github.com/felixgeelhaar/truthguard/pkg/domain/settings"
	"github.com/felixgeelhaar/truthguard/pkg/messaging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notification defaults.
const (
	NotificationTitle    = "TruthGuard Alert"
	NotificationPriority = 1
)

// Checker calls the scoring service at serviceURL.
type Checker interface {
	Check(ctx context.Context, serviceURL, text string) (credibility.CheckResult, error)
}

// Deps are the host surfaces and services the orchestrator uses.
type Deps struct {
	Store    settings.Store
	Checker  Checker
	Tabs     browser.Tabs
	Injector browser.Injector
	Menus    browser.ContextMenus
	Notifier browser.Notifier
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// Orchestrator is the background context.
type Orchestrator struct {
	deps     Deps
	logger   *zap.Logger
	router   *messaging.Router
	endpoint *messaging.Endpoint
}

// New creates an orchestrator. Attach connects it to a bus.
func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:   deps,
		logger: zap.NewNop(),
		router: messaging.NewRouter(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.router.Handle(protocol.ActionCheckCredibility, o.handleCheckCredibility)
	o.router.Handle(protocol.ActionGetSettings, o.handleGetSettings)
	o.router.Handle(protocol.ActionSaveSettings, o.handleSaveSettings)
	return o
}

// Router returns the orchestrator's dispatch table.
func (o *Orchestrator) Router() *messaging.Router { return o.router }

// Attach registers the orchestrator as the background context on bus.
func (o *Orchestrator) Attach(bus *messaging.Bus) error {
	ep, err := bus.Register(messaging.Sender{Context: messaging.Background}, o.router)
	if err != nil {
		return err
	}
	o.endpoint = ep
	return nil
}

// Close detaches the orchestrator from its bus.
func (o *Orchestrator) Close() {
	if o.endpoint != nil {
		o.endpoint.Close()
	}
}

func (o *Orchestrator) handleCheckCredibility(ctx context.Context, req protocol.Request, from messaging.Sender) (protocol.Response, error) {
	check := req.(protocol.CheckCredibility)
	return o.CheckCredibility(ctx, check.Text), nil
}

func (o *Orchestrator) handleGetSettings(ctx context.Context, _ protocol.Request, _ messaging.Sender) (protocol.Response, error) {
	return o.GetSettings(ctx), nil
}

func (o *Orchestrator) handleSaveSettings(ctx context.Context, req protocol.Request, _ messaging.Sender) (protocol.Response, error) {
	save := req.(protocol.SaveSettings)
	return o.SaveSettings(ctx, save.Settings), nil
}

// CheckCredibility validates text, scores it against the configured service
// and raises a notification for high-risk results. Every failure is returned
// in the response.
func (o *Orchestrator) CheckCredibility(ctx context.Context, text string) protocol.CheckCredibilityResponse {
	trimmed, err := credibility.ValidateText(text)
	if err != nil {
		return protocol.CheckFailure(err)
	}

	cfg, err := settings.Get(ctx, o.deps.Store)
	if err != nil {
		o.logger.Warn("failed to read settings", zap.Error(err))
		return protocol.CheckFailure(err)
	}

	result, err := o.deps.Checker.Check(ctx, cfg.ServiceURL, trimmed)
	if err != nil {
		o.logger.Debug("credibility check failed", zap.String("service_url", cfg.ServiceURL), zap.Error(err))
		return protocol.CheckFailure(err)
	}

	o.maybeNotify(ctx, result)
	return protocol.CheckCredibilityResponse{Success: true, Result: &result}
}

// maybeNotify reads notificationsEnabled at the moment of the decision.
func (o *Orchestrator) maybeNotify(ctx context.Context, result credibility.CheckResult) {
	level, ok := result.Risk()
	if !ok || !credibility.ShouldNotify(*result.Score) || o.deps.Notifier == nil {
		return
	}
	cfg, err := settings.Get(ctx, o.deps.Store)
	if err != nil {
		o.logger.Warn("failed to read settings for notification", zap.Error(err))
		return
	}
	if !cfg.NotificationsEnabled {
		return
	}

	n := browser.Notification{
		ID:       uuid.NewString(),
		Title:    NotificationTitle,
		Message:  credibility.Alert(level, result.Category),
		Priority: NotificationPriority,
		Level:    level,
		Category: result.Category,
		Score:    *result.Score,
	}
	if err := o.deps.Notifier.Notify(ctx, n); err != nil {
		o.logger.Warn("failed to show notification", zap.String("id", n.ID), zap.Error(err))
	}
}

// GetSettings returns the full settings record.
func (o *Orchestrator) GetSettings(ctx context.Context) protocol.Response {
	cfg, err := settings.Get(ctx, o.deps.Store)
	if err != nil {
		return protocol.Failure(err)
	}
	return protocol.SettingsResponse{Settings: cfg}
}

// SaveSettings merges partial into the store.
func (o *Orchestrator) SaveSettings(ctx context.Context, partial settings.Partial) protocol.Response {
	if err := o.deps.Store.Save(ctx, partial); err != nil {
		return protocol.Failure(err)
	}
	return protocol.SaveSettingsResponse{Success: true}
}

// OnInstalled seeds missing settings and registers the context-menu entry.
// Running it again changes nothing.
func (o *Orchestrator) OnInstalled(ctx context.Context) error {
	current, err := o.deps.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if missing := current.Missing(); !missing.IsEmpty() {
		if err := o.deps.Store.Save(ctx, missing); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
		o.logger.Info("seeded default settings", zap.Strings("keys", missing.Keys()))
	}

	if o.deps.Menus == nil {
		return nil
	}
	err = o.deps.Menus.Create(ctx, browser.MenuItem{
		ID:       browser.MenuItemCheck,
		Title:    browser.MenuTitleCheck,
		Contexts: []string{browser.MenuContextText},
	})
	if err != nil && !errors.Is(err, browser.ErrDuplicateMenuItem) {
		return fmt.Errorf("create context menu: %w", err)
	}
	return nil
}

// OnTabUpdated injects the content agent once an eligible page finishes
// loading. Injection failures are logged and dropped.
func (o *Orchestrator) OnTabUpdated(ctx context.Context, tab browser.Tab) {
	if tab.Status != browser.StatusComplete || !browser.Eligible(tab.URL) || o.deps.Injector == nil {
		return
	}
	if err := o.deps.Injector.Inject(ctx, tab); err != nil {
		o.logger.Debug("content agent injection skipped",
			zap.String("tab", string(tab.ID)),
			zap.String("url", tab.URL),
			zap.Error(err))
	}
}

// OnContextMenuClicked forwards a non-empty selection to the tab's content
// agent.
func (o *Orchestrator) OnContextMenuClicked(ctx context.Context, click browser.MenuClick, tab browser.Tab) error {
	if click.MenuItemID != browser.MenuItemCheck || click.SelectionText == "" {
		return nil
	}
	return o.post(tab.ID, protocol.CheckSelectedText{Text: click.SelectionText})
}

// OnCommand handles a keyboard shortcut. The content agent re-reads the live
// selection because no text is sent.
func (o *Orchestrator) OnCommand(ctx context.Context, command string) error {
	if command != browser.CommandCheckText {
		return nil
	}
	tab, err := o.deps.Tabs.Active(ctx)
	if err != nil {
		return fmt.Errorf("find active tab: %w", err)
	}
	return o.post(tab.ID, protocol.CheckSelectedText{})
}

func (o *Orchestrator) post(tab browser.TabID, req protocol.Request) error {
	if o.endpoint == nil {
		return messaging.ErrNoReceiver
	}
	if err := o.endpoint.Post(messaging.TabContext(string(tab)), req); err != nil {
		o.logger.Debug("forward to content agent failed", zap.String("tab", string(tab)), zap.Error(err))
		return err
	}
	return nil
}
