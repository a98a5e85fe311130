// Package chrome drives a real Chromium browser over the DevTools protocol
// and presents it as the TruthGuard host: tabs, script evaluation, content
// agent injection, context menus and the in-page overlay.
package chrome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/truthguard/internal/infrastructure/config"
	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"go.uber.org/zap"
)

const defaultEvalTimeout = 3 * time.Second

// Agent is the content agent living in one page.
type Agent interface {
	OnContextMenu(x, y int)
	OnClick()
	InvokeMenuCheck(ctx context.Context) error
	Dismiss()
	Close()
}

// InstallFunc installs a content agent into page.
type InstallFunc func(ctx context.Context, tab browser.Tab, page *Page) (Agent, error)

// Listener receives browser lifecycle events. The background orchestrator
// satisfies it.
type Listener interface {
	OnTabUpdated(ctx context.Context, tab browser.Tab)
	OnCommand(ctx context.Context, command string) error
}

// pageRef is one open page as reported by the browser.
type pageRef struct {
	ID     browser.TabID
	URL    string
	Target target
}

type source interface {
	Pages(ctx context.Context) ([]pageRef, error)
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithInstaller sets how content agents are installed on injection.
func WithInstaller(fn InstallFunc) Option {
	return func(h *Host) { h.install = fn }
}

// WithWebsite sets the overlay's "Open Full Website" target.
func WithWebsite(url string) Option {
	return func(h *Host) { h.website = url }
}

// WithEvalTimeout bounds every script evaluation.
func WithEvalTimeout(d time.Duration) Option {
	return func(h *Host) { h.timeout = d }
}

type tabState struct {
	page     *Page
	doc      string
	complete bool
	agent    Agent
}

// Host implements browser.Tabs, browser.Injector and browser.ContextMenus on
// top of a DevTools connection.
type Host struct {
	src      source
	browser  *rod.Browser
	launched bool
	install  InstallFunc
	website  string
	timeout  time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	tabs  map[browser.TabID]*tabState
	menus []browser.MenuItem
}

func newHost(src source, opts ...Option) *Host {
	h := &Host{
		src:     src,
		timeout: defaultEvalTimeout,
		logger:  zap.NewNop(),
		tabs:    make(map[browser.TabID]*tabState),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect attaches to the browser at cfg.DebuggerURL, or launches one when
// no URL is configured.
func Connect(ctx context.Context, cfg config.ChromeConfig, opts ...Option) (*Host, error) {
	controlURL := cfg.DebuggerURL
	launched := false
	if controlURL == "" {
		u, err := launcher.New().Headless(cfg.Headless).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
		launched = true
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	h := newHost(rodSource{browser: b}, opts...)
	h.browser = b
	h.launched = launched
	h.logger.Info("connected to chrome", zap.String("control_url", controlURL), zap.Bool("launched", launched))
	return h, nil
}

// Close tears down every installed agent. A browser launched by Connect is
// closed too.
func (h *Host) Close() error {
	h.mu.Lock()
	tabs := h.tabs
	h.tabs = make(map[browser.TabID]*tabState)
	h.mu.Unlock()

	for _, st := range tabs {
		st.retire()
	}
	if h.browser != nil && h.launched {
		return h.browser.Close()
	}
	return nil
}

func (st *tabState) retire() {
	if st.agent != nil {
		st.agent.Close()
	}
	st.page.close()
}

// Active returns the focused tab, or the first open tab when none reports
// focus.
func (h *Host) Active(ctx context.Context) (browser.Tab, error) {
	refs, err := h.src.Pages(ctx)
	if err != nil {
		return browser.Tab{}, fmt.Errorf("list pages: %w", err)
	}
	if len(refs) == 0 {
		return browser.Tab{}, browser.ErrNoActiveTab
	}

	chosen := refs[0]
	for _, ref := range refs {
		focused, err := h.eval(ctx, ref.Target, focusJS)
		if err == nil && focused == "true" {
			chosen = ref
			break
		}
	}
	return h.tabFor(chosen), nil
}

func (h *Host) tabFor(ref pageRef) browser.Tab {
	tab := browser.Tab{ID: ref.ID, URL: ref.URL, Status: browser.StatusLoading}
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.tabs[ref.ID]; ok && st.complete {
		tab.Status = browser.StatusComplete
	}
	return tab
}

// ExecuteScript evaluates script once in tab. Only http and https pages
// accept scripts.
func (h *Host) ExecuteScript(ctx context.Context, id browser.TabID, script browser.Script) (string, error) {
	ref, err := h.find(ctx, id)
	if err != nil {
		return "", err
	}
	if !browser.Eligible(ref.URL) {
		return "", browser.ErrRestrictedPage
	}
	return h.eval(ctx, ref.Target, string(script))
}

func (h *Host) find(ctx context.Context, id browser.TabID) (pageRef, error) {
	refs, err := h.src.Pages(ctx)
	if err != nil {
		return pageRef{}, fmt.Errorf("list pages: %w", err)
	}
	for _, ref := range refs {
		if ref.ID == id {
			return ref, nil
		}
	}
	return pageRef{}, fmt.Errorf("%w: %s", browser.ErrTabNotFound, id)
}

func (h *Host) eval(ctx context.Context, t target, js string, args ...interface{}) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return t.Eval(ctx, js, args...)
}

// Inject installs the content agent into a tracked tab.
func (h *Host) Inject(ctx context.Context, tab browser.Tab) error {
	if !browser.Eligible(tab.URL) {
		return browser.ErrRestrictedPage
	}
	if h.install == nil {
		return errors.New("chrome: no content agent installer configured")
	}

	h.mu.Lock()
	st, ok := h.tabs[tab.ID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", browser.ErrTabNotFound, tab.ID)
	}

	agent, err := h.install(ctx, tab, st.page)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tabs[tab.ID] != st {
		// The document changed while installing.
		agent.Close()
		return fmt.Errorf("%w: %s navigated away", browser.ErrTabNotFound, tab.ID)
	}
	st.agent = agent
	return nil
}

// Create registers a context-menu item. The in-page menu shows the check
// item; the registry keeps ids unique.
func (h *Host) Create(_ context.Context, item browser.MenuItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.menus {
		if m.ID == item.ID {
			return browser.ErrDuplicateMenuItem
		}
	}
	h.menus = append(h.menus, item)
	return nil
}

// MenuItems returns the registered context-menu items.
func (h *Host) MenuItems() []browser.MenuItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]browser.MenuItem(nil), h.menus...)
}

type rodSource struct {
	browser *rod.Browser
}

func (s rodSource) Pages(ctx context.Context) ([]pageRef, error) {
	pages, err := s.browser.Context(ctx).Pages()
	if err != nil {
		return nil, err
	}
	refs := make([]pageRef, 0, len(pages))
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		refs = append(refs, pageRef{ID: browser.TabID(p.TargetID), URL: info.URL, Target: rodTarget{page: p}})
	}
	return refs, nil
}

type rodTarget struct {
	page *rod.Page
}

func (t rodTarget) Eval(ctx context.Context, js string, args ...interface{}) (string, error) {
	res, err := t.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return "", err
	}
	if res == nil || res.Value.Nil() {
		return "", nil
	}
	return res.Value.String(), nil
}

// docState is what bootstrapJS reports.
type docState struct {
	Doc   string `json:"doc"`
	Ready string `json:"ready"`
}

func parseDoc(raw string) (docState, error) {
	var d docState
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return d, fmt.Errorf("decode document state: %w", err)
	}
	return d, nil
}
