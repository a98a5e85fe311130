// Package browsertest provides an in-memory browser for exercising the
// TruthGuard contexts without a real browser.
package browsertest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/lifecycle"
)

// InjectFunc runs when the content agent is injected into a page.
type InjectFunc func(ctx context.Context, tab browser.Tab, page *Page) error

// Browser is an in-memory browser. It implements browser.Tabs,
// browser.Injector, browser.ContextMenus and browser.Notifier.
type Browser struct {
	mu            sync.Mutex
	tabs          map[browser.TabID]*Page
	active        browser.TabID
	menus         []browser.MenuItem
	notifications []browser.Notification
	injections    map[browser.TabID]int
	inject        InjectFunc
}

// New creates an empty browser.
func New() *Browser {
	return &Browser{
		tabs:       make(map[browser.TabID]*Page),
		injections: make(map[browser.TabID]int),
	}
}

// SetInjector sets what happens when a content agent is injected.
func (b *Browser) SetInjector(fn InjectFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inject = fn
}

// OpenTab opens a loading tab and makes it active.
func (b *Browser) OpenTab(id browser.TabID, url string) *Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := newPage(browser.Tab{ID: id, URL: url, Status: browser.StatusLoading})
	b.tabs[id] = p
	b.active = id
	return p
}

// Activate focuses tab id.
func (b *Browser) Activate(id browser.TabID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = id
}

// Complete marks tab id as loaded and returns its descriptor.
func (b *Browser) Complete(id browser.TabID) browser.Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.tabs[id]
	if !ok {
		return browser.Tab{ID: id}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tab.Status = browser.StatusComplete
	return p.tab
}

// Page returns the page shown in tab id.
func (b *Browser) Page(id browser.TabID) *Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tabs[id]
}

// Active returns the focused tab.
func (b *Browser) Active(ctx context.Context) (browser.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.tabs[b.active]
	if !ok {
		return browser.Tab{}, browser.ErrNoActiveTab
	}
	return p.Tab(), nil
}

// ExecuteScript evaluates script in tab. Only browser.SelectionScript is
// understood.
func (b *Browser) ExecuteScript(ctx context.Context, id browser.TabID, script browser.Script) (string, error) {
	p := b.Page(id)
	if p == nil {
		return "", fmt.Errorf("%w: %s", browser.ErrTabNotFound, id)
	}
	if !browser.Eligible(p.URL()) {
		return "", browser.ErrRestrictedPage
	}
	if script != browser.SelectionScript {
		return "", fmt.Errorf("browsertest: unsupported script %q", script)
	}
	return p.Selection(), nil
}

// Inject runs the configured InjectFunc against the tab's page.
func (b *Browser) Inject(ctx context.Context, tab browser.Tab) error {
	p := b.Page(tab.ID)
	if p == nil {
		return fmt.Errorf("%w: %s", browser.ErrTabNotFound, tab.ID)
	}
	if !browser.Eligible(p.URL()) {
		return browser.ErrRestrictedPage
	}
	b.mu.Lock()
	b.injections[tab.ID]++
	fn := b.inject
	b.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, tab, p)
}

// Injections returns how often a content agent was injected into tab id.
func (b *Browser) Injections(id browser.TabID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.injections[id]
}

// Create registers a context-menu entry.
func (b *Browser) Create(ctx context.Context, item browser.MenuItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.menus {
		if m.ID == item.ID {
			return fmt.Errorf("%w: %s", browser.ErrDuplicateMenuItem, item.ID)
		}
	}
	b.menus = append(b.menus, item)
	return nil
}

// MenuItems returns the registered context-menu entries.
func (b *Browser) MenuItems() []browser.MenuItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.menus)
}

// Notify records a notification.
func (b *Browser) Notify(ctx context.Context, n browser.Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifications = append(b.notifications, n)
	return nil
}

// Notifications returns every notification shown so far.
func (b *Browser) Notifications() []browser.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.notifications)
}

// Highlight is a text span marked on a page.
type Highlight struct {
	Text  string
	Level credibility.RiskLevel
}

// MenuPosition is where the in-page context menu is shown.
type MenuPosition struct {
	X, Y int
}

// Page is an in-memory document. It implements browser.Page.
type Page struct {
	mu         sync.Mutex
	tab        browser.Tab
	selection  string
	claims     map[string]bool
	menu       *MenuPosition
	highlights []Highlight
	overlay    *Overlay
}

func newPage(tab browser.Tab) *Page {
	return &Page{tab: tab, claims: make(map[string]bool), overlay: &Overlay{}}
}

// Tab returns the page's tab descriptor.
func (p *Page) Tab() browser.Tab {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tab
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tab.URL
}

// Select sets the live selection.
func (p *Page) Select(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selection = text
}

func (p *Page) Selection() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selection
}

func (p *Page) Claim(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.claims[name] {
		return false
	}
	p.claims[name] = true
	return true
}

func (p *Page) ShowContextMenu(x, y int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.menu = &MenuPosition{X: x, Y: y}
}

func (p *Page) HideContextMenu() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.menu = nil
}

// Menu returns the position of the visible in-page menu.
func (p *Page) Menu() (MenuPosition, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.menu == nil {
		return MenuPosition{}, false
	}
	return *p.menu, true
}

func (p *Page) Highlight(text string, level credibility.RiskLevel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.highlights = append(p.highlights, Highlight{Text: text, Level: level})
}

// Highlights returns the marked spans.
func (p *Page) Highlights() []Highlight {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.highlights)
}

func (p *Page) Overlay() lifecycle.Renderer { return p.overlay }

// Panel returns the page's overlay for inspection.
func (p *Page) Panel() *Overlay { return p.overlay }

// Overlay records what the result panel shows.
type Overlay struct {
	mu      sync.Mutex
	visible bool
	current lifecycle.Snapshot
	history []lifecycle.Snapshot
	retired int
}

func (o *Overlay) Retire() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.visible {
		o.retired++
	}
	o.visible = false
}

func (o *Overlay) Render(s lifecycle.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = s
	o.visible = s.State != lifecycle.StateIdle
	o.history = append(o.history, s)
}

// Current returns the visible snapshot, if any.
func (o *Overlay) Current() (lifecycle.Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current, o.visible
}

// History returns every rendered snapshot.
func (o *Overlay) History() []lifecycle.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.history)
}
