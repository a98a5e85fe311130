// Package browser declares the host surfaces the TruthGuard contexts depend
// on: tabs, script evaluation, content-agent injection, context menus,
// notifications and the page a content agent lives in.
//
// Implementations live in internal/infrastructure/chrome (a real browser
// driven over the DevTools protocol) and browsertest (in-memory).
package browser

import (
	"context"
	"errors"
	"net/url"

	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/lifecycle"
)

var (
	// ErrRestrictedPage is returned when a page refuses script execution or
	// injection, e.g. browser-internal pages.
	ErrRestrictedPage = errors.New("browser: cannot access a restricted page")
	// ErrDuplicateMenuItem is returned when a context-menu id is registered twice.
	ErrDuplicateMenuItem = errors.New("browser: duplicate context menu item id")
	// ErrNoActiveTab is returned when no tab has focus.
	ErrNoActiveTab = errors.New("browser: no active tab")
	// ErrTabNotFound is returned for an unknown tab id.
	ErrTabNotFound = errors.New("browser: tab not found")
)

// TabID identifies a tab.
type TabID string

// TabStatus is the load status of a tab.
type TabStatus string

const (
	StatusLoading  TabStatus = "loading"
	StatusComplete TabStatus = "complete"
)

// Tab describes one browser tab.
type Tab struct {
	ID     TabID
	URL    string
	Status TabStatus
}

// Script is an expression evaluated once in a page.
type Script string

// SelectionScript returns the page's current text selection.
const SelectionScript Script = "() => window.getSelection().toString()"

// Context-menu registration used by the background.
const (
	MenuItemCheck    = "truthguard-check"
	MenuTitleCheck   = "Check with TruthGuard"
	MenuContextText  = "selection"
	CommandCheckText = "check-selected"
)

// Eligible reports whether a content agent may be injected into rawURL.
// Only http and https pages qualify.
func Eligible(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Tabs gives access to open tabs.
type Tabs interface {
	Active(ctx context.Context) (Tab, error)
	ExecuteScript(ctx context.Context, tab TabID, script Script) (string, error)
}

// Injector loads the content agent into a tab.
type Injector interface {
	Inject(ctx context.Context, tab Tab) error
}

// InjectorFunc adapts a function to Injector.
type InjectorFunc func(ctx context.Context, tab Tab) error

func (f InjectorFunc) Inject(ctx context.Context, tab Tab) error { return f(ctx, tab) }

// MenuItem is a context-menu entry.
type MenuItem struct {
	ID       string
	Title    string
	Contexts []string
}

// ContextMenus registers context-menu entries.
type ContextMenus interface {
	Create(ctx context.Context, item MenuItem) error
}

// Notification is a system notification.
type Notification struct {
	ID       string                `json:"id"`
	Title    string                `json:"title"`
	Message  string                `json:"message"`
	Priority int                   `json:"priority"`
	Level    credibility.RiskLevel `json:"level"`
	Category string                `json:"category"`
	Score    int                   `json:"score"`
}

// Notifier shows notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// MenuClick describes a context-menu activation.
type MenuClick struct {
	MenuItemID    string
	SelectionText string
}

// Page is the document a content agent runs in.
type Page interface {
	URL() string
	// Selection returns the live text selection.
	Selection() string
	// Claim marks the page as owned by name. It returns false when the page
	// was already claimed.
	Claim(name string) bool
	ShowContextMenu(x, y int)
	HideContextMenu()
	Highlight(text string, level credibility.RiskLevel)
	// Overlay is the floating panel the agent renders results into.
	Overlay() lifecycle.Renderer
}
