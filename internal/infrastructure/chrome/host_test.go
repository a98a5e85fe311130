package chrome

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/truthguard/pkg/application/content"
	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/lifecycle"
	"github.com/felixgeelhaar/truthguard/pkg/messaging"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTarget is a scripted document.
type fakeTarget struct {
	mu        sync.Mutex
	doc       string
	ready     string
	focused   bool
	selection string
	events    []pageEvent
	calls     []string
	args      [][]interface{}
}

func (f *fakeTarget) Eval(_ context.Context, js string, args ...interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch js {
	case bootstrapJS:
		raw, _ := json.Marshal(docState{Doc: f.doc, Ready: f.ready})
		return string(raw), nil
	case drainJS:
		raw, _ := json.Marshal(f.events)
		f.events = nil
		return string(raw), nil
	case focusJS:
		if f.focused {
			return "true", nil
		}
		return "false", nil
	case string(browser.SelectionScript):
		return f.selection, nil
	}
	f.calls = append(f.calls, js)
	f.args = append(f.args, args)
	return "", nil
}

func (f *fakeTarget) push(events ...pageEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
}

func (f *fakeTarget) navigate(doc, ready string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc, f.ready = doc, ready
}

// evaluated returns the arguments of every call to js.
func (f *fakeTarget) evaluated(js string) [][]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]interface{}
	for i, c := range f.calls {
		if c == js {
			out = append(out, f.args[i])
		}
	}
	return out
}

type fakeSource struct {
	mu   sync.Mutex
	refs []pageRef
}

func (s *fakeSource) Pages(context.Context) ([]pageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pageRef(nil), s.refs...), nil
}

func (s *fakeSource) set(refs ...pageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs = refs
}

type recordingListener struct {
	mu       sync.Mutex
	updated  []browser.Tab
	commands []string
	onUpdate func(browser.Tab)
}

func (l *recordingListener) OnTabUpdated(_ context.Context, tab browser.Tab) {
	l.mu.Lock()
	l.updated = append(l.updated, tab)
	fn := l.onUpdate
	l.mu.Unlock()
	if fn != nil {
		fn(tab)
	}
}

func (l *recordingListener) OnCommand(_ context.Context, command string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands = append(l.commands, command)
	return nil
}

type fakeAgent struct {
	mu     sync.Mutex
	events []string
	closed bool
}

func (a *fakeAgent) record(e string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *fakeAgent) OnContextMenu(x, y int)                { a.record("contextmenu") }
func (a *fakeAgent) OnClick()                              { a.record("click") }
func (a *fakeAgent) InvokeMenuCheck(context.Context) error { a.record("menu-check"); return nil }
func (a *fakeAgent) Dismiss()                              { a.record("dismiss") }
func (a *fakeAgent) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}

func (a *fakeAgent) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func newTestHost(t *testing.T, src source, opts ...Option) *Host {
	t.Helper()
	h := newHost(src, opts...)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestSweep_ReportsLoadOncePerDocument(t *testing.T) {
	page := &fakeTarget{doc: "d1", ready: "loading"}
	src := &fakeSource{refs: []pageRef{{ID: "t1", URL: "https://news.example.com/", Target: page}}}
	h := newTestHost(t, src)
	l := &recordingListener{}
	ctx := context.Background()

	if err := h.Sweep(ctx, l); err != nil {
		t.Fatal(err)
	}
	if len(l.updated) != 0 {
		t.Fatalf("loading page reported as updated: %v", l.updated)
	}

	page.navigate("d1", "complete")
	_ = h.Sweep(ctx, l)
	_ = h.Sweep(ctx, l)
	if len(l.updated) != 1 || l.updated[0].Status != browser.StatusComplete {
		t.Fatalf("updated = %+v", l.updated)
	}

	page.navigate("d2", "complete")
	_ = h.Sweep(ctx, l)
	if len(l.updated) != 2 {
		t.Errorf("a new document must be reported again, got %d updates", len(l.updated))
	}
}

func TestInject_DispatchesPageEvents(t *testing.T) {
	page := &fakeTarget{doc: "d1", ready: "complete"}
	src := &fakeSource{refs: []pageRef{{ID: "t1", URL: "https://news.example.com/", Target: page}}}
	agent := &fakeAgent{}
	h := newTestHost(t, src, WithInstaller(func(context.Context, browser.Tab, *Page) (Agent, error) {
		return agent, nil
	}))
	l := &recordingListener{}
	l.onUpdate = func(tab browser.Tab) {
		if err := h.Inject(context.Background(), tab); err != nil {
			t.Errorf("inject: %v", err)
		}
	}

	ctx := context.Background()
	_ = h.Sweep(ctx, l)

	page.push(
		pageEvent{Type: "contextmenu", X: 1, Y: 2},
		pageEvent{Type: "click"},
		pageEvent{Type: "menu-check"},
		pageEvent{Type: "dismiss"},
		pageEvent{Type: "command", Command: browser.CommandCheckText},
	)
	_ = h.Sweep(ctx, l)

	want := []string{"contextmenu", "click", "menu-check", "dismiss"}
	agent.mu.Lock()
	got := strings.Join(agent.events, ",")
	agent.mu.Unlock()
	if got != strings.Join(want, ",") {
		t.Errorf("agent events = %s", got)
	}
	if len(l.commands) != 1 || l.commands[0] != browser.CommandCheckText {
		t.Errorf("commands = %v", l.commands)
	}

	page.navigate("d2", "loading")
	_ = h.Sweep(ctx, l)
	if !agent.isClosed() {
		t.Error("agent must close when its document is replaced")
	}
}

func TestSweep_ClosesAgentOfClosedTab(t *testing.T) {
	page := &fakeTarget{doc: "d1", ready: "complete"}
	src := &fakeSource{refs: []pageRef{{ID: "t1", URL: "https://news.example.com/", Target: page}}}
	agent := &fakeAgent{}
	h := newTestHost(t, src, WithInstaller(func(context.Context, browser.Tab, *Page) (Agent, error) {
		return agent, nil
	}))
	ctx := context.Background()
	_ = h.Sweep(ctx, &recordingListener{})
	if err := h.Inject(ctx, browser.Tab{ID: "t1", URL: "https://news.example.com/"}); err != nil {
		t.Fatal(err)
	}

	src.set()
	_ = h.Sweep(ctx, &recordingListener{})
	if !agent.isClosed() {
		t.Error("agent must close with its tab")
	}
}

func TestInject_Refusals(t *testing.T) {
	h := newTestHost(t, &fakeSource{})
	ctx := context.Background()

	if err := h.Inject(ctx, browser.Tab{ID: "x", URL: "chrome://settings"}); !errors.Is(err, browser.ErrRestrictedPage) {
		t.Errorf("restricted page: %v", err)
	}
	if err := h.Inject(ctx, browser.Tab{ID: "x", URL: "https://example.com"}); err == nil {
		t.Error("expected error without an installer")
	}

	h = newTestHost(t, &fakeSource{}, WithInstaller(func(context.Context, browser.Tab, *Page) (Agent, error) {
		return &fakeAgent{}, nil
	}))
	if err := h.Inject(ctx, browser.Tab{ID: "x", URL: "https://example.com"}); !errors.Is(err, browser.ErrTabNotFound) {
		t.Errorf("untracked tab: %v", err)
	}
}

func TestActiveAndExecuteScript(t *testing.T) {
	restricted := &fakeTarget{doc: "a", ready: "complete"}
	news := &fakeTarget{doc: "b", ready: "complete", focused: true, selection: "The earth is flat"}
	src := &fakeSource{refs: []pageRef{
		{ID: "t1", URL: "chrome://newtab", Target: restricted},
		{ID: "t2", URL: "https://news.example.com/", Target: news},
	}}
	h := newTestHost(t, src)
	ctx := context.Background()

	tab, err := h.Active(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tab.ID != "t2" {
		t.Errorf("active = %+v", tab)
	}

	got, err := h.ExecuteScript(ctx, "t2", browser.SelectionScript)
	if err != nil || got != "The earth is flat" {
		t.Errorf("selection = %q, %v", got, err)
	}
	if _, err := h.ExecuteScript(ctx, "t1", browser.SelectionScript); !errors.Is(err, browser.ErrRestrictedPage) {
		t.Errorf("restricted script: %v", err)
	}
	if _, err := h.ExecuteScript(ctx, "nope", browser.SelectionScript); !errors.Is(err, browser.ErrTabNotFound) {
		t.Errorf("unknown tab: %v", err)
	}

	if _, err := newTestHost(t, &fakeSource{}).Active(ctx); !errors.Is(err, browser.ErrNoActiveTab) {
		t.Errorf("no pages: %v", err)
	}
}

func TestCreateMenuItem(t *testing.T) {
	h := newTestHost(t, &fakeSource{})
	item := browser.MenuItem{ID: browser.MenuItemCheck, Title: browser.MenuTitleCheck, Contexts: []string{browser.MenuContextText}}
	if err := h.Create(context.Background(), item); err != nil {
		t.Fatal(err)
	}
	if err := h.Create(context.Background(), item); !errors.Is(err, browser.ErrDuplicateMenuItem) {
		t.Errorf("duplicate: %v", err)
	}
	if len(h.MenuItems()) != 1 {
		t.Errorf("menu items = %v", h.MenuItems())
	}
}

func TestViewFor(t *testing.T) {
	r := credibility.Success(85, "fabricated_claim", "No evidence.", "Check sources.", "no_source")
	v, ok := viewFor(lifecycle.Snapshot{State: lifecycle.StateShowingResult, Result: &r, Risk: credibility.RiskHigh}, "http://localhost:5001")
	if !ok || v.State != "result" || v.Score != 85 || v.Label != "High Risk" || v.Category != "fabricated claim" || v.Website != "http://localhost:5001" {
		t.Errorf("result view = %+v", v)
	}

	v, ok = viewFor(lifecycle.Snapshot{State: lifecycle.StateShowingError, Error: "connection refused"}, "")
	if !ok || v.State != "error" || v.Error != "connection refused" {
		t.Errorf("error view = %+v", v)
	}
	if _, ok := viewFor(lifecycle.Snapshot{State: lifecycle.StateIdle}, ""); ok {
		t.Error("idle has no view")
	}
}

// stubScorer answers every check with a fixed result.
type stubScorer struct{ result credibility.CheckResult }

func (s stubScorer) Check(context.Context, string) (credibility.CheckResult, error) {
	return s.result, nil
}

func TestContentAgentOnChromePage(t *testing.T) {
	page := &fakeTarget{doc: "d1", ready: "complete", selection: "  Vaccines contain microchips  "}
	src := &fakeSource{refs: []pageRef{{ID: "t1", URL: "https://news.example.com/", Target: page}}}
	bus := messaging.NewBus()
	defer bus.Close()

	scorer := stubScorer{result: credibility.Success(85, "fabricated_claim", "No evidence.", "Check sources.")}
	var installed *content.Agent
	h := newHost(src, WithWebsite("http://localhost:5001"), WithInstaller(func(_ context.Context, tab browser.Tab, p *Page) (Agent, error) {
		a, err := content.Install(bus, tab, p, scorer)
		installed = a
		return a, err
	}))
	defer h.Close()

	l := &recordingListener{}
	l.onUpdate = func(tab browser.Tab) {
		if err := h.Inject(context.Background(), tab); err != nil {
			t.Errorf("inject: %v", err)
		}
	}
	ctx := context.Background()
	_ = h.Sweep(ctx, l)
	if installed == nil || !bus.Registered(messaging.TabContext("t1")) {
		t.Fatal("content agent not installed")
	}

	page.push(pageEvent{Type: "contextmenu", X: 40, Y: 50}, pageEvent{Type: "menu-check"})
	_ = h.Sweep(ctx, l)
	installed.Controller().Wait()

	deadline := time.Now().Add(2 * time.Second)
	for {
		renders := page.evaluated(renderOverlayJS)
		if n := len(renders); n > 0 && strings.Contains(renders[n-1][0].(string), `"state":"result"`) {
			if !strings.Contains(renders[n-1][0].(string), `"website":"http://localhost:5001"`) {
				t.Errorf("overlay = %s", renders[n-1][0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("result overlay never rendered; calls = %d", len(page.evaluated(renderOverlayJS)))
		}
		time.Sleep(5 * time.Millisecond)
	}
	if menus := page.evaluated(showMenuJS); len(menus) != 1 || menus[0][0] != 40 || menus[0][1] != 50 {
		t.Errorf("menu shown at %v", menus)
	}
}
