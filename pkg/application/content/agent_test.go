package content

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/felixgeelhaar/truthguard/pkg/browser/browsertest"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/domain/protocol"
	"github.com/felixgeelhaar/truthguard/pkg/domain/settings"
	"github.com/felixgeelhaar/truthguard/pkg/lifecycle"
	"github.com/felixgeelhaar/truthguard/pkg/messaging"
	"github.com/felixgeelhaar/truthguard/pkg/scoring"
	"github.com/felixgeelhaar/truthguard/pkg/storage"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"))
}

type harness struct {
	browser *browsertest.Browser
	page    *browsertest.Page
	bus     *messaging.Bus
	agent   *Agent
	calls   *atomic.Int32
}

func newHarness(t *testing.T, serviceURL string, calls *atomic.Int32, opts ...Option) *harness {
	t.Helper()
	b := browsertest.New()
	page := b.OpenTab("1", "https://news.example.com/story")
	tab := b.Complete("1")

	bus := messaging.NewBus()
	store := storage.NewMemorySettingsStore(settings.Partial{ServiceURL: settings.String(serviceURL)})
	scorer := scoring.NewSettingsScorer(scoring.NewClient(), store)

	agent, err := Install(bus, tab, page, scorer, opts...)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	t.Cleanup(func() {
		agent.Close()
		agent.Controller().Wait()
		bus.Close()
	})
	return &harness{browser: b, page: page, bus: bus, agent: agent, calls: calls}
}

func scoringServer(t *testing.T, status int, body string) (string, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server.URL + "/api", calls
}

func waitForState(t *testing.T, c *lifecycle.Controller, want lifecycle.State, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.State(), want)
}

const highRiskBody = `{"score":85,"category":"fabricated_claim","explanation":"No evidence.","tip":"Check sources.","flags":["no_source","emotional_language"]}`

func TestInstall_OncePerPage(t *testing.T) {
	url, calls := scoringServer(t, http.StatusOK, highRiskBody)
	h := newHarness(t, url, calls)

	_, err := Install(h.bus, h.page.Tab(), h.page, nil)
	if !errors.Is(err, ErrAlreadyInstalled) {
		t.Errorf("expected ErrAlreadyInstalled, got %v", err)
	}
}

func TestGetSelectedText(t *testing.T) {
	url, calls := scoringServer(t, http.StatusOK, highRiskBody)
	h := newHarness(t, url, calls)
	h.page.Select("  The earth is flat \n")

	resp, err := h.bus.Send(context.Background(), messaging.Sender{Context: messaging.Popup}, messaging.TabContext("1"), protocol.GetSelectedText{})
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.(protocol.SelectedTextResponse).Text; got != "The earth is flat" {
		t.Errorf("text = %q", got)
	}
}

func TestHighlightText(t *testing.T) {
	url, calls := scoringServer(t, http.StatusOK, highRiskBody)
	h := newHarness(t, url, calls)

	if _, err := h.bus.Send(context.Background(), messaging.Sender{Context: messaging.Background}, messaging.TabContext("1"),
		protocol.HighlightText{Text: "claim", Score: 55}); err != nil {
		t.Fatal(err)
	}
	got := h.page.Highlights()
	if len(got) != 1 || got[0].Level != credibility.RiskMedium {
		t.Errorf("highlights = %+v", got)
	}
}

func TestCheckSelectedText_UsesGivenText(t *testing.T) {
	url, calls := scoringServer(t, http.StatusOK, highRiskBody)
	h := newHarness(t, url, calls)

	if err := h.bus.Post(messaging.Sender{Context: messaging.Background}, messaging.TabContext("1"),
		protocol.CheckSelectedText{Text: "Vaccines contain microchips"}); err != nil {
		t.Fatal(err)
	}
	waitForState(t, h.agent.Controller(), lifecycle.StateShowingResult, 2*time.Second)

	snap, visible := h.page.Panel().Current()
	if !visible || snap.Text != "Vaccines contain microchips" || snap.Risk != credibility.RiskHigh {
		t.Errorf("unexpected overlay %+v visible=%v", snap, visible)
	}
	if n := h.browser.Notifications(); len(n) != 0 {
		t.Errorf("content agent must never notify, got %v", n)
	}
}

func TestCheckSelectedText_ReadsLiveSelectionWithoutText(t *testing.T) {
	url, calls := scoringServer(t, http.StatusOK, highRiskBody)
	h := newHarness(t, url, calls)
	h.page.Select("The moon landing was staged")

	if err := h.bus.Post(messaging.Sender{Context: messaging.Background}, messaging.TabContext("1"), protocol.CheckSelectedText{}); err != nil {
		t.Fatal(err)
	}
	waitForState(t, h.agent.Controller(), lifecycle.StateShowingResult, 2*time.Second)
	if snap := h.agent.Controller().Snapshot(); snap.Text != "The moon landing was staged" {
		t.Errorf("checked %q", snap.Text)
	}
}

func TestContextMenu(t *testing.T) {
	url, calls := scoringServer(t, http.StatusOK, highRiskBody)
	h := newHarness(t, url, calls)

	h.page.Select("short")
	h.agent.OnContextMenu(10, 20)
	if _, shown := h.page.Menu(); shown {
		t.Error("menu must need more than 5 characters")
	}

	h.page.Select("  A longer selection  ")
	h.agent.OnContextMenu(10, 20)
	pos, shown := h.page.Menu()
	if !shown || pos.X != 10 || pos.Y != 20 {
		t.Fatalf("menu = %+v shown=%v", pos, shown)
	}

	h.agent.OnClick()
	if _, shown := h.page.Menu(); shown {
		t.Error("any click must hide the menu")
	}

	h.agent.OnContextMenu(30, 40)
	h.page.Select("")
	if err := h.agent.InvokeMenuCheck(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, shown := h.page.Menu(); shown {
		t.Error("menu must hide after check")
	}
	waitForState(t, h.agent.Controller(), lifecycle.StateShowingResult, 2*time.Second)
	if snap := h.agent.Controller().Snapshot(); snap.Text != "A longer selection" {
		t.Errorf("checked %q, want the text captured when the menu opened", snap.Text)
	}
}

func TestCheck_RejectsShortTextWithoutRequest(t *testing.T) {
	url, calls := scoringServer(t, http.StatusOK, highRiskBody)
	h := newHarness(t, url, calls)

	err := h.agent.Check(context.Background(), "ab")
	var verr *credibility.ValidationError
	if !errors.As(err, &verr) || verr.Message != "Text length must be between 5 and 250 characters" {
		t.Fatalf("unexpected error %v", err)
	}
	if h.agent.Controller().State() != lifecycle.StateIdle || calls.Load() != 0 {
		t.Error("invalid text must not leave Idle or send a request")
	}
}

func TestCheck_ConnectionRefusedShowsErrorThenIdle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	h := newHarness(t, "http://"+addr+"/api", &atomic.Int32{},
		WithControllerOptions(lifecycle.WithResultTimeout(time.Second), lifecycle.WithErrorTimeout(30*time.Millisecond)))

	if err := h.agent.Check(context.Background(), "hello world"); err != nil {
		t.Fatal(err)
	}
	h.agent.Controller().Wait()
	snap := h.agent.Controller().Snapshot()
	if snap.State != lifecycle.StateShowingError || snap.Error == "" || snap.Result != nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	waitForState(t, h.agent.Controller(), lifecycle.StateIdle, time.Second)
	if _, visible := h.page.Panel().Current(); visible {
		t.Error("overlay still visible after timeout")
	}
}

func TestClose_UnregistersTab(t *testing.T) {
	url, calls := scoringServer(t, http.StatusOK, highRiskBody)
	h := newHarness(t, url, calls)

	h.agent.Close()
	_, err := h.bus.Send(context.Background(), messaging.Sender{Context: messaging.Popup}, messaging.TabContext("1"), protocol.GetSelectedText{})
	if !errors.Is(err, messaging.ErrNoReceiver) {
		t.Errorf("expected ErrNoReceiver after Close, got %v", err)
	}
}

func TestInjectorInstallsAgent(t *testing.T) {
	url, _ := scoringServer(t, http.StatusOK, highRiskBody)
	b := browsertest.New()
	bus := messaging.NewBus()
	defer bus.Close()
	store := storage.NewMemorySettingsStore(settings.Partial{ServiceURL: settings.String(url)})
	scorer := scoring.NewSettingsScorer(scoring.NewClient(), store)

	var agents []*Agent
	b.SetInjector(func(ctx context.Context, tab browser.Tab, page *browsertest.Page) error {
		a, err := Install(bus, tab, page, scorer)
		if err != nil {
			return err
		}
		agents = append(agents, a)
		return nil
	})
	b.OpenTab("9", "https://example.com/")
	tab := b.Complete("9")
	if err := b.Inject(context.Background(), tab); err != nil {
		t.Fatal(err)
	}
	if err := b.Inject(context.Background(), tab); !errors.Is(err, ErrAlreadyInstalled) {
		t.Errorf("second injection = %v", err)
	}
	if len(agents) != 1 || !bus.Registered(messaging.TabContext("9")) {
		t.Errorf("expected exactly one agent, got %d", len(agents))
	}
	for _, a := range agents {
		a.Close()
	}
}
