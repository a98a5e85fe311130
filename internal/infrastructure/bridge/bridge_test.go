package bridge

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/truthguard/pkg/application/background"
	"github.com/felixgeelhaar/truthguard/pkg/browser/browsertest"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/domain/protocol"
	"github.com/felixgeelhaar/truthguard/pkg/domain/settings"
	"github.com/felixgeelhaar/truthguard/pkg/messaging"
	"github.com/felixgeelhaar/truthguard/pkg/storage"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type checkerFunc func(ctx context.Context, serviceURL, text string) (credibility.CheckResult, error)

func (f checkerFunc) Check(ctx context.Context, serviceURL, text string) (credibility.CheckResult, error) {
	return f(ctx, serviceURL, text)
}

type env struct {
	bus     *messaging.Bus
	browser *browsertest.Browser
	client  *Client
	texts   chan string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	texts := make(chan string, 8)
	b := browsertest.New()
	bus := messaging.NewBus()
	orch := background.New(background.Deps{
		Store: storage.NewMemorySettingsStore(settings.Defaults().Full()),
		Checker: checkerFunc(func(_ context.Context, _ string, text string) (credibility.CheckResult, error) {
			texts <- text
			return credibility.Success(85, "fabricated_claim", "No evidence.", "Check sources."), nil
		}),
		Tabs:     b,
		Injector: b,
		Menus:    b,
		Notifier: b,
	})
	if err := orch.Attach(bus); err != nil {
		t.Fatal(err)
	}

	srv := NewServer(bus)
	hs := httptest.NewServer(srv)
	client, err := Dial(context.Background(), "ws"+strings.TrimPrefix(hs.URL, "http"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		_ = srv.Shutdown(context.Background())
		hs.Close()
		bus.Close()
	})
	return &env{bus: bus, browser: b, client: client, texts: texts}
}

func TestClientCheck(t *testing.T) {
	e := newEnv(t)

	result, err := e.client.Check(context.Background(), "  The earth is flat  ")
	if err != nil {
		t.Fatal(err)
	}
	if level, ok := result.Risk(); !ok || level != credibility.RiskHigh {
		t.Errorf("result = %+v", result)
	}
	if got := <-e.texts; got != "The earth is flat" {
		t.Errorf("checked %q", got)
	}
	if n := e.browser.Notifications(); len(n) != 1 {
		t.Errorf("expected one notification from the background, got %d", len(n))
	}
}

func TestClientCheck_ValidatesLocally(t *testing.T) {
	e := newEnv(t)

	_, err := e.client.Check(context.Background(), "ab")
	if !credibility.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	select {
	case text := <-e.texts:
		t.Errorf("checker called with %q", text)
	default:
	}
}

func TestClientSettingsRoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.client.SaveSettings(ctx, settings.Partial{NotificationsEnabled: settings.Bool(false)}); err != nil {
		t.Fatal(err)
	}
	got, err := e.client.Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := settings.Defaults()
	want.NotificationsEnabled = false
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settings (-want +got):\n%s", diff)
	}

	if err := e.client.SaveSettings(ctx, settings.Partial{ServiceURL: settings.String("ftp://nope")}); err == nil {
		t.Error("expected invalid service url to be rejected")
	}
}

func TestClientSend_NoReceiver(t *testing.T) {
	e := newEnv(t)

	_, err := e.client.Send(context.Background(), messaging.TabContext("42"), protocol.GetSelectedText{})
	if !errors.Is(err, messaging.ErrNoReceiver) {
		t.Errorf("expected ErrNoReceiver, got %v", err)
	}
}

func TestClientSend_SchemaRejected(t *testing.T) {
	e := newEnv(t)

	_, err := e.client.Send(context.Background(), messaging.TabContext("1"), protocol.HighlightText{Text: "claim", Score: 150})
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Code != codeInvalid {
		t.Errorf("expected invalid frame error, got %v", err)
	}
}

func TestClientPost(t *testing.T) {
	e := newEnv(t)

	var (
		mu  sync.Mutex
		got []protocol.HighlightText
	)
	done := make(chan struct{})
	router := messaging.NewRouter()
	router.Handle(protocol.ActionHighlightText, func(_ context.Context, req protocol.Request, from messaging.Sender) (protocol.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, req.(protocol.HighlightText))
		if from.Context != ContextID {
			t.Errorf("sender = %q", from.Context)
		}
		close(done)
		return nil, nil
	})
	ep, err := e.bus.Register(messaging.Sender{Context: messaging.TabContext("1")}, router)
	if err != nil {
		t.Fatal(err)
	}
	defer ep.Close()

	if err := e.client.Post(context.Background(), messaging.TabContext("1"), protocol.HighlightText{Text: "claim", Score: 55}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("posted message never arrived")
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]protocol.HighlightText{{Text: "claim", Score: 55}}, got); diff != "" {
		t.Errorf("delivered (-want +got):\n%s", diff)
	}
}

func TestClientAfterServerShutdown(t *testing.T) {
	bus := messaging.NewBus()
	defer bus.Close()
	srv := NewServer(bus)
	hs := httptest.NewServer(srv)
	defer hs.Close()

	client, err := Dial(context.Background(), "ws"+strings.TrimPrefix(hs.URL, "http"))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	// Wait for the server to track the connection before shutting down.
	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.mu.Lock()
		n := len(srv.conns)
		srv.mu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err = client.Send(context.Background(), messaging.Background, protocol.GetSettings{})
	if err == nil {
		t.Fatal("expected error after shutdown")
	}
}
