package notify_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/truthguard/internal/infrastructure/notify"
	"github.com/felixgeelhaar/truthguard/pkg/browser"
)

type notifierFunc func(context.Context, browser.Notification) error

func (f notifierFunc) Notify(ctx context.Context, n browser.Notification) error { return f(ctx, n) }

func TestFanout_ContinuesPastFailures(t *testing.T) {
	boom := errors.New("boom")
	var delivered []string
	failing := notifierFunc(func(context.Context, browser.Notification) error { return boom })
	recording := notifierFunc(func(_ context.Context, n browser.Notification) error {
		delivered = append(delivered, n.ID)
		return nil
	})

	f := notify.NewFanout(nil, failing, recording)
	err := f.Notify(context.Background(), highRisk())
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error, got %v", err)
	}
	if len(delivered) != 1 || delivered[0] != "n-1" {
		t.Errorf("delivered = %v", delivered)
	}
}

func TestTerminal_WritesAlert(t *testing.T) {
	var buf bytes.Buffer
	term := notify.NewTerminal(&buf)
	if err := term.Notify(context.Background(), highRisk()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "TruthGuard Alert") || !strings.Contains(out, "fabricated_claim") {
		t.Errorf("output = %q", out)
	}
}

func TestNamed(t *testing.T) {
	a := notify.Named(notifierFunc(func(context.Context, browser.Notification) error { return nil }), "stream", "sse")
	if a.Name() != "stream" || a.Type() != "sse" {
		t.Errorf("name=%q type=%q", a.Name(), a.Type())
	}
}
