package notify_test

import (
	"bytes"
	"testing"

	"github.com/felixgeelhaar/truthguard/internal/infrastructure/config"
	"github.com/felixgeelhaar/truthguard/internal/infrastructure/notify"
)

func TestRegistry_CreatesAdapters(t *testing.T) {
	cfg := config.NotificationsConfig{
		Terminal: true,
		Slack: []config.SlackConfig{
			{Name: "slack1", URL: "http://slack.example.com/hook", Enabled: true},
			{Name: "off", URL: "http://slack.example.com/off"},
		},
		Webhooks: []config.WebhookConfig{
			{Name: "team", URL: "http://example.com", Enabled: true},
			{Name: "disabled", URL: "http://disabled.example.com"},
		},
	}

	registry, err := notify.NewRegistry(cfg, &bytes.Buffer{}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var kinds []string
	for _, a := range registry.Adapters() {
		kinds = append(kinds, a.Type())
	}
	if len(kinds) != 3 || kinds[0] != "terminal" || kinds[1] != "slack" || kinds[2] != "webhook" {
		t.Errorf("adapters = %v", kinds)
	}
	if registry.Notifier(nil).Len() != 3 {
		t.Error("fanout must cover every adapter")
	}
}

func TestRegistry_SlackWithoutURL(t *testing.T) {
	cfg := config.NotificationsConfig{
		Slack: []config.SlackConfig{{Name: "bad", Enabled: true}},
	}
	if _, err := notify.NewRegistry(cfg, nil, nil, nil); err == nil {
		t.Error("expected error for slack adapter without url")
	}
}

func TestRegistry_Empty(t *testing.T) {
	registry, err := notify.NewRegistry(config.NotificationsConfig{Terminal: true}, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(registry.Adapters()) != 0 {
		t.Errorf("expected no adapters without an output, got %d", len(registry.Adapters()))
	}
	registry.Wait()
}
