package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
)

// SlackAdapter posts alerts to a Slack incoming webhook URL.
type SlackAdapter struct {
	name   string
	url    string
	client *http.Client
}

// NewSlackAdapter creates a Slack adapter.
func NewSlackAdapter(name, url string) *SlackAdapter {
	return &SlackAdapter{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *SlackAdapter) Name() string { return a.name }
func (a *SlackAdapter) Type() string { return "slack" }

func (a *SlackAdapter) Notify(ctx context.Context, n browser.Notification) error {
	text := formatSlackMessage(n)

	payload := map[string]interface{}{
		"text": text,
		"blocks": []map[string]interface{}{
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

func formatSlackMessage(n browser.Notification) string {
	switch n.Level {
	case credibility.RiskHigh:
		return fmt.Sprintf(":rotating_light: *%s*\n%s (score %d)", n.Title, n.Message, n.Score)
	case credibility.RiskMedium:
		return fmt.Sprintf(":warning: *%s*\n%s (score %d)", n.Title, n.Message, n.Score)
	default:
		return fmt.Sprintf("*%s*\n%s", n.Title, n.Message)
	}
}
