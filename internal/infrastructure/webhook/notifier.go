// Package webhook delivers high-risk alerts to outgoing webhooks.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-TruthGuard-Signature"

// EventType is the event name sent with every alert.
const EventType = "credibility.alert"

// Endpoint is one webhook target.
type Endpoint struct {
	Name       string
	URL        string
	Secret     string
	Enabled    bool
	MaxRetries int
	RetryDelay time.Duration
}

// Payload is the JSON body sent to webhook endpoints.
type Payload struct {
	EventType string               `json:"event_type"`
	Timestamp time.Time            `json:"timestamp"`
	Data      browser.Notification `json:"data"`
}

// Notifier sends alerts to every enabled endpoint. Delivery is asynchronous;
// Wait blocks until pending deliveries finish.
type Notifier struct {
	endpoints  []Endpoint
	client     *http.Client
	deadLetter *DeadLetterStore
	logger     *zap.Logger
	now        func() time.Time
	wg         sync.WaitGroup
}

// NewNotifier creates a notifier with the given endpoints and dead letter store.
func NewNotifier(endpoints []Endpoint, deadLetter *DeadLetterStore, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		endpoints: endpoints,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		deadLetter: deadLetter,
		logger:     logger,
		now:        time.Now,
	}
}

// Notify queues n for delivery to every enabled endpoint.
func (n *Notifier) Notify(ctx context.Context, note browser.Notification) error {
	payload := Payload{
		EventType: EventType,
		Timestamp: n.now().UTC(),
		Data:      note,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// Deliveries outlive the check that triggered them.
	ctx = context.WithoutCancel(ctx)
	for _, ep := range n.endpoints {
		if !ep.Enabled {
			continue
		}
		n.wg.Add(1)
		go func(ep Endpoint) {
			defer n.wg.Done()
			n.deliver(ctx, ep, note.ID, body)
		}(ep)
	}
	return nil
}

// Wait blocks until every queued delivery has finished or been dead-lettered.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliver(ctx context.Context, ep Endpoint, id string, body []byte) {
	maxRetries := ep.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := ep.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	r := retry.New[struct{}](retry.Config{
		MaxAttempts:   maxRetries,
		InitialDelay:  retryDelay,
		BackoffPolicy: retry.BackoffExponential,
	})
	_, err := r.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.send(ctx, ep, body)
	})
	if err == nil {
		return
	}

	n.logger.Warn("webhook delivery failed", zap.String("webhook", ep.Name), zap.String("id", id), zap.Error(err))
	if n.deadLetter != nil {
		dl := DeadLetter{
			Timestamp:      n.now().UTC(),
			WebhookName:    ep.Name,
			URL:            ep.URL,
			NotificationID: id,
			Payload:        string(body),
			Error:          err.Error(),
			Attempts:       maxRetries,
		}
		if err := n.deadLetter.Append(dl); err != nil {
			n.logger.Error("failed to record dead letter", zap.Error(err))
		}
	}
}

func (n *Notifier) send(ctx context.Context, ep Endpoint, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "TruthGuard-Webhook/1.0")

	if ep.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, ep.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// Sign computes the HMAC-SHA256 of payload using secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
