package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/domain/settings"
	"go.uber.org/zap"
)

// Version is reported in the User-Agent header.
const Version = "1.0.0"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// Client calls the credibility scoring service.
type Client struct {
	http      *http.Client
	retryCfg  retry.Config
	timeout   time.Duration
	userAgent string
	logger    *zap.Logger
}

// NewClient creates a scoring client.
func NewClient(opts ...Option) *Client {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Client{
		http:      o.httpClient,
		timeout:   o.timeout,
		userAgent: o.userAgent,
		logger:    o.logger,
		retryCfg: retry.Config{
			MaxAttempts:   o.maxAttempts,
			InitialDelay:  o.initialDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// Endpoint returns the fact-check URL for a service base URL.
func Endpoint(serviceURL string) string {
	return strings.TrimRight(serviceURL, "/") + "/fact-check"
}

// response is what one HTTP exchange produced. Service answers travel in
// result/err so that only network failures reach the retryer.
type response struct {
	result credibility.CheckResult
	err    error
}

// Check posts text to the service at serviceURL. A 2xx payload is returned
// as-is, which may be a validation-variant result; everything else is a
// *credibility.TransportError.
func (c *Client) Check(ctx context.Context, serviceURL, text string) (credibility.CheckResult, error) {
	body, err := json.Marshal(credibility.CheckRequest{Text: text})
	if err != nil {
		return credibility.CheckResult{}, &credibility.TransportError{Message: "encode request", Err: err}
	}
	endpoint := Endpoint(serviceURL)

	exchange := func(ctx context.Context) (response, error) {
		r := retry.New[response](c.retryCfg)
		return r.Do(ctx, func(ctx context.Context) (response, error) {
			return c.post(ctx, endpoint, body)
		})
	}

	var resp response
	if c.timeout > 0 {
		t := timeout.New[response](timeout.Config{DefaultTimeout: c.timeout})
		resp, err = t.Execute(ctx, c.timeout, exchange)
	} else {
		resp, err = exchange(ctx)
	}
	if err != nil {
		c.logger.Debug("credibility check failed", zap.String("endpoint", endpoint), zap.Error(err))
		var terr *credibility.TransportError
		if errors.As(err, &terr) {
			return credibility.CheckResult{}, terr
		}
		return credibility.CheckResult{}, &credibility.TransportError{Message: err.Error(), Err: err}
	}
	if resp.err != nil {
		return credibility.CheckResult{}, resp.err
	}
	return resp.result, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return response{err: &credibility.TransportError{Message: "create request", Err: err}}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return response{}, &credibility.TransportError{Message: err.Error(), Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return response{}, &credibility.TransportError{Message: err.Error(), Status: httpResp.StatusCode, Err: err}
	}

	ok := httpResp.StatusCode >= 200 && httpResp.StatusCode < 300
	var result credibility.CheckResult
	if err := json.Unmarshal(raw, &result); err != nil {
		if !ok {
			return response{err: &credibility.TransportError{Message: credibility.ErrGenericFailure, Status: httpResp.StatusCode, Err: err}}, nil
		}
		return response{err: &credibility.TransportError{
			Message: fmt.Sprintf("malformed response from credibility service: %v", err),
			Status:  httpResp.StatusCode,
			Err:     err,
		}}, nil
	}

	if !ok {
		msg := result.Error
		if msg == "" {
			msg = credibility.ErrGenericFailure
		}
		return response{err: &credibility.TransportError{Message: msg, Status: httpResp.StatusCode}}, nil
	}
	return response{result: result}, nil
}

// Health probes the service's health endpoint.
func (c *Client) Health(ctx context.Context, serviceURL string) error {
	endpoint := strings.TrimRight(serviceURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return &credibility.TransportError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return &credibility.TransportError{Message: fmt.Sprintf("health check returned status %d", resp.StatusCode), Status: resp.StatusCode}
	}
	return nil
}

// SettingsScorer binds a Client to a settings store, reading serviceUrl at
// the moment of each check so saves from other contexts take effect.
type SettingsScorer struct {
	client *Client
	store  settings.Store
}

// NewSettingsScorer creates a scorer for client and store.
func NewSettingsScorer(client *Client, store settings.Store) *SettingsScorer {
	return &SettingsScorer{client: client, store: store}
}

// Check resolves the service URL and checks text.
func (s *SettingsScorer) Check(ctx context.Context, text string) (credibility.CheckResult, error) {
	cfg, err := settings.Get(ctx, s.store)
	if err != nil {
		return credibility.CheckResult{}, fmt.Errorf("read settings: %w", err)
	}
	return s.client.Check(ctx, cfg.ServiceURL, text)
}
