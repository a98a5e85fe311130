package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/domain/protocol"
	"github.com/felixgeelhaar/truthguard/pkg/domain/settings"
)

// Client is a typed Go client for the companion page API.
type Client struct {
	base     string
	http     *http.Client
	timeout  time.Duration
	retryCfg retry.Config
}

// NewClient creates a client for the server at baseURL, e.g.
// http://127.0.0.1:5001.
func NewClient(baseURL string, opts ...Option) *Client {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    o.httpClient,
		timeout: o.timeout,
		retryCfg: retry.Config{
			MaxAttempts:   o.maxAttempts,
			InitialDelay:  o.initialDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// reply is one answered exchange. Answers of any status travel here so that
// only network failures and 5xx reach the retryer.
type reply struct {
	status int
	body   []byte
}

// do sends a request with retry and returns the final answer.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (reply, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	r := retry.New[reply](c.retryCfg)
	out, err := r.Do(ctx, func(ctx context.Context) (reply, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
		if err != nil {
			return reply{}, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("User-Agent", "truthguard-sdk/"+Version)

		resp, err := c.http.Do(req)
		if err != nil {
			return reply{}, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return reply{}, err
		}
		if resp.StatusCode >= 500 {
			return reply{}, &APIError{Status: resp.StatusCode, Message: failureMessage(data)}
		}
		return reply{status: resp.StatusCode, body: data}, nil
	})
	if err != nil {
		return reply{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return out, nil
}

// failureMessage pulls the error field out of a failure body, falling back
// to the raw text.
func failureMessage(body []byte) string {
	var failure protocol.ErrorResponse
	if err := json.Unmarshal(body, &failure); err == nil && failure.Error != "" {
		return failure.Error
	}
	return strings.TrimSpace(string(body))
}

// Check scores text through the background. A rejected or failed check is
// returned as an *APIError carrying the message the popup would show.
func (c *Client) Check(ctx context.Context, text string) (credibility.CheckResult, error) {
	body, err := json.Marshal(credibility.CheckRequest{Text: text})
	if err != nil {
		return credibility.CheckResult{}, err
	}
	out, err := c.do(ctx, http.MethodPost, "/api/check", body)
	if err != nil {
		return credibility.CheckResult{}, err
	}

	var resp protocol.CheckCredibilityResponse
	if err := json.Unmarshal(out.body, &resp); err != nil {
		return credibility.CheckResult{}, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if out.status != http.StatusOK || !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = failureMessage(out.body)
		}
		return credibility.CheckResult{}, &APIError{Status: out.status, Message: msg}
	}
	if resp.Result == nil {
		return credibility.CheckResult{}, ErrUnexpectedResponse
	}
	return *resp.Result, nil
}

// Settings returns the extension settings the background is using.
func (c *Client) Settings(ctx context.Context) (settings.Settings, error) {
	out, err := c.do(ctx, http.MethodGet, "/api/settings", nil)
	if err != nil {
		return settings.Settings{}, err
	}
	if out.status != http.StatusOK {
		return settings.Settings{}, &APIError{Status: out.status, Message: failureMessage(out.body)}
	}
	var s settings.Settings
	if err := json.Unmarshal(out.body, &s); err != nil {
		return settings.Settings{}, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return s, nil
}

// Health reports whether the server is up.
func (c *Client) Health(ctx context.Context) error {
	out, err := c.do(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return err
	}
	if out.status != http.StatusOK {
		return &APIError{Status: out.status, Message: failureMessage(out.body)}
	}
	return nil
}
