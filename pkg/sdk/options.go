package sdk

import (
	"net/http"
	"time"
)

type options struct {
	httpClient   *http.Client
	timeout      time.Duration
	maxAttempts  int
	initialDelay time.Duration
}

func defaultOptions() options {
	return options{
		httpClient:   http.DefaultClient,
		timeout:      30 * time.Second,
		maxAttempts:  3,
		initialDelay: 500 * time.Millisecond,
	}
}

// Option configures the SDK client.
type Option func(*options)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout should be
// zero so event streams are not cut off.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTimeout sets the per-call timeout. It does not apply to Subscribe.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetry configures retry behaviour.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(o *options) {
		o.maxAttempts = maxAttempts
		o.initialDelay = initialDelay
	}
}
