package scoring

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type options struct {
	httpClient   *http.Client
	timeout      time.Duration
	maxAttempts  int
	initialDelay time.Duration
	userAgent    string
	logger       *zap.Logger
}

// defaultOptions issue exactly one request with no deadline beyond the
// transport's own.
func defaultOptions() options {
	return options{
		httpClient:   &http.Client{},
		maxAttempts:  1,
		initialDelay: 500 * time.Millisecond,
		userAgent:    "TruthGuard/" + Version,
		logger:       zap.NewNop(),
	}
}

// Option configures the scoring client.
type Option func(*options)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTimeout bounds each check. Zero leaves the request unbounded.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetry retries network failures. Responses from the service, including
// error responses, are never retried.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(o *options) {
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		o.maxAttempts = maxAttempts
		o.initialDelay = initialDelay
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
