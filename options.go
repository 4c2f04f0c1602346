package chronodex

import (
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	retryMax   int
	logger     *zap.Logger
	httpClient HTTPDoer
}

// WithBaseURL sets the gateway base URL, e.g. "http://localhost:8480".
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) {
		c.apiKey = key
	}
}

// WithTimeout sets the per-request timeout. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithRetryMax sets the maximum number of transport retries. Defaults to 3.
func WithRetryMax(n int) Option {
	return func(c *clientConfig) {
		c.retryMax = n
	}
}

// WithLogger sets the client logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the underlying HTTP client, bypassing the default
// retrying transport. Intended for tests.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *clientConfig) {
		c.httpClient = doer
	}
}
