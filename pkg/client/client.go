// Package client provides the resilient Vectra HTTP request executor with
// retry, backoff, and error classification.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mkorbi/vectra-host-export/pkg/auth"
)

// Prometheus metrics for API request operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vectra_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vectra_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vectra_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vectra_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vectra_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vectra_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Config holds the executor configuration.
type Config struct {
	// Timeout bounds each individual HTTP call, not the whole run.
	Timeout time.Duration

	// Retry governs the backoff schedule.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 120 * time.Second,
		Retry:   DefaultRetryConfig(),
	}
}

// Client executes single authenticated API calls with timeout, response
// classification, and retry with exponential backoff on transient failure.
// It never re-authenticates: 401/403 surfaces as *auth.AuthError so the
// caller can force a token refresh at a higher level.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger

	// sleep performs backoff waits; replaceable for deterministic tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a request executor.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = 1 * time.Second
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = 30 * time.Second
	}
	if cfg.Retry.BackoffMultiplier <= 1 {
		cfg.Retry.BackoffMultiplier = 2.0
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     log.With().Str("component", "client").Logger(),
		sleep:      wait,
	}
}

// Get performs an authenticated GET against rawURL with the given query
// parameters and returns the response body. Transient failures (network,
// 429, 5xx) are retried with exponential backoff; a 429 Retry-After hint
// overrides the computed delay.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values, bearerToken string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &APIError{ErrorClass: ErrorClassClient, Message: "invalid request URL", Err: err}
	}
	if len(query) > 0 {
		merged := u.Query()
		for key, values := range query {
			merged[key] = values
		}
		u.RawQuery = merged.Encode()
	}

	endpoint := u.Path
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	backoff := c.config.Retry.InitialBackoff

	for retries := 0; ; retries++ {
		body, resp, attemptErr := c.attempt(ctx, u.String(), endpoint, bearerToken)
		if attemptErr == nil {
			if retries > 0 {
				c.logger.Info().
					Str("endpoint", endpoint).
					Int("retries", retries).
					Msg("Request succeeded after retry")
			}
			return body, nil
		}

		errClass := classOf(attemptErr)
		errorsTotal.WithLabelValues(string(errClass)).Inc()

		if !shouldRetry(errClass) {
			return nil, attemptErr
		}

		if retries >= c.config.Retry.MaxRetries {
			retryExhaustedTotal.WithLabelValues(string(errClass)).Inc()
			c.logger.Error().
				Str("endpoint", endpoint).
				Str("error_class", string(errClass)).
				Int("retries", retries).
				Msg("Retry attempts exhausted")
			return nil, &APIError{
				StatusCode: statusOf(attemptErr),
				ErrorClass: errClass,
				Message:    "retry attempts exhausted",
				Attempts:   retries,
				Err:        fmt.Errorf("%w: %v", ErrRetryExhausted, attemptErr),
			}
		}

		delay := backoff
		if hint, ok := retryAfterHint(resp); ok {
			// The server knows its own rate limit window better than
			// our schedule does.
			delay = hint
		} else {
			backoff = c.config.Retry.nextBackoff(backoff)
		}

		retriesTotal.WithLabelValues(string(errClass)).Inc()
		retryBackoffSeconds.WithLabelValues(string(errClass)).Observe(delay.Seconds())

		c.logger.Warn().
			Str("endpoint", endpoint).
			Str("error_class", string(errClass)).
			Int("attempt", retries+1).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}
}

// attempt performs one HTTP call and classifies the outcome. The returned
// response is non-nil only for classified HTTP failures, so the retry loop
// can read rate-limit headers; its body is already closed.
func (c *Client) attempt(ctx context.Context, fullURL, endpoint, bearerToken string) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, nil, &APIError{ErrorClass: ErrorClassClient, Message: "create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Msg("Executing API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, nil, &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("Token rejected by API")
		return nil, resp, &auth.AuthError{
			StatusCode: resp.StatusCode,
			Message:    "token rejected",
		}

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		errClass := ErrorClassServer
		if resp.StatusCode == http.StatusTooManyRequests {
			errClass = ErrorClassRateLimit
		}
		return nil, resp, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}

	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("API request rejected")
		return nil, resp, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassClient,
			Message:    fmt.Sprintf("%s: %s", resp.Status, string(body)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &APIError{ErrorClass: ErrorClassNetwork, Message: "read response body", Err: err}
	}
	return body, nil, nil
}

// classOf extracts the error class from a classified attempt error.
func classOf(err error) ErrorClass {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		return ErrorClassAuth
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ErrorClassNetwork
}

// statusOf extracts the last observed HTTP status, 0 for pure network errors.
func statusOf(err error) int {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		return authErr.StatusCode
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetSleep replaces the backoff wait function (for testing).
func (c *Client) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	c.sleep = sleep
}
