package httpclient

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gommgo/release-machine/internal/core/resilience"
	"github.com/gommgo/release-machine/pkg/metrics"
)

// retryableErrorChecker adapts IsRetryableError to resilience.RetryableErrorChecker
// so the retry policy skips attempts doomed to repeat (4xx, malformed requests)
// instead of burning all 3 attempts on a permanent failure.
type retryableErrorChecker struct{}

func (retryableErrorChecker) IsRetryable(err error) bool {
	return IsRetryableError(err)
}

// Doer is the interface every outbound collaborator (CI Trigger Client,
// identity clients) depends on instead of a concrete HTTP client — spec.md §9
// calls the resilient client out explicitly as "an external collaborator
// consumed through an interface".
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ResilientClient wraps a plain *http.Client with retry-with-jitter and a
// circuit breaker, matching the defaults in spec.md §5: 30s timeout, initial
// backoff 0.1s, multiplier 2, cap 10s, max 3 attempts; breaker opens after 5
// consecutive failures and half-opens after 60s of quiet.
type ResilientClient struct {
	inner   *http.Client
	retry   *resilience.RetryPolicy
	breaker *CircuitBreaker
	logger  *slog.Logger
	metrics *metrics.RetryMetrics
}

// Config configures a ResilientClient.
type Config struct {
	Timeout time.Duration
}

// DefaultConfig returns the spec's defaults.
func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second}
}

// New builds a ResilientClient. Pass a shared *CircuitBreakerMetrics (or nil)
// so multiple clients in one process don't double-register Prometheus
// collectors.
func New(cfg Config, cbMetrics *CircuitBreakerMetrics, logger *slog.Logger) (*ResilientClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cbCfg := DefaultCircuitBreakerConfig()
	cbCfg.ResetTimeout = 60 * time.Second
	breaker, err := NewCircuitBreaker(cbCfg, logger, cbMetrics)
	if err != nil {
		return nil, err
	}

	return &ResilientClient{
		inner: &http.Client{Timeout: cfg.Timeout},
		retry: &resilience.RetryPolicy{
			MaxRetries:   2,
			BaseDelay:    100 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
			Logger:       logger,
			ErrorChecker: retryableErrorChecker{},
		},
		breaker: breaker,
		logger:  logger,
		metrics: metrics.NewRetryMetrics(),
	}, nil
}

// Do executes req through the circuit breaker and retry policy. The request
// body, if any, must support being read more than once (callers should pass
// a GetBody-capable *http.Request, as http.NewRequestWithContext produces for
// []byte/strings.Reader bodies) since a retried attempt re-reads it.
func (c *ResilientClient) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response

	// Copy the shared policy per call so the operation label (set by the
	// caller via WithOperation) doesn't race across concurrent requests.
	policy := *c.retry
	policy.OperationName = operationFromContext(req.Context())
	policy.Metrics = c.metrics

	err := resilience.WithRetry(req.Context(), &policy, func() error {
		attempt := req
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return err
			}
			clone := req.Clone(req.Context())
			clone.Body = body
			attempt = clone
		}

		return c.breaker.Call(req.Context(), func(ctx context.Context) error {
			r, err := c.inner.Do(attempt)
			if err != nil {
				return err
			}
			if r.StatusCode >= 500 {
				r.Body.Close()
				return &HTTPError{StatusCode: r.StatusCode, Message: r.Status}
			}
			resp = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}
