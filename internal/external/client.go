// Package external is the boundary between the gateway and the charge-site
// backend. All outbound HTTP calls are routed through BaseClient, which
// applies circuit breaking, request-id propagation and a User-Agent.
package external

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"chargemap/internal/types"

	"github.com/sony/gobreaker/v2"
)

// ErrBreakerOpen is returned when the circuit breaker rejects a request.
var ErrBreakerOpen = errors.New("circuit breaker is open; upstream unavailable")

// BreakerSettings configures the circuit breaker of a BaseClient.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker once exceeded.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a probe request.
	OpenTimeout time.Duration
	// Interval clears the failure counts while closed. Zero never clears.
	Interval time.Duration
}

// DefaultBreakerSettings returns the settings used for the backend API.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		Interval:            60 * time.Second,
	}
}

// BaseClient wraps an *http.Client and a circuit breaker. It never retries:
// a failed fetch is surfaced to the user, who retries explicitly.
type BaseClient struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	userAgent string
}

// NewBaseClient creates a BaseClient with its own named breaker.
func NewBaseClient(httpClient *http.Client, breakerName string, settings BreakerSettings, userAgent string) *BaseClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return NewBaseClientWithBreaker(httpClient, cb, userAgent)
}

// NewBaseClientWithBreaker creates a BaseClient with a caller-provided circuit
// breaker.
func NewBaseClientWithBreaker(httpClient *http.Client, breaker *gobreaker.CircuitBreaker[*http.Response], userAgent string) *BaseClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &BaseClient{
		client:    httpClient,
		breaker:   breaker,
		userAgent: userAgent,
	}
}

// BreakerState returns the breaker's current state.
func (c *BaseClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Do executes req once. Every HTTP response is returned to the caller,
// whatever its status; 5xx responses still count as breaker failures. An error
// is returned only when no response was obtained: transport failure, context
// expiry, or an open breaker (wrapping ErrBreakerOpen). The caller closes the
// response body.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if id := types.GetRequestID(req.Context()); id != "" {
		req.Header.Set("X-Request-Id", id)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 {
			return r, fmt.Errorf("upstream returned %d", r.StatusCode)
		}
		return r, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	case resp != nil:
		return resp, nil
	case err != nil:
		return nil, err
	}
	return resp, nil
}
