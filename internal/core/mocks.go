package core

import (
	"context"
	"sync"
	"time"
)

// MockMetricsCollector records RecordRequest calls for assertions.
type MockMetricsCollector struct {
	mu    sync.Mutex
	Calls []RecordedRequest
}

// RecordedRequest is one MockMetricsCollector call.
type RecordedRequest struct {
	Method   string
	Route    string
	Status   string
	Duration time.Duration
}

// RecordRequest implements MetricsCollector.
func (m *MockMetricsCollector) RecordRequest(method, route, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, RecordedRequest{Method: method, Route: route, Status: status, Duration: duration})
}

// Recorded returns a copy of the recorded calls.
func (m *MockMetricsCollector) Recorded() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// MockHealthProbe is a HealthProbe with a fixed name and scripted result.
//
//	probe := &MockHealthProbe{ProbeName: "redis", Err: errors.New("down")}
type MockHealthProbe struct {
	ProbeName string
	Err       error
	// Delay blocks Check until it elapses or the context ends.
	Delay time.Duration
	// CheckFunc overrides Err when set.
	CheckFunc func(ctx context.Context) error
}

// Name implements HealthProbe.
func (m *MockHealthProbe) Name() string { return m.ProbeName }

// Check implements HealthProbe.
func (m *MockHealthProbe) Check(ctx context.Context) error {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx)
	}
	return m.Err
}
