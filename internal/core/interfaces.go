package core

import (
	"context"
	"time"
)

// MetricsCollector records API telemetry. metrics.Collector satisfies it.
type MetricsCollector interface {
	// RecordRequest records one request. route is the chi route pattern,
	// never the raw path, to keep label cardinality bounded.
	RecordRequest(method, route, status string, duration time.Duration)
}

// HealthProbe is a subsystem check run by GET /health.
type HealthProbe interface {
	// Name identifies the component in the health response ("database", "redis").
	Name() string

	// Check returns an error if the subsystem is unhealthy or unreachable.
	// It must respect the context deadline.
	Check(ctx context.Context) error
}
