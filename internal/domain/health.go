package domain

import "time"

const (
	// HealthStatusOK means every dependency answered.
	HealthStatusOK = "ok"
	// HealthStatusDegraded means an optional dependency failed; orders are still accepted.
	HealthStatusDegraded = "degraded"
	// HealthStatusError means the order store is unreachable.
	HealthStatusError = "error"
)

// SystemHealthCheck is the outcome of one dependency probe. Detail is "ok" on success, "timeout"
// or "cancelled" when the probe ran out of time, and the error text otherwise.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes for the readiness endpoint. Status is the worst
// check status: error when a dependency needed to take orders failed, degraded when only optional
// dependencies such as notifications or the shared idempotency store failed.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Commit      string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
