// Package metrics exposes Prometheus instrumentation and health probes.
//
// Counters and histograms are package-level collectors registered at init.
// The Collector refreshes per-status gauges from the store, and the
// HealthChecker aggregates dependency probes for the health endpoints.
package metrics
