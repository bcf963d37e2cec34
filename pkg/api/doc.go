// Package api serves the REST facade: event submission, lookups,
// cancellation, statistics and the token-guarded admin cleanup, plus the
// health and metrics endpoints.
//
// Submission never writes to the store directly. Accepted requests are
// published to the ingestion buffer and acknowledged with 202; persistence
// happens asynchronously in the consumer.
package api
