// Package dedup suppresses re-delivered submissions before they hit the
// store's unique constraint.
//
// Correctness never depends on this package: the unique index on
// (external_job_id, source, scheduled_at) is the backstop. The filter just
// keeps the common duplicate paths cheap.
package dedup
