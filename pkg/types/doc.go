// Package types defines the core data model shared across dispatch.
//
// The central entity is Event, a scheduled delivery unit that moves through
// the lifecycle PENDING → PROCESSING → {COMPLETED, DEAD_LETTER}, with
// CANCELLED reachable only from PENDING. A failed-but-retriable attempt
// returns the event to PENDING; there is no persisted FAILED state.
package types
