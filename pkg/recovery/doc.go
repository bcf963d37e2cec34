// Package recovery reclaims events stranded in PROCESSING after a worker
// crash, by returning expired leases to PENDING on a fixed interval.
package recovery
