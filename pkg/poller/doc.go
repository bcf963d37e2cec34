// Package poller drives scheduled execution.
//
// On every tick it claims a batch of due PENDING events under a time-bounded
// lease and hands each to the delivery engine on its own goroutine. Leases
// replace worker ownership: a crashed worker's claims are reclaimed by the
// recovery loop once the lease expires.
package poller
