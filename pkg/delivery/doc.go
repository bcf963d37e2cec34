// Package delivery executes delivery attempts and records their outcomes.
//
// The engine classifies every attempt as success, retriable failure or
// terminal failure. Timeouts, connection errors and a fixed set of HTTP
// status codes (408, 429, 500, 502, 503, 504) are retriable; any other
// non-2xx status and malformed destinations are terminal. The outcome writer
// turns the classification into the corresponding store transition under the
// worker's lease.
package delivery
