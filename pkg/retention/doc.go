// Package retention bounds store growth by deleting COMPLETED, DEAD_LETTER
// and CANCELLED events once they age past the retention window.
package retention
