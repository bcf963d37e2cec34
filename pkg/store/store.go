package store

import (
	"context"
	"errors"
	"time"

	"github.com/softwarestrategies/dispatch/pkg/types"
)

// Sentinel errors returned by store operations. Callers discriminate with
// errors.Is instead of inspecting driver errors.
var (
	// ErrDuplicate indicates the dedup key (external_job_id, source,
	// scheduled_at) already exists. Treated as successful suppression.
	ErrDuplicate = errors.New("store: duplicate event")

	// ErrNotFound indicates no event matched the lookup.
	ErrNotFound = errors.New("store: event not found")

	// ErrInvalidState indicates a transition was attempted from a status
	// that does not permit it, e.g. cancelling a PROCESSING event.
	ErrInvalidState = errors.New("store: invalid event state")

	// ErrLeaseLost indicates an outcome write found the row no longer
	// leased by the caller. The row was reclaimed after lease expiry.
	ErrLeaseLost = errors.New("store: lease lost")

	// ErrRejected indicates the row violates a constraint other than the
	// dedup key. Retrying the same row cannot succeed.
	ErrRejected = errors.New("store: event rejected")
)

// Store is the durable event store consumed by the pipeline components.
// Implemented by Postgres.
type Store interface {
	// Insert persists a new PENDING event. Returns ErrDuplicate when the
	// unique dedup key collides.
	Insert(ctx context.Context, event *types.Event) error

	// ClaimDue atomically claims up to limit due PENDING events for
	// workerID under a lease expiring at leaseUntil. Concurrent callers
	// claim disjoint batches.
	ClaimDue(ctx context.Context, workerID string, now, leaseUntil time.Time, limit int) ([]*types.Event, error)

	// Complete transitions a PROCESSING event owned by workerID to
	// COMPLETED. Returns ErrLeaseLost if the lease is no longer held.
	Complete(ctx context.Context, id, workerID string) error

	// FailRetriable increments retry_count, records the error and returns
	// the event to PENDING for a future claim.
	FailRetriable(ctx context.Context, id, workerID, errMsg string) error

	// FailTerminal increments retry_count, records the error and parks the
	// event in DEAD_LETTER.
	FailTerminal(ctx context.Context, id, workerID, errMsg string) error

	// Unclaim returns a claimed event to PENDING without counting an
	// attempt. Used when a claim retrieved a not-yet-due event.
	Unclaim(ctx context.Context, id string) error

	// CancelByID cancels a PENDING event. Returns ErrNotFound or
	// ErrInvalidState as appropriate.
	CancelByID(ctx context.Context, id string) error

	// CancelByExternalJobID cancels all PENDING events for the external
	// job id and returns the affected count.
	CancelByExternalJobID(ctx context.Context, externalJobID string) (int64, error)

	// ReleaseExpired returns PROCESSING events with expired leases to
	// PENDING and reports the released count.
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)

	// DeleteTerminalBatch deletes up to batchSize terminal events executed
	// before cutoff and reports the deleted count.
	DeleteTerminalBatch(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)

	GetByID(ctx context.Context, id string) (*types.Event, error)
	GetByExternalJobID(ctx context.Context, externalJobID string) (*types.Event, error)
	ListByExternalJobID(ctx context.Context, externalJobID string) ([]*types.Event, error)

	// ExistsByDedupKey reports whether a row with the dedup key exists.
	ExistsByDedupKey(ctx context.Context, externalJobID, source string, scheduledAt time.Time) (bool, error)

	// Statistics aggregates counts per status. Full-scan aggregate; admin
	// path only.
	Statistics(ctx context.Context) (*types.EventStatistics, error)

	// CountScheduledBetween counts events scheduled within [start, end).
	CountScheduledBetween(ctx context.Context, start, end time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close()
}
