package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/softwarestrategies/dispatch/pkg/log"
	"github.com/softwarestrategies/dispatch/pkg/types"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// Postgres implements Store on a pgx connection pool
type Postgres struct {
	pool             *pgxpool.Pool
	partitionHorizon int
	logger           zerolog.Logger
}

// Config holds Postgres connection settings
type Config struct {
	DSN              string
	MaxConns         int
	PartitionHorizon int
	ConnectTimeout   time.Duration
}

// Connect opens a connection pool and verifies connectivity, retrying with
// exponential backoff until ConnectTimeout elapses. A store that cannot be
// reached at boot is a fatal startup error for the caller.
func Connect(ctx context.Context, cfg Config) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = cfg.ConnectTimeout

	err = backoff.Retry(func() error {
		return pool.Ping(ctx)
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("store unreachable: %w", err)
	}

	horizon := cfg.PartitionHorizon
	if horizon <= 0 {
		horizon = 40
	}

	return &Postgres{
		pool:             pool,
		partitionHorizon: horizon,
		logger:           log.WithComponent("store"),
	}, nil
}

const eventColumns = `id, external_job_id, source, scheduled_at, delivery_type,
	destination, payload, status, retry_count, max_retries, last_error,
	created_at, updated_at, executed_at, locked_by, lock_expires_at, partition_key`

func scanEvent(row pgx.Row) (*types.Event, error) {
	var (
		e         types.Event
		lastError *string
		lockedBy  *string
	)
	err := row.Scan(
		&e.ID, &e.ExternalJobID, &e.Source, &e.ScheduledAt, &e.DeliveryType,
		&e.Destination, &e.Payload, &e.Status, &e.RetryCount, &e.MaxRetries,
		&lastError, &e.CreatedAt, &e.UpdatedAt, &e.ExecutedAt, &lockedBy,
		&e.LockExpiresAt, &e.PartitionKey,
	)
	if err != nil {
		return nil, err
	}
	if lastError != nil {
		e.LastError = *lastError
	}
	if lockedBy != nil {
		e.LockedBy = *lockedBy
	}
	return &e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// isDataViolation reports whether the error is a data or constraint
// violation (SQLSTATE class 22 or 23). Such rows can never insert cleanly,
// unlike connectivity failures.
func isDataViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return false
	}
	class := pgErr.Code[:2]
	return class == "22" || class == "23"
}

// Insert persists a new PENDING event
func (p *Postgres) Insert(ctx context.Context, event *types.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if len(event.Payload) == 0 {
		event.Payload = []byte("{}")
	}
	now := time.Now().UTC()
	event.Status = types.StatusPending
	event.CreatedAt = now
	event.UpdatedAt = now
	event.PartitionKey = types.PartitionKey(event.ScheduledAt)

	_, err := p.pool.Exec(ctx, `
		INSERT INTO scheduled_events (
			id, external_job_id, source, scheduled_at, delivery_type,
			destination, payload, status, retry_count, max_retries,
			created_at, updated_at, partition_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		event.ID, event.ExternalJobID, event.Source, event.ScheduledAt,
		event.DeliveryType, event.Destination, event.Payload, event.Status,
		event.RetryCount, event.MaxRetries, event.CreatedAt, event.UpdatedAt,
		event.PartitionKey,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if isDataViolation(err) {
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// ClaimDue selects due PENDING events with FOR UPDATE SKIP LOCKED and
// transitions them to PROCESSING under the caller's lease, all in one
// transaction. Concurrent workers claim disjoint batches without blocking.
func (p *Postgres) ClaimDue(ctx context.Context, workerID string, now, leaseUntil time.Time, limit int) ([]*types.Event, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT `+eventColumns+`
		FROM scheduled_events
		WHERE status = 'PENDING'
		AND scheduled_at <= $1
		AND (lock_expires_at IS NULL OR lock_expires_at < $1)
		ORDER BY scheduled_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select due events: %w", err)
	}

	var events []*types.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan due event: %w", err)
		}
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read due events: %w", err)
	}

	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}

	_, err = tx.Exec(ctx, `
		UPDATE scheduled_events
		SET status = 'PROCESSING', locked_by = $1, lock_expires_at = $2, updated_at = $3
		WHERE id = ANY($4)`,
		workerID, leaseUntil, now, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock claimed events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	for _, e := range events {
		e.Status = types.StatusProcessing
		e.LockedBy = workerID
		lease := leaseUntil
		e.LockExpiresAt = &lease
	}
	return events, nil
}

// Complete transitions a PROCESSING event to COMPLETED. The transition is
// predicated on the caller still holding the lease so a late completion
// after lease expiry cannot clobber a re-claimed row.
func (p *Postgres) Complete(ctx context.Context, id, workerID string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE scheduled_events
		SET status = 'COMPLETED', executed_at = now(), updated_at = now(),
		    locked_by = NULL, lock_expires_at = NULL
		WHERE id = $1 AND status = 'PROCESSING' AND locked_by = $2`,
		id, workerID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// FailRetriable records the error and returns the event to PENDING for a
// future poll tick to claim again.
func (p *Postgres) FailRetriable(ctx context.Context, id, workerID, errMsg string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE scheduled_events
		SET status = 'PENDING', retry_count = retry_count + 1, last_error = $3,
		    updated_at = now(), locked_by = NULL, lock_expires_at = NULL
		WHERE id = $1 AND status = 'PROCESSING' AND locked_by = $2`,
		id, workerID, types.TruncateError(errMsg),
	)
	if err != nil {
		return fmt.Errorf("failed to mark event for retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// FailTerminal parks the event in DEAD_LETTER
func (p *Postgres) FailTerminal(ctx context.Context, id, workerID, errMsg string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE scheduled_events
		SET status = 'DEAD_LETTER', retry_count = retry_count + 1, last_error = $3,
		    executed_at = now(), updated_at = now(),
		    locked_by = NULL, lock_expires_at = NULL
		WHERE id = $1 AND status = 'PROCESSING' AND locked_by = $2`,
		id, workerID, types.TruncateError(errMsg),
	)
	if err != nil {
		return fmt.Errorf("failed to dead-letter event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Unclaim returns a claimed event to PENDING without counting an attempt
func (p *Postgres) Unclaim(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE scheduled_events
		SET status = 'PENDING', locked_by = NULL, lock_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'PROCESSING'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to unclaim event: %w", err)
	}
	return nil
}

// CancelByID cancels a single PENDING event
func (p *Postgres) CancelByID(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE scheduled_events
		SET status = 'CANCELLED', executed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'PENDING'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel event: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Distinguish a missing row from a non-cancellable one.
	if _, err := p.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrInvalidState
}

// CancelByExternalJobID cancels all PENDING events for an external job id
func (p *Postgres) CancelByExternalJobID(ctx context.Context, externalJobID string) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE scheduled_events
		SET status = 'CANCELLED', executed_at = now(), updated_at = now()
		WHERE external_job_id = $1 AND status = 'PENDING'`,
		externalJobID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReleaseExpired returns claimed-but-expired events to PENDING. Idempotent
// and safe to run concurrently on every instance.
func (p *Postgres) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE scheduled_events
		SET status = 'PENDING', locked_by = NULL, lock_expires_at = NULL, updated_at = $1
		WHERE status = 'PROCESSING' AND lock_expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired leases: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteTerminalBatch deletes one bounded batch of terminal events older
// than cutoff. Postgres has no DELETE ... LIMIT, so the batch is selected
// by id in a subquery.
func (p *Postgres) DeleteTerminalBatch(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM scheduled_events
		WHERE id IN (
			SELECT id FROM scheduled_events
			WHERE status IN ('COMPLETED', 'DEAD_LETTER', 'CANCELLED')
			AND executed_at < $1
			LIMIT $2
		)`,
		cutoff, batchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete terminal events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByID fetches a single event
func (p *Postgres) GetByID(ctx context.Context, id string) (*types.Event, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM scheduled_events
		WHERE id = $1`,
		id,
	)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// GetByExternalJobID fetches the most recent event for an external job id
func (p *Postgres) GetByExternalJobID(ctx context.Context, externalJobID string) (*types.Event, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM scheduled_events
		WHERE external_job_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		externalJobID,
	)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event by external job id: %w", err)
	}
	return e, nil
}

// ListByExternalJobID fetches all events for an external job id
func (p *Postgres) ListByExternalJobID(ctx context.Context, externalJobID string) ([]*types.Event, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM scheduled_events
		WHERE external_job_id = $1
		ORDER BY created_at DESC`,
		externalJobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ExistsByDedupKey reports whether a row with the dedup key exists
func (p *Postgres) ExistsByDedupKey(ctx context.Context, externalJobID, source string, scheduledAt time.Time) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM scheduled_events
			WHERE external_job_id = $1 AND source = $2 AND scheduled_at = $3
		)`,
		externalJobID, source, scheduledAt,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check dedup key: %w", err)
	}
	return exists, nil
}

// Statistics aggregates event counts per status plus the upcoming-hour count
func (p *Postgres) Statistics(ctx context.Context) (*types.EventStatistics, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM scheduled_events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query statistics: %w", err)
	}
	defer rows.Close()

	stats := &types.EventStatistics{}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan statistics: %w", err)
		}
		switch types.EventStatus(status) {
		case types.StatusPending:
			stats.Pending = count
		case types.StatusProcessing:
			stats.Processing = count
		case types.StatusCompleted:
			stats.Completed = count
		case types.StatusDeadLetter:
			stats.DeadLetter = count
		case types.StatusCancelled:
			stats.Cancelled = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	upcoming, err := p.CountScheduledBetween(ctx, now, now.Add(time.Hour))
	if err != nil {
		return nil, err
	}
	stats.UpcomingHour = upcoming
	return stats, nil
}

// CountScheduledBetween counts events scheduled within [start, end)
func (p *Postgres) CountScheduledBetween(ctx context.Context, start, end time.Time) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM scheduled_events
		WHERE status = 'PENDING' AND scheduled_at >= $1 AND scheduled_at < $2`,
		start, end,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scheduled events: %w", err)
	}
	return count, nil
}

// Ping verifies store connectivity for readiness checks
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool
func (p *Postgres) Close() {
	p.pool.Close()
}

// StartPartitionMaintenance launches a daily loop that keeps the partition
// horizon ahead of wall time. Replaces the DB-trigger auto-creation used by
// trigger-based schemas; idempotent across instances.
func (p *Postgres) StartPartitionMaintenance(ctx context.Context) chan struct{} {
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := p.EnsurePartitions(ctx, p.partitionHorizon); err != nil {
					p.logger.Error().Err(err).Msg("partition maintenance failed")
				}
			case <-stopCh:
				return
			}
		}
	}()
	return stopCh
}
