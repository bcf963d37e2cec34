package store

import (
	"context"
	"fmt"
	"time"

	"github.com/softwarestrategies/dispatch/pkg/types"
)

// partitionWidth is the number of consecutive day-keys covered by one range
// partition.
const partitionWidth = 10

// schemaDDL creates the partitioned parent table and its indexes. Applied at
// boot; every statement is idempotent so concurrent instances can race it.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS scheduled_events (
		id              UUID         NOT NULL DEFAULT gen_random_uuid(),
		external_job_id VARCHAR(255) NOT NULL,
		source          VARCHAR(100) NOT NULL,
		scheduled_at    TIMESTAMPTZ  NOT NULL,
		delivery_type   VARCHAR(20)  NOT NULL,
		destination     VARCHAR(2048) NOT NULL,
		payload         JSONB        NOT NULL,
		status          VARCHAR(20)  NOT NULL DEFAULT 'PENDING',
		retry_count     INT          NOT NULL DEFAULT 0,
		max_retries     INT          NOT NULL DEFAULT 3,
		last_error      VARCHAR(4000),
		created_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
		executed_at     TIMESTAMPTZ,
		locked_by       VARCHAR(100),
		lock_expires_at TIMESTAMPTZ,
		partition_key   INT          NOT NULL,
		PRIMARY KEY (id, partition_key)
	) PARTITION BY RANGE (partition_key)`,

	// Powers the poll query.
	`CREATE INDEX IF NOT EXISTS idx_scheduled_events_status_scheduled_at
		ON scheduled_events (status, scheduled_at)
		WHERE status IN ('PENDING', 'PROCESSING')`,

	// Lookup by caller-supplied id.
	`CREATE INDEX IF NOT EXISTS idx_scheduled_events_external_job_id
		ON scheduled_events (external_job_id)`,

	// Powers stale-lease recovery.
	`CREATE INDEX IF NOT EXISTS idx_scheduled_events_lock_expires_at
		ON scheduled_events (lock_expires_at)
		WHERE status = 'PROCESSING'`,

	// Powers retention cleanup.
	`CREATE INDEX IF NOT EXISTS idx_scheduled_events_status_executed_at
		ON scheduled_events (status, executed_at)
		WHERE status IN ('COMPLETED', 'DEAD_LETTER', 'CANCELLED')`,

	// Dedup key. partition_key is included because the partitioning column
	// must be part of every unique constraint on a partitioned table.
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_scheduled_events_dedup
		ON scheduled_events (external_job_id, source, scheduled_at, partition_key)`,
}

// ApplySchema creates the table, indexes and the initial partition horizon.
func (p *Postgres) ApplySchema(ctx context.Context) error {
	for _, stmt := range schemaDDL {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return p.EnsurePartitions(ctx, p.partitionHorizon)
}

// EnsurePartitions pre-creates range partitions covering now through
// now+horizonDays. Each partition spans partitionWidth consecutive day-keys
// within a single year. Runs at boot and from a daily maintenance loop so
// inserts never land outside an existing partition.
func (p *Postgres) EnsurePartitions(ctx context.Context, horizonDays int) error {
	for _, start := range partitionStarts(time.Now().UTC(), horizonDays) {
		name := fmt.Sprintf("scheduled_events_p%d", start)
		stmt := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF scheduled_events
				FOR VALUES FROM (%d) TO (%d)`,
			name, start, start+partitionWidth)
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create partition %s: %w", name, err)
		}
	}
	return nil
}

// partitionStarts returns the aligned partition start keys needed to cover
// every day in [from, from+horizonDays]. Alignment is to partitionWidth
// day-of-year boundaries so partition ranges never straddle a year.
func partitionStarts(from time.Time, horizonDays int) []int {
	seen := make(map[int]bool)
	var starts []int

	for d := 0; d <= horizonDays; d++ {
		key := types.PartitionKey(from.AddDate(0, 0, d))
		year := key / 1000
		day := key % 1000
		start := year*1000 + ((day-1)/partitionWidth)*partitionWidth + 1
		if !seen[start] {
			seen[start] = true
			starts = append(starts, start)
		}
	}
	return starts
}
