package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/softwarestrategies/dispatch/pkg/config"
	"github.com/softwarestrategies/dispatch/pkg/log"
	"github.com/softwarestrategies/dispatch/pkg/metrics"
)

const (
	// maxIterations caps one cleanup run so a huge backlog cannot hold the
	// run open indefinitely. The remainder is picked up by the next run.
	maxIterations = 1000

	// batchPause spaces full batches out to keep delete load off the
	// claim path.
	batchPause = 100 * time.Millisecond
)

// TerminalDeleter is the store surface the cleaner needs
type TerminalDeleter interface {
	DeleteTerminalBatch(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// Cleaner deletes terminal events past the retention window on a cron
// schedule. Deletes run in bounded batches; PENDING and PROCESSING rows are
// never touched regardless of age.
type Cleaner struct {
	store         TerminalDeleter
	retentionDays int
	batchSize     int
	schedule      string
	cron          *cron.Cron
	logger        zerolog.Logger
}

// NewCleaner creates a retention cleaner from the cleanup configuration
func NewCleaner(cfg *config.Config, st TerminalDeleter) *Cleaner {
	return &Cleaner{
		store:         st,
		retentionDays: cfg.Cleanup.RetentionDays,
		batchSize:     cfg.Cleanup.BatchSize,
		schedule:      cfg.Cleanup.Cron,
		logger:        log.WithComponent("retention"),
	}
}

// Start registers the cron schedule and begins running. The schedule uses a
// six-field expression with a leading seconds field.
func (c *Cleaner) Start() error {
	c.cron = cron.New(cron.WithSeconds())
	_, err := c.cron.AddFunc(c.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		if _, err := c.Run(ctx, c.retentionDays); err != nil {
			c.logger.Error().Err(err).Msg("Scheduled cleanup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", c.schedule, err)
	}
	c.cron.Start()
	c.logger.Info().
		Str("schedule", c.schedule).
		Int("retention_days", c.retentionDays).
		Msg("Retention cleaner started")
	return nil
}

// Stop halts the schedule and waits for a running cleanup to finish
func (c *Cleaner) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
	c.logger.Info().Msg("Retention cleaner stopped")
}

// Run deletes terminal events executed more than days ago and returns the
// total deleted. Used by the cron schedule and by the admin cleanup
// endpoint with an operator-chosen window.
func (c *Cleaner) Run(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	c.logger.Info().Time("cutoff", cutoff).Msg("Cleanup started")

	var total int64
	for i := 0; i < maxIterations; i++ {
		deleted, err := c.store.DeleteTerminalBatch(ctx, cutoff, c.batchSize)
		if err != nil {
			return total, fmt.Errorf("cleanup batch failed: %w", err)
		}
		total += deleted
		metrics.EventsDeleted.Add(float64(deleted))

		if deleted < int64(c.batchSize) {
			break
		}
		select {
		case <-time.After(batchPause):
		case <-ctx.Done():
			return total, ctx.Err()
		}
	}

	c.logger.Info().Int64("deleted", total).Time("cutoff", cutoff).Msg("Cleanup finished")
	return total, nil
}
