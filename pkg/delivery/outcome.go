package delivery

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/softwarestrategies/dispatch/pkg/log"
	"github.com/softwarestrategies/dispatch/pkg/metrics"
	"github.com/softwarestrategies/dispatch/pkg/store"
	"github.com/softwarestrategies/dispatch/pkg/types"
)

// OutcomeStore is the lease-predicated write surface used after an attempt
type OutcomeStore interface {
	Complete(ctx context.Context, id, workerID string) error
	FailRetriable(ctx context.Context, id, workerID, errMsg string) error
	FailTerminal(ctx context.Context, id, workerID, errMsg string) error
}

// OutcomeWriter translates a delivery Result into the matching store
// transition.
//
// All writes carry the worker id, so an outcome lands only while the lease is
// still held. ErrLeaseLost means the recovery loop reclaimed the event after
// lease expiry; the write is dropped and the reclaiming worker's attempt
// decides the event.
type OutcomeWriter struct {
	store  OutcomeStore
	logger zerolog.Logger
}

// NewOutcomeWriter creates an outcome writer
func NewOutcomeWriter(st OutcomeStore) *OutcomeWriter {
	return &OutcomeWriter{
		store:  st,
		logger: log.WithComponent("outcome"),
	}
}

// Apply records the result of one delivery attempt
func (w *OutcomeWriter) Apply(ctx context.Context, event *types.Event, workerID string, result Result) {
	var err error
	switch {
	case result.Success:
		err = w.store.Complete(ctx, event.ID, workerID)
		if err == nil {
			metrics.EventsExecuted.Inc()
			w.logger.Info().
				Str("event_id", event.ID).
				Str("external_job_id", event.ExternalJobID).
				Msg("Event delivered")
		}

	case result.Retriable && event.CanRetry():
		err = w.store.FailRetriable(ctx, event.ID, workerID, types.TruncateError(result.Err.Error()))
		if err == nil {
			metrics.EventsFailed.Inc()
			w.logger.Warn().
				Str("event_id", event.ID).
				Int("retry_count", event.RetryCount+1).
				Int("max_retries", event.MaxRetries).
				Err(result.Err).
				Msg("Delivery failed, will retry")
		}

	default:
		err = w.store.FailTerminal(ctx, event.ID, workerID, types.TruncateError(result.Err.Error()))
		if err == nil {
			metrics.EventsFailed.Inc()
			metrics.EventsDeadLettered.Inc()
			w.logger.Error().
				Str("event_id", event.ID).
				Str("external_job_id", event.ExternalJobID).
				Int("retry_count", event.RetryCount+1).
				Err(result.Err).
				Msg("Event dead-lettered")
		}
	}

	if err == nil {
		return
	}
	if errors.Is(err, store.ErrLeaseLost) {
		w.logger.Warn().
			Str("event_id", event.ID).
			Str("worker_id", workerID).
			Msg("Lease lost before outcome write, result dropped")
		return
	}
	w.logger.Error().
		Str("event_id", event.ID).
		Err(err).
		Msg("Failed to record delivery outcome")
}
