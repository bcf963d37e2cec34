package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/softwarestrategies/dispatch/pkg/log"
	"github.com/softwarestrategies/dispatch/pkg/metrics"
	"github.com/softwarestrategies/dispatch/pkg/store"
	"github.com/softwarestrategies/dispatch/pkg/types"
)

// EventInserter is the store surface the persister needs
type EventInserter interface {
	Insert(ctx context.Context, event *types.Event) error
}

// Deduper suppresses re-delivered submissions
type Deduper interface {
	Seen(ctx context.Context, messageID, externalJobID, source string, scheduledAt time.Time) (bool, error)
	Remember(messageID string)
}

// DLQSink receives messages that reached a permanent ingestion failure
type DLQSink interface {
	SendToDLQ(ctx context.Context, original []byte, reason string) error
}

// Persister moves buffered submissions into the event store.
//
// Outcomes per record: persisted, suppressed as duplicate, or dead-lettered.
// All three are terminal, so the consumer may commit the offset. A transient
// store failure is the one non-terminal outcome; it surfaces as an error and
// the record is redelivered.
type Persister struct {
	store  EventInserter
	dedup  Deduper
	dlq    DLQSink
	logger zerolog.Logger
}

// NewPersister creates a persister
func NewPersister(st EventInserter, dedup Deduper, dlq DLQSink) *Persister {
	return &Persister{
		store:  st,
		dedup:  dedup,
		dlq:    dlq,
		logger: log.WithComponent("persister"),
	}
}

// Process handles one consumed record value through to a terminal outcome
func (p *Persister) Process(ctx context.Context, value []byte) error {
	msg, err := DecodeMessage(value)
	if err != nil {
		return p.deadLetter(ctx, value, fmt.Sprintf("undecodable message: %v", err))
	}

	seen, err := p.dedup.Seen(ctx, msg.MessageID, msg.ExternalJobID, msg.Source, msg.ScheduledAt)
	if err != nil {
		return fmt.Errorf("dedup check failed for %s: %w", msg.MessageID, err)
	}
	if seen {
		p.dedup.Remember(msg.MessageID)
		metrics.DuplicatesSuppressed.Inc()
		p.logger.Debug().
			Str("message_id", msg.MessageID).
			Str("external_job_id", msg.ExternalJobID).
			Msg("Duplicate submission suppressed")
		return nil
	}

	event := msg.ToEvent()
	if err := p.store.Insert(ctx, event); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			p.dedup.Remember(msg.MessageID)
			metrics.DuplicatesSuppressed.Inc()
			return nil
		}
		if isPermanentInsertError(err) {
			return p.deadLetter(ctx, value, fmt.Sprintf("insert rejected: %v", err))
		}
		return fmt.Errorf("failed to persist %s: %w", msg.MessageID, err)
	}

	p.dedup.Remember(msg.MessageID)
	metrics.EventsPersisted.Inc()
	p.logger.Debug().
		Str("event_id", event.ID).
		Str("external_job_id", event.ExternalJobID).
		Time("scheduled_at", event.ScheduledAt).
		Msg("Event persisted")
	return nil
}

// deadLetter publishes the raw record to the DLQ. A DLQ publish failure is
// propagated so the offset is not committed and the record is redelivered.
func (p *Persister) deadLetter(ctx context.Context, value []byte, reason string) error {
	if err := p.dlq.SendToDLQ(ctx, value, reason); err != nil {
		return fmt.Errorf("failed to dead-letter message: %w", err)
	}
	metrics.DLQMessages.Inc()
	return nil
}

// isPermanentInsertError reports whether an insert failure cannot succeed on
// redelivery. Constraint violations other than the dedup key fall here;
// connectivity and timeout errors do not.
func isPermanentInsertError(err error) bool {
	return errors.Is(err, store.ErrRejected)
}
