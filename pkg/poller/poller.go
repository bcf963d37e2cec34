package poller

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/softwarestrategies/dispatch/pkg/config"
	"github.com/softwarestrategies/dispatch/pkg/delivery"
	"github.com/softwarestrategies/dispatch/pkg/log"
	"github.com/softwarestrategies/dispatch/pkg/metrics"
	"github.com/softwarestrategies/dispatch/pkg/types"
)

// ClaimStore is the store surface the poller needs
type ClaimStore interface {
	ClaimDue(ctx context.Context, workerID string, now, leaseUntil time.Time, limit int) ([]*types.Event, error)
	Unclaim(ctx context.Context, id string) error
}

// Deliverer executes one delivery attempt
type Deliverer interface {
	Deliver(ctx context.Context, event *types.Event) delivery.Result
}

// OutcomeApplier records the result of an attempt
type OutcomeApplier interface {
	Apply(ctx context.Context, event *types.Event, workerID string, result delivery.Result)
}

// Poller claims due events under a lease and dispatches them concurrently.
//
// Multiple instances poll the same store without coordination; the claim
// query hands each a disjoint batch. A claim failure is logged and the tick
// is skipped, the next tick retries.
type Poller struct {
	store    ClaimStore
	engine   Deliverer
	outcome  OutcomeApplier
	workerID string

	interval  time.Duration
	lease     time.Duration
	batchSize int

	logger zerolog.Logger
	stopCh chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// WorkerID builds the lease owner identity: hostname plus a random suffix,
// so two instances on one host never share an identity.
func WorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return host + "-" + hex.EncodeToString(suffix)
}

// NewPoller creates a poller from the scheduler configuration
func NewPoller(cfg *config.Config, st ClaimStore, engine Deliverer, outcome OutcomeApplier) *Poller {
	workerID := WorkerID()
	return &Poller{
		store:     st,
		engine:    engine,
		outcome:   outcome,
		workerID:  workerID,
		interval:  cfg.PollInterval(),
		lease:     cfg.LeaseDuration(),
		batchSize: cfg.Scheduler.BatchSize,
		logger:    log.WithComponent("poller").With().Str("worker_id", workerID).Logger(),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the poll loop
func (p *Poller) Start() {
	go p.run()
	p.logger.Info().
		Dur("interval", p.interval).
		Int("batch_size", p.batchSize).
		Msg("Poller started")
}

// Stop terminates the poll loop and drains in-flight deliveries
func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.done
	p.wg.Wait()
	p.logger.Info().Msg("Poller stopped")
}

func (p *Poller) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.tick()
		case <-p.stopCh:
			return
		}
	}
}

// tick claims one batch and dispatches each event on its own goroutine
func (p *Poller) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval*2)
	defer cancel()

	now := time.Now().UTC()
	events, err := p.store.ClaimDue(ctx, p.workerID, now, now.Add(p.lease), p.batchSize)
	if err != nil {
		p.logger.Error().Err(err).Msg("Claim failed, skipping tick")
		return
	}
	if len(events) == 0 {
		return
	}
	metrics.EventsClaimed.Add(float64(len(events)))
	p.logger.Debug().Int("claimed", len(events)).Msg("Claimed due events")

	for _, event := range events {
		if event.ScheduledAt.After(now) {
			// Not actually due; claim races on clock skew hand these back
			if err := p.store.Unclaim(ctx, event.ID); err != nil {
				p.logger.Error().Str("event_id", event.ID).Err(err).Msg("Failed to unclaim event")
			}
			continue
		}
		p.wg.Add(1)
		go p.dispatch(event)
	}
}

// dispatch runs one delivery attempt to completion. In-flight attempts are
// drained on Stop, not cancelled, so their outcomes still land under the
// lease.
func (p *Poller) dispatch(event *types.Event) {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), p.lease)
	defer cancel()

	result := p.engine.Deliver(ctx, event)
	p.outcome.Apply(ctx, event, p.workerID, result)
}
