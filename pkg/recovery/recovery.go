package recovery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/softwarestrategies/dispatch/pkg/log"
	"github.com/softwarestrategies/dispatch/pkg/metrics"
)

// DefaultInterval is how often expired leases are swept.
const DefaultInterval = 60 * time.Second

// LeaseReleaser is the store surface the recovery loop needs
type LeaseReleaser interface {
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)
}

// Loop returns events whose lease expired to PENDING.
//
// A lease expires when the owning worker crashed or stalled past the lease
// TTL. Releasing makes the event claimable again; if the original worker
// later reports an outcome, the lease-predicated write rejects it.
type Loop struct {
	store    LeaseReleaser
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
	done     chan struct{}
}

// NewLoop creates a recovery loop
func NewLoop(st LeaseReleaser, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		store:    st,
		interval: interval,
		logger:   log.WithComponent("recovery"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop
func (l *Loop) Start() {
	go l.run()
	l.logger.Info().Dur("interval", l.interval).Msg("Recovery loop started")
}

// Stop terminates the sweep loop
func (l *Loop) Stop() {
	close(l.stopCh)
	<-l.done
	l.logger.Info().Msg("Recovery loop stopped")
}

func (l *Loop) run() {
	defer close(l.done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopCh:
			return
		}
	}
}

func (l *Loop) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), l.interval)
	defer cancel()

	released, err := l.store.ReleaseExpired(ctx, time.Now().UTC())
	if err != nil {
		l.logger.Error().Err(err).Msg("Lease sweep failed")
		return
	}
	if released > 0 {
		metrics.LeasesReleased.Add(float64(released))
		l.logger.Warn().Int64("released", released).Msg("Released expired leases")
	}
}
