package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/softwarestrategies/dispatch/pkg/log"
	"github.com/softwarestrategies/dispatch/pkg/types"
)

// StatisticsSource provides aggregate event counts for gauge refresh
type StatisticsSource interface {
	Statistics(ctx context.Context) (*types.EventStatistics, error)
}

// Collector refreshes the per-status gauges from the store on an interval
type Collector struct {
	source   StatisticsSource
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
	done     chan struct{}
}

// NewCollector creates a gauge collector
func NewCollector(source StatisticsSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		logger:   log.WithComponent("metrics"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the refresh loop
func (c *Collector) Start() {
	go c.run()
}

// Stop terminates the refresh loop
func (c *Collector) Stop() {
	close(c.stopCh)
	<-c.done
}

func (c *Collector) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	stats, err := c.source.Statistics(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to collect store statistics")
		return
	}
	EventsByStatus.WithLabelValues(string(types.StatusPending)).Set(float64(stats.Pending))
	EventsByStatus.WithLabelValues(string(types.StatusProcessing)).Set(float64(stats.Processing))
	EventsByStatus.WithLabelValues(string(types.StatusCompleted)).Set(float64(stats.Completed))
	EventsByStatus.WithLabelValues(string(types.StatusDeadLetter)).Set(float64(stats.DeadLetter))
	EventsByStatus.WithLabelValues(string(types.StatusCancelled)).Set(float64(stats.Cancelled))
}
