package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"github.com/softwarestrategies/dispatch/pkg/config"
	"github.com/softwarestrategies/dispatch/pkg/log"
	"github.com/softwarestrategies/dispatch/pkg/metrics"
)

// Consumer drains the ingestion topic into the persister.
//
// Offsets are committed only after every record in the polled batch reached a
// terminal ingestion outcome. The consumer's position advances past a polled
// batch whether or not it was committed, so a failed batch is retried in
// place with backoff rather than skipped; polling resumes only once the
// batch landed. The dedup filter and the store's unique key make the retries
// idempotent.
type Consumer struct {
	client        *kgo.Client
	persister     *Persister
	concurrency   int
	retryInterval time.Duration
	logger        zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer creates a group consumer on the ingestion topic
func NewConsumer(cfg config.KafkaConfig, persister *Persister) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.IngestionTopic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return &Consumer{
		client:        client,
		persister:     persister,
		concurrency:   cfg.ConsumerConcurrency,
		retryInterval: time.Second,
		logger:        log.WithComponent("consumer"),
		done:          make(chan struct{}),
	}, nil
}

// Start launches the poll loop
func (c *Consumer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
	c.logger.Info().Int("concurrency", c.concurrency).Msg("Consumer started")
}

// Stop terminates the poll loop, waits for in-flight records and closes the
// client, leaving the group cleanly
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
	c.client.Close()
	c.logger.Info().Msg("Consumer stopped")
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error().
				Str("topic", topic).
				Int32("partition", partition).
				Err(err).
				Msg("Fetch error")
		})
		if fetches.NumRecords() == 0 {
			continue
		}
		if err := c.persistBatch(ctx, fetches); err != nil {
			// Only shutdown breaks the retry loop; the uncommitted
			// offsets are redelivered to the next group member.
			return
		}
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			c.logger.Error().Err(err).Msg("Offset commit failed")
		}
	}
}

// persistBatch drives one polled batch to terminal outcomes, retrying with
// backoff on transient failures. It returns an error only when the context
// is cancelled while records are still outstanding.
func (c *Consumer) persistBatch(ctx context.Context, fetches kgo.Fetches) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := c.processBatch(ctx, fetches)
		if err != nil {
			c.logger.Error().Err(err).Msg("Batch persist failed, retrying in place")
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

// processBatch persists a polled batch. Partitions run in parallel up to the
// configured concurrency; records within one partition run in order so
// re-submissions of one job are observed in arrival order.
func (c *Consumer) processBatch(ctx context.Context, fetches kgo.Fetches) error {
	timer := metrics.NewTimer()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		records := p.Records
		if len(records) == 0 {
			return
		}
		g.Go(func() error {
			for _, record := range records {
				if err := c.persister.Process(gctx, record.Value); err != nil {
					return err
				}
			}
			return nil
		})
	})

	if err := g.Wait(); err != nil {
		return err
	}
	timer.ObserveDuration(metrics.IngestBatchDuration)
	c.logger.Debug().Int("records", fetches.NumRecords()).Msg("Batch persisted")
	return nil
}
