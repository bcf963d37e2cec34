package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/softwarestrategies/dispatch/pkg/config"
	"github.com/softwarestrategies/dispatch/pkg/log"
)

// Producer publishes to the ingestion topic and the DLQ, and serves as the
// outbound client for KAFKA-type deliveries.
type Producer struct {
	client         *kgo.Client
	ingestionTopic string
	dlqTopic       string
	logger         zerolog.Logger
}

// NewProducer creates a Kafka producer from the broker configuration
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return &Producer{
		client:         client,
		ingestionTopic: cfg.IngestionTopic,
		dlqTopic:       cfg.DLQTopic,
		logger:         log.WithComponent("producer"),
	}, nil
}

// SendEvent publishes a submission to the ingestion topic. The call blocks
// until the buffer acknowledges the write, so an accepted API request is
// durably buffered.
func (p *Producer) SendEvent(ctx context.Context, msg *Message) error {
	value, err := msg.Encode()
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: p.ingestionTopic,
		Key:   []byte(msg.PartitionKey()),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to ingestion topic: %w", err)
	}
	return nil
}

// SendToDLQ wraps a failed record value with the failure reason and publishes
// it to the dead-letter topic
func (p *Producer) SendToDLQ(ctx context.Context, original []byte, reason string) error {
	wrapped, err := json.Marshal(DLQMessage{
		OriginalMessage: original,
		Error:           reason,
		FailedAt:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode dlq message: %w", err)
	}
	record := &kgo.Record{
		Topic: p.dlqTopic,
		Value: wrapped,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to dlq topic: %w", err)
	}
	p.logger.Warn().Str("reason", reason).Msg("Message routed to DLQ")
	return nil
}

// Deliver publishes an event payload to an arbitrary destination topic. Used
// by the delivery engine for KAFKA-type events.
func (p *Producer) Deliver(ctx context.Context, topic, key string, payload []byte) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", topic, err)
	}
	return nil
}

// Ping checks broker connectivity for health reporting
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered records and releases the client
func (p *Producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Error().Err(err).Msg("Failed to flush producer on close")
	}
	p.client.Close()
}
