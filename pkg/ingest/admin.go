package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/softwarestrategies/dispatch/pkg/config"
	"github.com/softwarestrategies/dispatch/pkg/log"
)

// EnsureTopics creates the ingestion and DLQ topics if they do not exist.
// The ingestion topic gets the configured partition count; the DLQ carries a
// fraction of the traffic and gets half as many. Replication factor -1 leaves
// the choice to the broker default. Safe to call on every startup.
func EnsureTopics(ctx context.Context, cfg config.KafkaConfig) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Brokers...))
	if err != nil {
		return fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer client.Close()

	logger := log.WithComponent("kafka-admin")
	admin := kadm.NewClient(client)

	topics := []struct {
		name       string
		partitions int32
	}{
		{cfg.IngestionTopic, int32(cfg.IngestionPartitions)},
		{cfg.DLQTopic, dlqPartitions(int32(cfg.IngestionPartitions))},
	}
	for _, topic := range topics {
		resp, err := admin.CreateTopic(ctx, topic.partitions, -1, nil, topic.name)
		if err == nil {
			err = resp.Err
		}
		switch {
		case err == nil:
			logger.Info().
				Str("topic", topic.name).
				Int32("partitions", topic.partitions).
				Msg("Topic created")
		case errors.Is(err, kerr.TopicAlreadyExists):
			logger.Debug().Str("topic", topic.name).Msg("Topic already exists")
		default:
			return fmt.Errorf("failed to create topic %s: %w", topic.name, err)
		}
	}
	return nil
}

// dlqPartitions sizes the dead-letter topic relative to the ingestion topic,
// never below one partition
func dlqPartitions(ingestion int32) int32 {
	if ingestion <= 2 {
		return 1
	}
	return ingestion / 2
}
