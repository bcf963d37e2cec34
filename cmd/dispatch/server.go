package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/softwarestrategies/dispatch/pkg/api"
	"github.com/softwarestrategies/dispatch/pkg/config"
	"github.com/softwarestrategies/dispatch/pkg/dedup"
	"github.com/softwarestrategies/dispatch/pkg/delivery"
	"github.com/softwarestrategies/dispatch/pkg/ingest"
	"github.com/softwarestrategies/dispatch/pkg/log"
	"github.com/softwarestrategies/dispatch/pkg/metrics"
	"github.com/softwarestrategies/dispatch/pkg/poller"
	"github.com/softwarestrategies/dispatch/pkg/recovery"
	"github.com/softwarestrategies/dispatch/pkg/retention"
	"github.com/softwarestrategies/dispatch/pkg/store"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the dispatch service",
	Long: `Run the full dispatch service: REST API, ingestion consumer,
scheduler poller, lease recovery and retention cleanup in one process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return runServer(cfg)
	},
}

func runServer(cfg *config.Config) error {
	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	logger := log.WithComponent("server")
	logger.Info().Str("version", Version).Msg("Starting dispatch")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	connectCtx, connectCancel := context.WithTimeout(ctx,
		time.Duration(cfg.Database.ConnectTimeoutSec)*time.Second)
	st, err := store.Connect(connectCtx, store.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		PartitionHorizon: cfg.Database.PartitionHorizon,
		ConnectTimeout:   time.Duration(cfg.Database.ConnectTimeoutSec) * time.Second,
	})
	connectCancel()
	if err != nil {
		return fmt.Errorf("store startup failed: %w", err)
	}
	defer st.Close()

	if err := st.ApplySchema(ctx); err != nil {
		return fmt.Errorf("schema setup failed: %w", err)
	}
	partitionStop := st.StartPartitionMaintenance(ctx)

	// Ingestion
	if err := ingest.EnsureTopics(ctx, cfg.Kafka); err != nil {
		return fmt.Errorf("topic setup failed: %w", err)
	}
	producer, err := ingest.NewProducer(cfg.Kafka)
	if err != nil {
		return fmt.Errorf("producer startup failed: %w", err)
	}
	defer producer.Close()

	filter, err := dedup.NewFilter(cfg.Dedup.LRUSize, st)
	if err != nil {
		return fmt.Errorf("dedup startup failed: %w", err)
	}

	persister := ingest.NewPersister(st, filter, producer)
	consumer, err := ingest.NewConsumer(cfg.Kafka, persister)
	if err != nil {
		return fmt.Errorf("consumer startup failed: %w", err)
	}

	// Scheduling and delivery
	engine := delivery.NewEngine(cfg, producer)
	outcome := delivery.NewOutcomeWriter(st)
	poll := poller.NewPoller(cfg, st, engine, outcome)
	sweeper := recovery.NewLoop(st, recovery.DefaultInterval)
	cleaner := retention.NewCleaner(cfg, st)
	collector := metrics.NewCollector(st, 30*time.Second)

	// API
	health := metrics.NewHealthChecker()
	health.Register("store", st.Ping)
	health.Register("kafka", producer.Ping)
	server := api.NewServer(cfg, producer, st, cleaner, health)

	consumer.Start()
	poll.Start()
	sweeper.Start()
	collector.Start()
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("retention startup failed: %w", err)
	}
	server.Start()
	logger.Info().Msg("Dispatch started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	// Stop intake first, then drain workers, then the maintenance loops
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API shutdown error")
	}
	consumer.Stop()
	poll.Stop()
	sweeper.Stop()
	collector.Stop()
	cleaner.Stop()
	close(partitionStop)

	logger.Info().Msg("Dispatch stopped")
	return nil
}
