package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/softwarestrategies/dispatch/pkg/config"
	"github.com/softwarestrategies/dispatch/pkg/log"
	"github.com/softwarestrategies/dispatch/pkg/retention"
	"github.com/softwarestrategies/dispatch/pkg/store"
)

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete terminal events past the retention window and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return runCleanup(cfg)
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "retention window in days (default from config)")
}

func runCleanup(cfg *config.Config) error {
	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

	days := cleanupDays
	if days <= 0 {
		days = cfg.Cleanup.RetentionDays
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	st, err := store.Connect(ctx, store.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		PartitionHorizon: cfg.Database.PartitionHorizon,
		ConnectTimeout:   time.Duration(cfg.Database.ConnectTimeoutSec) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("store startup failed: %w", err)
	}
	defer st.Close()

	deleted, err := retention.NewCleaner(cfg, st).Run(ctx, days)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	fmt.Printf("Deleted %d events older than %d days\n", deleted, days)
	return nil
}
