package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch - durable scheduled event orchestrator",
	Long: `Dispatch accepts scheduled events over REST, buffers them through
Kafka, persists them in a partitioned Postgres store and delivers each one
at its scheduled time over HTTP or Kafka.

Multiple instances run against the same store without coordination; due
events are claimed under time-bounded leases.`,
	Version: Version,
}

var configPath string

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Dispatch version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")

	// Add subcommands
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(cleanupCmd)
}
