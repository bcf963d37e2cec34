// Package log provides structured logging for dispatch built on zerolog.
//
// A single global logger is initialized once at process start via Init and
// shared by all components. Child loggers carry identifying fields:
//
//	logger := log.WithComponent("poller")
//	logger.Info().Int("claimed", n).Msg("claimed due events")
//
// Console output is the default; JSON output is used when running as a
// service so log aggregators can parse fields directly.
package log
