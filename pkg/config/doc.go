// Package config loads dispatch configuration from a YAML file with
// environment-variable overrides for secrets and endpoints.
//
// Precedence, lowest to highest: built-in defaults, the YAML file, then
// DISPATCH_* environment variables. Validation failures are fatal at
// startup by design: a misconfigured orchestrator must not run.
package config
