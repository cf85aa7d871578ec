// Package sinks contains progress.Sink implementations: structured logging,
// Prometheus metrics, and repository-backed persistence.
package sinks
