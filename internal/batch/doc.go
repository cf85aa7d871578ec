// Package batch implements the generic sync pipeline shared by the download,
// report, and upload phases: per-entity dedup against persisted artifacts,
// candidate resolution, bounded-concurrency orchestration with a
// single-flight guard, and progress emission. Transports and per-item work
// are supplied by the caller through the interfaces in interfaces.go.
package batch
