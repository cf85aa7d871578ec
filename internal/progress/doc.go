// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces used to observe batch runs. Events are batched on a
// background goroutine and fanned out to pluggable sinks such as structured
// logs, Prometheus metrics, or persistent storage, so presentation never runs
// on a worker goroutine.
package progress
