package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fleetops/reportsync/internal/progress"
)

// PrometheusSink exports batch progress metrics. It owns all collectors for
// runs started/completed, entities in flight, and per-entity item counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runRuntime    prometheus.Histogram

	entitiesCompleted *prometheus.CounterVec
	entitiesRunning   prometheus.Gauge
	entityRuntime     *prometheus.HistogramVec

	itemsProcessed *prometheus.CounterVec

	tracker *entityTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportsync_runs_started_total",
			Help: "Total batch runs that have started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportsync_runs_completed_total",
			Help: "Total batch runs that have finished.",
		}),
		runRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reportsync_run_runtime_seconds",
			Help:    "Wall time per completed batch run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		entitiesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportsync_entities_completed_total",
			Help: "Entity syncs finished, partitioned by result.",
		}, []string{"result"}),
		entitiesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reportsync_entities_running",
			Help: "Entities currently being synced.",
		}),
		entityRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reportsync_entity_runtime_seconds",
			Help:    "Wall time per entity sync.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"result"}),
		itemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportsync_items_total",
			Help: "Candidate items partitioned by outcome.",
		}, []string{"outcome"}),
		tracker: newEntityTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runRuntime,
		s.entitiesCompleted,
		s.entitiesRunning,
		s.entityRuntime,
		s.itemsProcessed,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageRunDone:
		s.runsCompleted.Inc()
		if evt.Dur > 0 {
			s.runRuntime.Observe(evt.Dur.Seconds())
		}
	case progress.StageEntityStart:
		if s.tracker.start(evt.RunID, evt.EntityID) {
			s.entitiesRunning.Inc()
		}
	case progress.StageEntityDone:
		s.handleEntityTerminal(evt, "success")
	case progress.StageEntityError:
		s.handleEntityTerminal(evt, "error")
	}
}

func (s *PrometheusSink) handleEntityTerminal(evt progress.Event, result string) {
	s.entitiesCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.entityRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	s.itemsProcessed.WithLabelValues("processed").Add(float64(evt.Processed))
	s.itemsProcessed.WithLabelValues("skipped").Add(float64(evt.Skipped))
	s.itemsProcessed.WithLabelValues("failed").Add(float64(evt.Failed))
	if s.tracker.complete(evt.RunID, evt.EntityID) {
		s.entitiesRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type entityKey struct {
	runID    [16]byte
	entityID string
}

type entityTracker struct {
	mu      sync.Mutex
	running map[entityKey]struct{}
}

func newEntityTracker() *entityTracker {
	return &entityTracker{running: make(map[entityKey]struct{})}
}

func (t *entityTracker) start(runID [16]byte, entityID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := entityKey{runID: runID, entityID: entityID}
	if _, ok := t.running[key]; ok {
		return false
	}
	t.running[key] = struct{}{}
	return true
}

func (t *entityTracker) complete(runID [16]byte, entityID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := entityKey{runID: runID, entityID: entityID}
	if _, ok := t.running[key]; !ok {
		return false
	}
	delete(t.running, key)
	return true
}
