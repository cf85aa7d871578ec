// Package api exposes the HTTP interface for the reportsync service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/batch"
	"github.com/fleetops/reportsync/internal/store"
)

// Runner starts pipeline runs on behalf of the trigger endpoint. The cmd
// wiring adapts the pipeline plus roster loading to this shape.
type Runner interface {
	// Busy reports whether a pipeline run is currently active.
	Busy() bool
	// Run executes one full pipeline run; it returns batch.ErrRunInProgress
	// when another run won the race after the Busy check.
	Run(ctx context.Context) error
}

// Server wires HTTP handlers to the pipeline runner and run repository.
type Server struct {
	router  chi.Router
	runner  Runner
	runs    store.RunRepository
	metrics http.Handler
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The run
// repository is optional; without it the run status endpoint answers 503.
func NewServer(runner Runner, runs store.RunRepository, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		runner:  runner,
		runs:    runs,
		metrics: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.triggerRun)
			r.Get("/{run_id}", s.getRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.ServeHTTP(w, r)
}

// triggerRun starts one pipeline run in the background. The run outlives the
// request, so it gets a fresh context; 202 means started, 409 means a run is
// already active.
func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}
	if s.runner.Busy() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	go func() {
		if err := s.runner.Run(context.Background()); err != nil {
			if errors.Is(err, batch.ErrRunInProgress) {
				s.logger.Warn("triggered run lost the start race")
				return
			}
			s.logger.Error("triggered run failed", zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history not configured")
		return
	}
	runID, err := uuid.Parse(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("run lookup failed", zap.String("run_id", runID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "run lookup failed")
		return
	}
	outcomes, err := s.runs.ListEntityOutcomes(r.Context(), runID)
	if err != nil {
		s.logger.Error("outcome lookup failed", zap.String("run_id", runID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "outcome lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Run: toRunPayload(run), Entities: toOutcomePayloads(outcomes)})
}

type runResponse struct {
	Run      runPayload       `json:"run"`
	Entities []outcomePayload `json:"entities"`
}

type runPayload struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Processed  int        `json:"processed"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
}

type outcomePayload struct {
	EntityID   string    `json:"entity_id"`
	Status     string    `json:"status"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Note       string    `json:"note,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

func toRunPayload(run store.Run) runPayload {
	return runPayload{
		ID:         run.ID.String(),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Status:     string(run.Status),
		Processed:  run.Processed,
		Skipped:    run.Skipped,
		Failed:     run.Failed,
	}
}

func toOutcomePayloads(outcomes []store.EntityOutcome) []outcomePayload {
	payloads := make([]outcomePayload, 0, len(outcomes))
	for _, o := range outcomes {
		payloads = append(payloads, outcomePayload{
			EntityID:   o.EntityID,
			Status:     string(o.Status),
			Processed:  o.Processed,
			Skipped:    o.Skipped,
			Failed:     o.Failed,
			Note:       o.Note,
			FinishedAt: o.FinishedAt,
		})
	}
	return payloads
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
