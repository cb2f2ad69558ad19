// Package server exposes optimization runs over HTTP. Runs execute in
// background goroutines; the API starts them, reports their state and
// cancels them.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/copyleftdev/TALUS/internal/config"
	"github.com/copyleftdev/TALUS/internal/logging"
	"github.com/copyleftdev/TALUS/internal/metrics"
	"github.com/copyleftdev/TALUS/internal/optimization"
	"github.com/copyleftdev/TALUS/internal/trace"
)

// Logger is the logging surface the server needs. Satisfied by
// *logging.Logger.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// RunState tracks one optimization run. Guarded by the server's mutex.
type RunState struct {
	ID          string
	Spec        RunSpec
	Status      string // "pending", "running", "completed", "failed", "cancelled"
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Error       string

	Result     *optimization.Result
	Loop       *optimization.Loop
	CancelFunc context.CancelFunc
}

// Server manages optimization runs behind a REST API.
type Server struct {
	cfg       *config.Config
	logger    Logger
	collector *metrics.Collector

	runs   map[string]*RunState
	runsMu sync.RWMutex
}

// NewServer creates a server. The collector is optional.
func NewServer(cfg *config.Config, logger Logger, collector *metrics.Collector) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		runs:      make(map[string]*RunState),
	}
}

// RegisterRoutes mounts the run-management API.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/objectives", s.handleObjectives)
		r.Post("/runs", s.handleStartRun)
		r.Get("/runs/{id}", s.handleRunStatus)
		r.Get("/runs/{id}/trace", s.handleRunTrace)
		r.Delete("/runs/{id}", s.handleCancelRun)
	})
}

// handleObjectives lists the benchmark objectives available for runs.
func (s *Server) handleObjectives(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Name        string    `json:"name"`
		Description string    `json:"description"`
		Lower       []float64 `json:"lower"`
		Upper       []float64 `json:"upper"`
	}
	entries := make([]entry, 0, len(builtinObjectives))
	for _, name := range ObjectiveNames() {
		obj := builtinObjectives[name]
		entries = append(entries, entry{
			Name:        obj.Name,
			Description: obj.Description,
			Lower:       obj.Lower,
			Upper:       obj.Upper,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"objectives": entries})
}

// handleStartRun validates the run spec, builds the components and launches
// the loop in a goroutine.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var spec RunSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	obj, ok := LookupObjective(spec.Objective)
	if !ok {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown objective %q", spec.Objective))
		return
	}
	if spec.Iterations <= 0 {
		spec.Iterations = s.cfg.Loop.NumIterations
	}
	if spec.Seed == 0 {
		spec.Seed = s.cfg.Loop.RandomSeed
	}

	task, err := BuildTask(obj)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	acq, err := BuildAcquisition(spec, obj.Goal)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	max, err := BuildMaximizer(spec)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := fmt.Sprintf("run_%d", time.Now().UnixNano())
	runLogger := s.logger.WithFields(map[string]interface{}{"run_id": id})

	cfg := optimization.LoopConfig{
		NumIterations:    spec.Iterations,
		NumSave:          s.cfg.Loop.NumSave,
		IterationTimeout: s.cfg.Loop.IterationTimeout,
		RandomSeed:       spec.Seed,
		Goal:             obj.Goal,
		Logger:           runLogger,
	}
	if s.collector != nil {
		cfg.Observer = s.collector.ForTask(obj.Name)
	}

	var recorder *trace.Writer
	if s.cfg.Loop.NumSave > 0 && s.cfg.Loop.SaveDir != "" {
		recorder, err = trace.NewWriter(s.cfg.Loop.SaveDir, id)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("creating trace writer: %v", err))
			return
		}
		cfg.Recorder = recorder
	}

	loop, err := optimization.NewLoop(task, BuildModel(spec, runLogger), acq, max, cfg)
	if err != nil {
		if recorder != nil {
			recorder.Close()
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	state := &RunState{
		ID:          id,
		Spec:        spec,
		Status:      "pending",
		StartTime:   now,
		LastUpdated: now,
		Loop:        loop,
		CancelFunc:  cancel,
	}

	s.runsMu.Lock()
	s.runs[id] = state
	s.runsMu.Unlock()

	go s.runLoop(ctx, state, recorder)

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id": id,
		"status": "pending",
	})
}

// runLoop executes one optimization run to completion.
func (s *Server) runLoop(ctx context.Context, state *RunState, recorder *trace.Writer) {
	if s.collector != nil {
		s.collector.RunStarted()
		defer s.collector.RunFinished()
	}
	if recorder != nil {
		defer recorder.Close()
	}

	s.runsMu.Lock()
	state.Status = "running"
	state.LastUpdated = time.Now()
	s.runsMu.Unlock()

	result, err := state.Loop.Run(ctx)

	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	// A cancelled run keeps its cancelled status.
	if state.Status == "cancelled" {
		state.Result = result
		state.LastUpdated = time.Now()
		return
	}

	if err != nil {
		s.logger.Error("run failed", map[string]interface{}{
			"run_id": state.ID,
			"error":  err.Error(),
		})
		state.Status = "failed"
		state.Error = err.Error()
	} else {
		state.Status = "completed"
	}
	// Partial results are kept even on failure.
	state.Result = result

	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now
}

// handleRunStatus reports the state of one run.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.runsMu.RLock()
	defer s.runsMu.RUnlock()

	state, exists := s.runs[id]
	if !exists {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	response := map[string]interface{}{
		"run_id":      state.ID,
		"objective":   state.Spec.Objective,
		"status":      state.Status,
		"start_time":  state.StartTime.Format(time.RFC3339),
		"last_update": state.LastUpdated.Format(time.RFC3339),
	}
	if state.EndTime != nil {
		response["end_time"] = state.EndTime.Format(time.RFC3339)
	}
	if state.Error != "" {
		response["error"] = state.Error
	}
	if state.Result != nil {
		response["iterations"] = state.Result.Iterations
		response["observations"] = state.Result.Observations.Len()
		response["incumbent"] = state.Result.Incumbent
	}

	s.respondJSON(w, http.StatusOK, response)
}

// handleRunTrace returns the persisted trace entries for a run.
func (s *Server) handleRunTrace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.runsMu.RLock()
	_, exists := s.runs[id]
	s.runsMu.RUnlock()
	if !exists {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	entries, err := trace.ReadAll(s.cfg.Loop.SaveDir, id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("no trace for run: %v", err))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  id,
		"entries": entries,
	})
}

// handleCancelRun requests cancellation of a running run. The loop stops
// at the next iteration boundary.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	state, exists := s.runs[id]
	if !exists {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	switch state.Status {
	case "completed", "failed", "cancelled":
		s.respondError(w, http.StatusConflict,
			fmt.Sprintf("cannot cancel run with status %s", state.Status))
		return
	}

	if state.CancelFunc != nil {
		state.CancelFunc()
	}
	state.Status = "cancelled"
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("run cancelled", map[string]interface{}{"run_id": id})

	s.respondJSON(w, http.StatusOK, map[string]string{
		"run_id": id,
		"status": "cancelled",
	})
}

// Close cancels all in-flight runs.
func (s *Server) Close() error {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	for _, state := range s.runs {
		if state.CancelFunc != nil {
			state.CancelFunc()
		}
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.logger.Error("request error", map[string]interface{}{
		"status":  status,
		"message": message,
	})
	s.respondJSON(w, status, map[string]string{"error": message})
}
