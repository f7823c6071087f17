package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/wonny/demandcast/internal/scheduler"
	"github.com/wonny/demandcast/pkg/logger"
)

// JobRegistry is the part of the scheduler the status API reads
type JobRegistry interface {
	Stats() map[string]scheduler.JobStats
	History(name string) ([]scheduler.JobResult, error)
	Trigger(name string) error
}

// JobsHandler handles scheduler job endpoints
// ⭐ SSOT: 작업 상태 API 핸들러는 여기서만
type JobsHandler struct {
	jobs   JobRegistry
	logger *logger.Logger
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(jobs JobRegistry, log *logger.Logger) *JobsHandler {
	return &JobsHandler{
		jobs:   jobs,
		logger: log,
	}
}

// List handles GET /api/jobs
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	stats := h.jobs.Stats()
	out := make([]scheduler.JobStats, 0, len(stats))
	for _, st := range stats {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobName < out[j].JobName })

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  out,
		"count": len(out),
	})
}

// History handles GET /api/jobs/{name}/history
func (h *JobsHandler) History(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	history, err := h.jobs.History(name)
	if err != nil {
		h.respondJobError(w, name, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"job":     name,
		"results": history,
	})
}

// Run handles POST /api/jobs/{name}/run
func (h *JobsHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := h.jobs.Trigger(name); err != nil {
		h.respondJobError(w, name, err)
		return
	}

	h.logger.WithField("job", name).Info("Job triggered via API")
	respondJSON(w, http.StatusAccepted, map[string]string{
		"job":    name,
		"status": "triggered",
	})
}

func (h *JobsHandler) respondJobError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		respondError(w, http.StatusNotFound, "job not found: "+name)
	case errors.Is(err, scheduler.ErrJobRunning):
		respondError(w, http.StatusConflict, "job already running: "+name)
	default:
		h.logger.WithError(err).Error("Job request failed")
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
