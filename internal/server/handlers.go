package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/doaeval/internal/storage"
)

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "doaeval results",
		"endpoints": map[string]string{
			"health":    "GET /health",
			"runs":      "GET /api/runs?limit=N",
			"run":       "GET /api/runs/{id}",
			"deleteRun": "DELETE /api/runs/{id}",
			"figures":   "GET /figures/{path}",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleRuns handles GET /api/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Only GET is supported")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		s.log.Errorf("Failed to list runs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}

	resp := ListRunsResponse{Runs: make([]RunDTO, 0, len(runs)), Count: len(runs)}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, toRunDTO(run))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleRun handles GET and DELETE /api/runs/{id}
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetRun(w, id)
	case http.MethodDelete:
		s.handleDeleteRun(w, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Only GET and DELETE are supported")
	}
}

func (s *Server) handleGetRun(w http.ResponseWriter, id string) {
	results, err := s.store.GetScenarioResults(id)
	if err != nil {
		s.log.Errorf("Failed to get results for %s: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve results")
		return
	}
	if len(results) == 0 {
		s.respondError(w, http.StatusNotFound, "No results for run "+id)
		return
	}

	resp := RunResultsResponse{RunID: id, Scenarios: make([]ScenarioDTO, 0, len(results)), Count: len(results)}
	for _, res := range results {
		resp.Scenarios = append(resp.Scenarios, toScenarioDTO(res, s.config.FiguresDir))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, id string) {
	if err := s.store.DeleteRun(id); err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			s.respondError(w, http.StatusNotFound, "Run "+id+" not found")
			return
		}
		s.log.Errorf("Failed to delete run %s: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to delete run")
		return
	}
	s.log.Infof("Deleted run %s", id)
	s.respondJSON(w, http.StatusOK, DeleteRunResponse{Message: "Run deleted", ID: id})
}
