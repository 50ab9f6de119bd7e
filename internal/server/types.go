package server

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/doaeval/pkg/models"
)

// RunDTO represents a sweep in API responses
type RunDTO struct {
	ID           string    `json:"id"`
	Dataset      string    `json:"dataset"`
	Checkpoint   string    `json:"checkpoint,omitempty"`
	ConfigDigest string    `json:"config_digest"`
	Scenarios    int       `json:"scenarios"`
	StartedAt    time.Time `json:"started_at"`
	Age          string    `json:"age"`
}

// ScenarioDTO represents one evaluated scenario
type ScenarioDTO struct {
	Room          int     `json:"room"`
	ReverbPercent int     `json:"reverb_percent"`
	NumFrames     int     `json:"num_frames"`
	DurationSec   float64 `json:"duration_sec"`
	VoicedPercent float64 `json:"voiced_percent"`
	MAEDegrees    float64 `json:"mae_degrees"`
	Accuracy      float64 `json:"accuracy"`
	FigurePath    string  `json:"figure_path"`
	FigureURL     string  `json:"figure_url,omitempty"`
	ElapsedMs     int64   `json:"elapsed_ms"`
}

// ListRunsResponse is the response for GET /api/runs
type ListRunsResponse struct {
	Runs  []RunDTO `json:"runs"`
	Count int      `json:"count"`
}

// RunResultsResponse is the response for GET /api/runs/{id}
type RunResultsResponse struct {
	RunID     string        `json:"run_id"`
	Scenarios []ScenarioDTO `json:"scenarios"`
	Count     int           `json:"count"`
}

// DeleteRunResponse is the response for DELETE /api/runs/{id}
type DeleteRunResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

func toRunDTO(r models.Run) RunDTO {
	return RunDTO{
		ID:           r.ID,
		Dataset:      r.Dataset,
		Checkpoint:   r.Checkpoint,
		ConfigDigest: r.ConfigDigest,
		Scenarios:    r.Scenarios,
		StartedAt:    r.StartedAt,
		Age:          humanize.Time(r.StartedAt),
	}
}

// toScenarioDTO links the figure under /figures/ when it lives inside figuresDir.
func toScenarioDTO(r models.ScenarioResult, figuresDir string) ScenarioDTO {
	dto := ScenarioDTO{
		Room:          r.Scenario.Room,
		ReverbPercent: r.Scenario.ReverbPercent,
		NumFrames:     r.NumFrames,
		DurationSec:   r.DurationSec,
		VoicedPercent: r.VoicedPercent,
		MAEDegrees:    r.MAEDegrees,
		Accuracy:      r.Accuracy,
		FigurePath:    r.FigurePath,
		ElapsedMs:     r.Elapsed.Milliseconds(),
	}
	if figuresDir != "" && r.FigurePath != "" {
		rel, err := filepath.Rel(figuresDir, r.FigurePath)
		if err == nil && !strings.HasPrefix(rel, "..") {
			dto.FigureURL = "/figures/" + filepath.ToSlash(rel)
		}
	}
	return dto
}
