package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/himanishpuri/doaeval/internal/storage"
	"github.com/himanishpuri/doaeval/pkg/logger"
	"github.com/himanishpuri/doaeval/pkg/models"
)

func setupServer(t *testing.T) (*httptest.Server, *storage.DBClient, string) {
	t.Helper()

	tmp := t.TempDir()
	db, err := storage.NewDBClientWithPath(filepath.Join(tmp, "results.sqlite3"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	figDir := filepath.Join(tmp, "figures")
	if err := os.MkdirAll(filepath.Join(figDir, "v4_voiced", "speech"), 0o755); err != nil {
		t.Fatalf("Failed to create figure dir: %v", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Output = &bytes.Buffer{}
	s := NewServer(db, &Config{FiguresDir: figDir, AllowedOrigins: []string{"*"}}, logger.New(logCfg))

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, db, figDir
}

func seedRun(t *testing.T, db *storage.DBClient, figDir string) string {
	t.Helper()
	run := models.Run{ID: "3f1c2d9e-0000-4000-8000-000000000001", Dataset: "speech", StartedAt: time.Now()}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	fig := filepath.Join(figDir, "v4_voiced", "speech", "moving_plot_reverb0_room1.png")
	if err := os.WriteFile(fig, []byte("png"), 0o644); err != nil {
		t.Fatalf("Failed to write figure: %v", err)
	}
	res := models.ScenarioResult{
		RunID:      run.ID,
		Scenario:   models.Scenario{Room: 1, ReverbPercent: 0},
		NumFrames:  120,
		MAEDegrees: 3.5,
		FigurePath: fig,
	}
	if err := db.RecordScenario(res); err != nil {
		t.Fatalf("RecordScenario failed: %v", err)
	}
	return run.ID
}

func TestHealth(t *testing.T) {
	ts, _, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected CORS header *, got %q", got)
	}
}

func TestListRunsAndResults(t *testing.T) {
	ts, db, figDir := setupServer(t)
	id := seedRun(t, db, figDir)

	resp, err := http.Get(ts.URL + "/api/runs?limit=5")
	if err != nil {
		t.Fatalf("GET /api/runs failed: %v", err)
	}
	var runs ListRunsResponse
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		t.Fatalf("Failed to decode runs: %v", err)
	}
	resp.Body.Close()
	if runs.Count != 1 || runs.Runs[0].ID != id {
		t.Fatalf("Unexpected runs %+v", runs)
	}

	resp, err = http.Get(ts.URL + "/api/runs/" + id)
	if err != nil {
		t.Fatalf("GET /api/runs/{id} failed: %v", err)
	}
	var results RunResultsResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		t.Fatalf("Failed to decode results: %v", err)
	}
	resp.Body.Close()

	if results.Count != 1 {
		t.Fatalf("Expected 1 scenario, got %d", results.Count)
	}
	sc := results.Scenarios[0]
	if sc.MAEDegrees != 3.5 || sc.NumFrames != 120 {
		t.Errorf("Unexpected scenario %+v", sc)
	}
	wantURL := "/figures/v4_voiced/speech/moving_plot_reverb0_room1.png"
	if sc.FigureURL != wantURL {
		t.Fatalf("Expected figure URL %s, got %s", wantURL, sc.FigureURL)
	}

	fig, err := http.Get(ts.URL + sc.FigureURL)
	if err != nil {
		t.Fatalf("GET figure failed: %v", err)
	}
	fig.Body.Close()
	if fig.StatusCode != http.StatusOK {
		t.Errorf("Expected figure to be served, got %d", fig.StatusCode)
	}
}

func TestRunNotFound(t *testing.T) {
	ts, _, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/api/runs/unknown")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestBadLimit(t *testing.T) {
	ts, _, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/api/runs?limit=-2")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestDeleteRun(t *testing.T) {
	ts, db, figDir := setupServer(t)
	id := seedRun(t, db, figDir)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/runs/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	runs, err := db.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("Expected no runs after delete, got %d", len(runs))
	}

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Second DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 deleting an unknown run, got %d", resp.StatusCode)
	}
}

func TestPreflight(t *testing.T) {
	ts, _, _ := setupServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/runs", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
}
