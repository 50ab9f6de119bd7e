package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/himanishpuri/doaeval/pkg/models"
	"github.com/himanishpuri/doaeval/pkg/utils"
)

// Helper function to create a temporary test database
func setupTestDB(t *testing.T) (*DBClient, string) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_doaeval.sqlite3")

	t.Setenv("DOAEVAL_RESULTS_DB", dbPath)

	client, err := NewDBClient()
	if err != nil {
		t.Fatalf("Failed to create test DB client: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
	})

	return client, dbPath
}

func createTestRun(t *testing.T, client *DBClient, started time.Time) string {
	t.Helper()
	run := models.Run{
		ID:           utils.GenerateUUID(),
		Dataset:      "speech",
		Checkpoint:   "model.ckpt",
		ConfigDigest: "abc123",
		StartedAt:    started,
	}
	if err := client.CreateRun(run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}
	return run.ID
}

// TestNewDBClient tests database initialization
func TestNewDBClient(t *testing.T) {
	client, dbPath := setupTestDB(t)

	if client.DB == nil {
		t.Fatal("Expected non-nil GORM DB handle")
	}
	if client.db == nil {
		t.Fatal("Expected non-nil sql.DB handle")
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at %s", dbPath)
	}
}

// TestNewDBClientWithCustomPath tests database creation in a missing directory
func TestNewDBClientWithCustomPath(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "subdir", "custom.db")

	client, err := NewDBClientWithPath(customPath)
	if err != nil {
		t.Fatalf("Failed to create DB with custom path: %v", err)
	}
	defer client.Close()

	if _, err := os.Stat(customPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at custom path %s", customPath)
	}
}

// TestRecordScenario tests storing and reading back scenario metrics
func TestRecordScenario(t *testing.T) {
	client, _ := setupTestDB(t)
	runID := createTestRun(t, client, time.Now())

	results := []models.ScenarioResult{
		{RunID: runID, Scenario: models.Scenario{Room: 2, ReverbPercent: 0}, NumFrames: 100, MAEDegrees: 4.5},
		{RunID: runID, Scenario: models.Scenario{Room: 1, ReverbPercent: 50}, NumFrames: 90, Accuracy: 0.7},
		{RunID: runID, Scenario: models.Scenario{Room: 1, ReverbPercent: 10}, NumFrames: 80, Elapsed: 1500 * time.Millisecond},
	}
	for _, r := range results {
		if err := client.RecordScenario(r); err != nil {
			t.Fatalf("Failed to record %s: %v", r.Scenario, err)
		}
	}

	got, err := client.GetScenarioResults(runID)
	if err != nil {
		t.Fatalf("Failed to get results: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(got))
	}

	want := []models.Scenario{{Room: 1, ReverbPercent: 10}, {Room: 1, ReverbPercent: 50}, {Room: 2, ReverbPercent: 0}}
	for i, s := range want {
		if got[i].Scenario != s {
			t.Errorf("Result %d: expected %s, got %s", i, s, got[i].Scenario)
		}
	}
	if got[0].Elapsed != 1500*time.Millisecond {
		t.Errorf("Expected elapsed 1.5s, got %v", got[0].Elapsed)
	}
	if got[2].MAEDegrees != 4.5 {
		t.Errorf("Expected MAE 4.5, got %v", got[2].MAEDegrees)
	}
}

// TestRecordScenarioReplaces tests that re-recording a scenario overwrites it
func TestRecordScenarioReplaces(t *testing.T) {
	client, _ := setupTestDB(t)
	runID := createTestRun(t, client, time.Now())

	s := models.Scenario{Room: 1, ReverbPercent: 20}
	if err := client.RecordScenario(models.ScenarioResult{RunID: runID, Scenario: s, Accuracy: 0.1}); err != nil {
		t.Fatalf("First record failed: %v", err)
	}
	if err := client.RecordScenario(models.ScenarioResult{RunID: runID, Scenario: s, Accuracy: 0.9}); err != nil {
		t.Fatalf("Second record failed: %v", err)
	}

	got, err := client.GetScenarioResults(runID)
	if err != nil {
		t.Fatalf("Failed to get results: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(got))
	}
	if got[0].Accuracy != 0.9 {
		t.Errorf("Expected accuracy 0.9, got %v", got[0].Accuracy)
	}
}

// TestListRuns tests run ordering and completion
func TestListRuns(t *testing.T) {
	client, _ := setupTestDB(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	older := createTestRun(t, client, base)
	newer := createTestRun(t, client, base.Add(time.Hour))

	if err := client.FinishRun(newer, 4); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	if err := client.FinishRun("missing", 1); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound finishing unknown run, got %v", err)
	}

	runs, err := client.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != newer || runs[1].ID != older {
		t.Errorf("Expected newest run first, got %s then %s", runs[0].ID, runs[1].ID)
	}
	if runs[0].Scenarios != 4 {
		t.Errorf("Expected 4 scenarios, got %d", runs[0].Scenarios)
	}

	limited, err := client.ListRuns(1)
	if err != nil {
		t.Fatalf("ListRuns(1) failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected 1 run, got %d", len(limited))
	}
}

// TestDeleteRun tests cascading removal of a run
func TestDeleteRun(t *testing.T) {
	client, _ := setupTestDB(t)
	runID := createTestRun(t, client, time.Now())

	if err := client.RecordScenario(models.ScenarioResult{RunID: runID, Scenario: models.Scenario{Room: 1}}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := client.DeleteRun(runID); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}

	got, err := client.GetScenarioResults(runID)
	if err != nil {
		t.Fatalf("Failed to get results: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no results after delete, got %d", len(got))
	}

	if err := client.DeleteRun(runID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound deleting twice, got %v", err)
	}
}

// TestNilClient tests nil receiver handling
func TestNilClient(t *testing.T) {
	var client *DBClient
	if err := client.Close(); err != nil {
		t.Errorf("Close on nil client should succeed, got %v", err)
	}
	if err := client.CreateRun(models.Run{}); err == nil {
		t.Error("Expected error from nil client")
	}
}
