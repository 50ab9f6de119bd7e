package evaluator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/himanishpuri/doaeval/internal/audio"
	"github.com/himanishpuri/doaeval/internal/model"
	"github.com/himanishpuri/doaeval/pkg/logger"
)

func quietLogger() *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Output = &bytes.Buffer{}
	return logger.New(cfg)
}

func writeInputs(t *testing.T) (rirDir, testDir string) {
	t.Helper()
	root := t.TempDir()
	rirDir = filepath.Join(root, "rir")
	testDir = filepath.Join(root, "speech")
	for _, dir := range []string{rirDir, testDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	for i, deg := range []int{0, 140} {
		ir := [][]float64{make([]float64, 64), make([]float64, 64)}
		ir[0][4] = 0.9
		ir[1][4+2*i] = 0.8
		for k := 48; k < 64; k++ {
			ir[0][k], ir[1][k] = 0.05, 0.05
		}
		path := filepath.Join(rirDir, fmt.Sprintf("room1_deg%d.wav", deg))
		if err := audio.WriteWAV(path, &audio.Clip{Channels: ir, SampleRate: 16000}); err != nil {
			t.Fatalf("Failed to write RIR: %v", err)
		}
	}

	src := make([]float64, 3200)
	for i := range src {
		src[i] = 0.6 * math.Sin(2*math.Pi*440*float64(i)/16000)
	}
	if err := audio.WriteWAV(filepath.Join(testDir, "a.wav"), &audio.Clip{Channels: [][]float64{src}, SampleRate: 16000}); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}
	return rirDir, testDir
}

func TestListInputs(t *testing.T) {
	dir := t.TempDir()

	_, err := ListInputs(dir, ".wav")
	if !errors.Is(err, ErrNoInputFiles) {
		t.Fatalf("Expected ErrNoInputFiles, got %v", err)
	}
	if !strings.Contains(err.Error(), "no input files found in "+dir) {
		t.Errorf("Unexpected message %q", err.Error())
	}

	if _, err := ListInputs(filepath.Join(dir, "missing"), ".wav"); !errors.Is(err, ErrNoInputFiles) {
		t.Errorf("Expected ErrNoInputFiles for missing dir, got %v", err)
	}

	for _, name := range []string{"b.flac", "a.wav", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	files, err := ListInputs(dir, ".wav", ".flac")
	if err != nil {
		t.Fatalf("ListInputs failed: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.wav" {
		t.Errorf("Unexpected files %v", files)
	}
}

func TestSetupNoInputFiles(t *testing.T) {
	rirDir, testDir := writeInputs(t)

	cfg := testConfig(t)
	cfg.RIRDataDir = t.TempDir()
	cfg.TestingDataDir = testDir
	if _, err := Setup(context.Background(), cfg, quietLogger()); !errors.Is(err, ErrNoInputFiles) {
		t.Errorf("Expected ErrNoInputFiles for empty RIR dir, got %v", err)
	}

	cfg.RIRDataDir = rirDir
	cfg.TestingDataDir = t.TempDir()
	if _, err := Setup(context.Background(), cfg, quietLogger()); !errors.Is(err, ErrNoInputFiles) {
		t.Errorf("Expected ErrNoInputFiles for empty test dir, got %v", err)
	}
}

func TestOpenSessionBadCheckpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.StartCheckpoint = filepath.Join(t.TempDir(), "missing.ckpt")
	if _, err := OpenSession(cfg, quietLogger()); err == nil {
		t.Error("Expected error restoring a missing checkpoint")
	}
}

func TestOpenSessionCheckpointShape(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "model.ckpt")

	other := ModelSettings(cfg)
	other.NumClasses = cfg.DimDirectionLabel + 1
	sess, err := model.NewSession(other)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer sess.Close()
	if err := sess.Save(path, model.FP32); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	cfg.StartCheckpoint = path
	if _, err := OpenSession(cfg, quietLogger()); !errors.Is(err, model.ErrCheckpointShape) {
		t.Errorf("Expected ErrCheckpointShape, got %v", err)
	}
}

func TestSetupAndRunUntrained(t *testing.T) {
	rirDir, testDir := writeInputs(t)

	cfg := testConfig(t)
	cfg.RIRDataDir = rirDir
	cfg.TestingDataDir = testDir
	cfg.RoomIdx = []int{1}
	cfg.Reverb = []int{100, 0}
	cfg.StartCheckpoint = ""
	cfg.ResultsDB = filepath.Join(t.TempDir(), "results.sqlite3")

	p, err := Setup(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer p.Close()

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(report.Results))
	}
	for _, res := range report.Results {
		if _, err := os.Stat(res.FigurePath); err != nil {
			t.Errorf("Figure %s missing: %v", res.FigurePath, err)
		}
		if res.NumSamples != 3200 {
			t.Errorf("Expected 3200 samples, got %d", res.NumSamples)
		}
	}

	stored, err := p.Store.GetScenarioResults(report.Run.ID)
	if err != nil {
		t.Fatalf("GetScenarioResults failed: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("Expected 2 stored results, got %d", len(stored))
	}
}
