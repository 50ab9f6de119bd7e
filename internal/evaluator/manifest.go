package evaluator

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/himanishpuri/doaeval/internal/config"
)

// ManifestName is written next to the figures of every sweep.
const ManifestName = "run.yaml"

type Manifest struct {
	RunID        string          `yaml:"run_id"`
	Dataset      string          `yaml:"dataset"`
	Config       string          `yaml:"config"`
	ConfigDigest string          `yaml:"config_digest"`
	Checkpoint   string          `yaml:"checkpoint"`
	StartedAt    time.Time       `yaml:"started_at"`
	FinishedAt   time.Time       `yaml:"finished_at"`
	Scenarios    []ManifestEntry `yaml:"scenarios"`
}

type ManifestEntry struct {
	Room          int     `yaml:"room"`
	ReverbPercent int     `yaml:"reverb_percent"`
	Figure        string  `yaml:"figure"`
	Frames        int     `yaml:"frames"`
	DurationSec   float64 `yaml:"duration_sec"`
	VoicedPercent float64 `yaml:"voiced_percent"`
	MAEDegrees    float64 `yaml:"mae_degrees"`
	Accuracy      float64 `yaml:"accuracy"`
}

// WriteManifest records the run summary as YAML at path.
func WriteManifest(path string, cfg *config.Config, r *Report, finished time.Time) error {
	m := Manifest{
		RunID:        r.Run.ID,
		Dataset:      r.Run.Dataset,
		Config:       cfg.Path,
		ConfigDigest: r.Run.ConfigDigest,
		Checkpoint:   r.Run.Checkpoint,
		StartedAt:    r.Run.StartedAt,
		FinishedAt:   finished,
	}
	for _, res := range r.Results {
		m.Scenarios = append(m.Scenarios, ManifestEntry{
			Room:          res.Scenario.Room,
			ReverbPercent: res.Scenario.ReverbPercent,
			Figure:        res.FigurePath,
			Frames:        res.NumFrames,
			DurationSec:   res.DurationSec,
			VoicedPercent: res.VoicedPercent,
			MAEDegrees:    res.MAEDegrees,
			Accuracy:      res.Accuracy,
		})
	}

	out, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}
	return &m, nil
}
