package evaluator

import (
	"context"

	"github.com/himanishpuri/doaeval/internal/audio"
	"github.com/himanishpuri/doaeval/internal/features"
	"github.com/himanishpuri/doaeval/internal/figure"
	"github.com/himanishpuri/doaeval/pkg/models"
)

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Generator synthesizes the waveform of one scenario.
type Generator interface {
	Generate(ctx context.Context, s models.Scenario) (audio.Stereo, error)
}

// Inferencer returns a (frames x classes) logit matrix for a feature tensor.
type Inferencer interface {
	Run(t *features.Tensor) ([]float32, error)
}

type Renderer interface {
	Render(path string, d figure.Data) error
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(path string, d figure.Data) error

func (f RenderFunc) Render(path string, d figure.Data) error { return f(path, d) }

type ResultStore interface {
	CreateRun(run models.Run) error
	RecordScenario(r models.ScenarioResult) error
	FinishRun(runID string, scenarios int) error
}
