// Package evaluator sweeps a trained DOA network over every configured
// (room, reverberation) scenario and renders one comparison figure each.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/himanishpuri/doaeval/internal/config"
	"github.com/himanishpuri/doaeval/internal/features"
	"github.com/himanishpuri/doaeval/internal/figure"
	"github.com/himanishpuri/doaeval/internal/labels"
	"github.com/himanishpuri/doaeval/internal/model"
	"github.com/himanishpuri/doaeval/internal/vad"
	"github.com/himanishpuri/doaeval/pkg/models"
	"github.com/himanishpuri/doaeval/pkg/utils"
)

var (
	ErrNoInputFiles  = errors.New("no input files found")
	ErrFrameMismatch = errors.New("frame count mismatch")
)

// Evaluator runs the sweep. It is not safe for concurrent use.
type Evaluator struct {
	cfg   *config.Config
	gen   Generator
	model Inferencer
	opts  *Options

	params  features.Params
	framing labels.Framing
	grid    labels.Grid
}

// Report is the outcome of one sweep.
type Report struct {
	Run       models.Run
	FigureDir string
	Results   []models.ScenarioResult
}

func New(cfg *config.Config, gen Generator, inf Inferencer, opts ...Option) *Evaluator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Evaluator{
		cfg:   cfg,
		gen:   gen,
		model: inf,
		opts:  o,
		params: features.Params{
			WinLen:       cfg.WinLen,
			WinShift:     cfg.WinShift,
			NDFT:         cfg.NDFT,
			ContextWidth: cfg.ContextWindowWidth,
		},
		framing: labels.Framing{
			SampleRate:   cfg.SampleRate,
			WinShift:     cfg.WinShift,
			NDFT:         cfg.NDFT,
			ContextWidth: cfg.ContextWindowWidth,
		},
		grid: labels.Grid{
			Low:     cfg.DirectionLow(),
			High:    cfg.DirectionHigh(),
			Classes: cfg.DimDirectionLabel,
		},
	}
}

// Scenarios lists the sweep in evaluation order: rooms ascending, and for
// each room the reverberation levels ascending.
func (e *Evaluator) Scenarios() []models.Scenario {
	rooms, reverbs := e.cfg.Rooms(), e.cfg.ReverbLevels()
	out := make([]models.Scenario, 0, len(rooms)*len(reverbs))
	for _, room := range rooms {
		for _, reverb := range reverbs {
			out = append(out, models.Scenario{Room: room, ReverbPercent: reverb})
		}
	}
	return out
}

// Run evaluates every scenario in order. The first failing scenario stops
// the sweep.
func (e *Evaluator) Run(ctx context.Context) (*Report, error) {
	log := e.opts.Logger

	report := &Report{
		Run: models.Run{
			ID:           utils.GenerateUUID(),
			Dataset:      e.cfg.Dataset(),
			Checkpoint:   e.cfg.StartCheckpoint,
			ConfigDigest: e.cfg.Digest,
			StartedAt:    e.opts.Now(),
		},
		FigureDir: figure.Dir(e.cfg.FiguresDir, e.cfg.TestingDataDir),
	}

	if err := figure.EnsureDir(report.FigureDir); err != nil {
		return nil, err
	}
	if e.opts.Store != nil {
		if err := e.opts.Store.CreateRun(report.Run); err != nil {
			return nil, fmt.Errorf("recording run: %w", err)
		}
	}

	scenarios := e.Scenarios()
	log.Infof("Run %s: %d scenario(s) on %s", report.Run.ID, len(scenarios), report.Run.Dataset)

	for _, s := range scenarios {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res, err := e.Evaluate(ctx, s, report.FigureDir)
		if err != nil {
			return report, fmt.Errorf("scenario %s: %w", s, err)
		}
		res.RunID = report.Run.ID
		report.Results = append(report.Results, *res)

		if e.opts.Store != nil {
			if err := e.opts.Store.RecordScenario(*res); err != nil {
				log.Warnf("Failed to record %s: %v", s, err)
			}
		}
	}
	report.Run.Scenarios = len(report.Results)

	if err := WriteManifest(filepath.Join(report.FigureDir, ManifestName), e.cfg, report, e.opts.Now()); err != nil {
		log.Warnf("Failed to write manifest: %v", err)
	}
	if e.opts.Store != nil {
		if err := e.opts.Store.FinishRun(report.Run.ID, report.Run.Scenarios); err != nil {
			log.Warnf("Failed to finish run %s: %v", report.Run.ID, err)
		}
	}
	return report, nil
}

// Evaluate runs one scenario end to end and writes its figure into figDir.
func (e *Evaluator) Evaluate(ctx context.Context, s models.Scenario, figDir string) (*models.ScenarioResult, error) {
	log := e.opts.Logger
	start := e.opts.Now()
	rate := e.cfg.SampleRate

	log.Infof("Processing %s", s)

	wav, err := e.gen.Generate(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("generating waveform: %w", err)
	}

	mask := vad.Detect(wav, e.params, e.cfg.RMSThreshold)
	duration := float64(wav.Len()) / float64(rate)

	specs, err := features.Extract(wav, e.params)
	if err != nil {
		return nil, fmt.Errorf("extracting features: %w", err)
	}
	numFrames := specs.Frames
	log.Debugf("%d samples, %.2fs, %d frames", wav.Len(), duration, numFrames)

	truth := labels.Generate(numFrames, e.framing, e.grid, e.cfg.DegPerSec)

	logits, err := e.model.Run(specs)
	if err != nil {
		return nil, fmt.Errorf("running inference: %w", err)
	}
	predDeg := model.DegreesFromLogits(logits, e.grid)
	predClass := model.ClassesFromLogits(logits, e.grid.Classes)

	if err := e.checkAlignment(numFrames, len(mask), truth.Len(), len(predDeg), duration); err != nil {
		return nil, err
	}

	if e.cfg.PlaybackPath != "" {
		if err := e.opts.Playback(e.cfg.PlaybackPath, wav, rate); err != nil {
			return nil, fmt.Errorf("writing playback: %w", err)
		}
	}

	path := filepath.Join(figDir, figure.FileName(s))
	data := figure.Data{
		Waveform:  wav,
		Truth:     mask.Apply(truth.Degrees),
		Predicted: mask.Apply(predDeg),
		Duration:  duration,
	}
	if err := e.opts.Renderer.Render(path, data); err != nil {
		return nil, fmt.Errorf("rendering figure: %w", err)
	}

	if e.cfg.SaveSpectrograms {
		if err := e.opts.Spectrogram(figure.SpectrogramPath(path), wav[0], rate); err != nil {
			log.Warnf("Failed to save spectrogram for %s: %v", s, err)
		}
	}

	m := Score(predDeg, predClass, truth, mask)
	m.Confidence = VoicedMean(model.Confidence(logits, e.grid.Classes), mask)
	res := &models.ScenarioResult{
		Scenario:      s,
		NumSamples:    wav.Len(),
		NumFrames:     numFrames,
		DurationSec:   duration,
		VoicedFrames:  m.VoicedFrames,
		VoicedPercent: m.VoicedPercent,
		MAEDegrees:    m.MAEDegrees,
		Accuracy:      m.Accuracy,
		FigurePath:    path,
		Elapsed:       e.opts.Now().Sub(start),
	}

	log.Infof("%s: voiced %.1f%%, MAE %.2f deg, accuracy %.3f, confidence %.3f -> %s",
		s, res.VoicedPercent, res.MAEDegrees, res.Accuracy, m.Confidence, path)
	return res, nil
}

// checkAlignment verifies that features, mask, labels and predictions share
// one frame count and that the last labelled frame lies inside the waveform.
func (e *Evaluator) checkAlignment(frames, maskLen, labelLen, predLen int, duration float64) error {
	if maskLen != frames || labelLen != frames || predLen != frames {
		return fmt.Errorf("%w: features %d, mask %d, labels %d, predictions %d",
			ErrFrameMismatch, frames, maskLen, labelLen, predLen)
	}
	if frames > 0 {
		if last := e.framing.FrameTime(frames - 1); last > duration {
			return fmt.Errorf("%w: frame %d centred at %.3fs beyond %.3fs of audio",
				ErrFrameMismatch, frames-1, last, duration)
		}
	}
	return nil
}

// Elapsed sums the time spent in each scenario.
func (r *Report) Elapsed() time.Duration {
	var total time.Duration
	for _, res := range r.Results {
		total += res.Elapsed
	}
	return total
}
