package evaluator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/doaeval/internal/config"
	"github.com/himanishpuri/doaeval/internal/model"
	"github.com/himanishpuri/doaeval/internal/scenario"
	"github.com/himanishpuri/doaeval/internal/storage"
	"github.com/himanishpuri/doaeval/pkg/utils"
)

var (
	rirExts    = []string{".wav"}
	sourceExts = []string{".wav", ".flac"}
)

// Pipeline owns everything a sweep needs: the synthesizer, the inference
// session and the results store. Close releases them.
type Pipeline struct {
	*Evaluator
	Session *model.Session
	Store   *storage.DBClient
}

// ListInputs returns the sorted input files of dir, failing with
// ErrNoInputFiles when there are none.
func ListInputs(dir string, exts ...string) ([]string, error) {
	files, err := utils.GlobExt(dir, exts...)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInputFiles, dir)
	}
	return files, nil
}

// ModelSettings derives the network settings from the run configuration.
func ModelSettings(cfg *config.Config) model.Settings {
	return model.CreateSettings(cfg.DimDirectionLabel, cfg.SampleRate, cfg.WinLen,
		cfg.WinShift, cfg.NDFT, cfg.ContextWindowWidth, cfg.InferenceBatch)
}

// OpenSession builds the network and restores cfg.StartCheckpoint when set.
// With no checkpoint the freshly initialized parameters are used.
func OpenSession(cfg *config.Config, log Logger) (*model.Session, error) {
	sess, err := model.NewSession(ModelSettings(cfg))
	if err != nil {
		return nil, err
	}
	LogParams(log, sess)

	if cfg.StartCheckpoint == "" {
		log.Warnf("No start_checkpoint configured, evaluating untrained parameters")
		return sess, nil
	}
	if err := sess.Restore(cfg.StartCheckpoint); err != nil {
		sess.Close()
		return nil, fmt.Errorf("restoring %s: %w", cfg.StartCheckpoint, err)
	}
	log.Infof("Restored parameters from %s", cfg.StartCheckpoint)
	return sess, nil
}

// LogParams prints one line per parameter tensor and the total footprint.
func LogParams(log Logger, sess *model.Session) {
	st := sess.Settings()
	log.Infof("Input %s, %d classes", shapeString([]int{st.BatchSize, st.ContextWidth, st.Bins(), st.Channels}), st.NumClasses)
	for _, p := range sess.Params() {
		log.Infof("%-18s %8d  %s", shapeString(p.Shape), p.Size, p.Name)
	}
	total := sess.NumParams()
	bytes := uint64(total) * 4
	log.Infof("Total params: %d (%.2f MB, %s)", total, float64(bytes)/1e6, humanize.IBytes(bytes))
}

func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Setup checks the inputs, loads the RIR bank and the test source, builds
// the network and opens the results store.
func Setup(ctx context.Context, cfg *config.Config, log Logger, opts ...Option) (*Pipeline, error) {
	if _, err := ListInputs(cfg.RIRDataDir, rirExts...); err != nil {
		return nil, err
	}
	sources, err := ListInputs(cfg.TestingDataDir, sourceExts...)
	if err != nil {
		return nil, err
	}

	bank, skipped, err := scenario.LoadBank(ctx, cfg.RIRDataDir, cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("loading RIR bank: %w", err)
	}
	for _, path := range skipped {
		log.Warnf("Skipping %s: not named room<r>_deg<a>.wav", path)
	}
	if bank.Len() == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInputFiles, cfg.RIRDataDir)
	}
	log.Infof("Loaded %d RIRs for rooms %v", bank.Len(), bank.Rooms())

	source, err := scenario.LoadSource(sources[0], cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("loading source: %w", err)
	}
	log.Infof("Source %s: %d samples", sources[0], len(source))

	synth, err := scenario.NewSynthesizer(bank, source, scenario.Options{
		SampleRate: cfg.SampleRate,
		Hop:        cfg.WinShift,
		Low:        cfg.DirectionLow(),
		High:       cfg.DirectionHigh(),
		DegPerSec:  cfg.DegPerSec,
		DirectMs:   cfg.DirectMs,
	})
	if err != nil {
		return nil, err
	}

	sess, err := OpenSession(cfg, log)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{Session: sess}
	all := []Option{WithLogger(log)}
	if cfg.ResultsDB != "" {
		store, err := storage.NewDBClientWithPath(cfg.ResultsDB)
		if err != nil {
			sess.Close()
			return nil, err
		}
		p.Store = store
		all = append(all, WithStore(store))
	}
	all = append(all, opts...)

	p.Evaluator = New(cfg, synth, sess, all...)
	return p, nil
}

// Close releases the session and the store.
func (p *Pipeline) Close() error {
	var errs []error
	if p.Session != nil {
		errs = append(errs, p.Session.Close())
	}
	if p.Store != nil {
		errs = append(errs, p.Store.Close())
	}
	return errors.Join(errs...)
}
