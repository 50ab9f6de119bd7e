package evaluator

import (
	"time"

	"github.com/himanishpuri/doaeval/internal/audio"
	"github.com/himanishpuri/doaeval/internal/figure"
)

type Options struct {
	Logger      Logger
	Renderer    Renderer
	Store       ResultStore
	Playback    func(path string, s audio.Stereo, sampleRate int) error
	Spectrogram func(path string, samples []float64, sampleRate int) error
	Now         func() time.Time
}

type Option func(*Options)

func WithLogger(log Logger) Option {
	return func(o *Options) {
		o.Logger = log
	}
}

func WithRenderer(r Renderer) Option {
	return func(o *Options) {
		o.Renderer = r
	}
}

func WithStore(store ResultStore) Option {
	return func(o *Options) {
		o.Store = store
	}
}

func WithPlaybackWriter(fn func(path string, s audio.Stereo, sampleRate int) error) Option {
	return func(o *Options) {
		o.Playback = fn
	}
}

func WithSpectrogramWriter(fn func(path string, samples []float64, sampleRate int) error) Option {
	return func(o *Options) {
		o.Spectrogram = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

func defaultOptions() *Options {
	return &Options{
		Logger:      nopLogger{},
		Renderer:    RenderFunc(figure.Render),
		Playback:    audio.WriteStereoWAV,
		Spectrogram: figure.SaveSpectrogram,
		Now:         time.Now,
	}
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
func (nopLogger) Debugf(string, ...any) {}
