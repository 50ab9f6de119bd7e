package features

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/window"
	"github.com/r9y9/gossp/stft"

	"github.com/himanishpuri/doaeval/internal/audio"
)

// NumChannels is the depth of every time-frequency cell: cosine and sine of
// the phase for each of the two microphones.
const NumChannels = 4

var ErrTooShort = errors.New("waveform shorter than one context window")

// Params holds the framing of the short-time analysis.
type Params struct {
	WinLen       int // analysis window length in samples
	WinShift     int // hop between STFT frames in samples
	NDFT         int // FFT size, a power of two
	ContextWidth int // STFT frames per feature frame
}

// Bins is the number of non-negative frequency bins.
func (p Params) Bins() int { return p.NDFT/2 + 1 }

// WindowOffset is where the win_len analysis window starts inside an nDFT frame.
func (p Params) WindowOffset() int { return (p.NDFT - p.WinLen) / 2 }

// STFTFrames is the number of full STFT frames in n samples.
func (p Params) STFTFrames(n int) int {
	if n < p.NDFT {
		return 0
	}
	return (n-p.NDFT)/p.WinShift + 1
}

// NumFrames is the number of feature frames (context windows) in n samples.
func (p Params) NumFrames(n int) int {
	f := p.STFTFrames(n) - p.ContextWidth + 1
	if f < 0 {
		return 0
	}
	return f
}

// AnalysisWindow returns a Hamming window of winLen samples centred in an
// nDFT-long frame, zeros elsewhere.
func AnalysisWindow(winLen, nDFT int) []float64 {
	w := make([]float64, nDFT)
	offset := (nDFT - winLen) / 2
	copy(w[offset:], window.Hamming(winLen))
	return w
}

// Tensor is a batch of phase-spectrogram context windows laid out as
// (Frames, Context, Bins, Channels), row-major.
type Tensor struct {
	Frames   int
	Context  int
	Bins     int
	Channels int
	Data     []float32
}

// FrameSize is the number of values in one feature frame.
func (t *Tensor) FrameSize() int {
	return t.Context * t.Bins * t.Channels
}

// Frame returns the values of feature frame k.
func (t *Tensor) Frame(k int) []float32 {
	size := t.FrameSize()
	return t.Data[k*size : (k+1)*size]
}

// PhaseMap computes the per-frame phase of one channel as (cos, sin) pairs:
// out[frame][bin] = {cos, sin}.
func PhaseMap(samples []float64, p Params) [][][2]float32 {
	s := stft.New(p.WinShift, p.NDFT)
	s.Window = AnalysisWindow(p.WinLen, p.NDFT)

	spectrum := s.STFT(samples)
	bins := p.Bins()

	out := make([][][2]float32, len(spectrum))
	for i, frame := range spectrum {
		row := make([][2]float32, bins)
		for b := 0; b < bins && b < len(frame); b++ {
			if frame[b] == 0 {
				row[b] = [2]float32{1, 0}
				continue
			}
			phi := cmplx.Phase(frame[b])
			row[b] = [2]float32{float32(math.Cos(phi)), float32(math.Sin(phi))}
		}
		out[i] = row
	}
	return out
}

// Extract converts a two-channel waveform into context-stacked phase
// spectrograms.
func Extract(s audio.Stereo, p Params) (*Tensor, error) {
	if len(s[0]) != len(s[1]) {
		return nil, fmt.Errorf("channel length mismatch: %d vs %d", len(s[0]), len(s[1]))
	}
	numFrames := p.NumFrames(s.Len())
	if numFrames <= 0 {
		return nil, fmt.Errorf("%w: %d samples, need at least %d", ErrTooShort, s.Len(), p.NDFT+(p.ContextWidth-1)*p.WinShift)
	}

	left := PhaseMap(s[0], p)
	right := PhaseMap(s[1], p)
	if len(left) != len(right) {
		return nil, fmt.Errorf("stft frame mismatch: %d vs %d", len(left), len(right))
	}
	// trust the STFT's own frame count if it differs from the closed form
	if n := len(left) - p.ContextWidth + 1; n < numFrames {
		numFrames = n
	}

	t := &Tensor{
		Frames:   numFrames,
		Context:  p.ContextWidth,
		Bins:     p.Bins(),
		Channels: NumChannels,
	}
	t.Data = make([]float32, t.Frames*t.FrameSize())

	i := 0
	for k := 0; k < numFrames; k++ {
		for c := 0; c < p.ContextWidth; c++ {
			l, r := left[k+c], right[k+c]
			for b := 0; b < t.Bins; b++ {
				t.Data[i] = l[b][0]
				t.Data[i+1] = l[b][1]
				t.Data[i+2] = r[b][0]
				t.Data[i+3] = r[b][1]
				i += NumChannels
			}
		}
	}
	return t, nil
}
