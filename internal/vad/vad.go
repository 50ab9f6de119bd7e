// Package vad marks feature frames whose energy is high enough to carry a
// usable direction estimate.
package vad

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/himanishpuri/doaeval/internal/audio"
	"github.com/himanishpuri/doaeval/internal/features"
)

// DefaultThreshold is the frame-RMS threshold relative to the clip RMS.
const DefaultThreshold = 0.3

// Mask has one entry per feature frame; true means voiced.
type Mask []bool

// Count returns the number of voiced frames.
func (m Mask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// Fraction returns the voiced share of frames in [0, 1].
func (m Mask) Fraction() float64 {
	if len(m) == 0 {
		return 0
	}
	return float64(m.Count()) / float64(len(m))
}

// Apply returns a copy of values with unvoiced frames set to NaN.
func (m Mask) Apply(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if i < len(m) && m[i] {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// rms returns the root mean square across both channels of s[start:end].
func rms(s audio.Stereo, start, end int) float64 {
	n := end - start
	if n <= 0 {
		return 0
	}
	l := floats.Norm(s[0][start:end], 2)
	r := floats.Norm(s[1][start:end], 2)
	return math.Sqrt((l*l + r*r) / float64(2*n))
}

// Detect marks feature frame k voiced when the RMS of the analysis window of
// its centre STFT frame reaches threshold times the clip RMS. The mask is
// aligned with features.Extract for the same params.
func Detect(s audio.Stereo, p features.Params, threshold float64) Mask {
	numFrames := p.NumFrames(s.Len())
	mask := make(Mask, numFrames)
	if numFrames == 0 {
		return mask
	}

	global := rms(s, 0, s.Len())
	if global == 0 {
		return mask
	}
	limit := threshold * global

	offset := p.WindowOffset()
	centre := (p.ContextWidth - 1) / 2
	for k := 0; k < numFrames; k++ {
		start := (k+centre)*p.WinShift + offset
		end := start + p.WinLen
		if end > s.Len() {
			end = s.Len()
		}
		mask[k] = rms(s, start, end) >= limit
	}
	return mask
}
