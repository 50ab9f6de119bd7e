package scenario

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"

	"github.com/himanishpuri/doaeval/internal/audio"
	"github.com/himanishpuri/doaeval/internal/labels"
	"github.com/himanishpuri/doaeval/pkg/models"
)

// peakLevel is the absolute peak of every synthesized waveform.
const peakLevel = 0.99

// Options configures the moving-source synthesizer.
type Options struct {
	SampleRate int
	Hop        int     // samples between trajectory updates
	Low        float64 // trajectory start, degrees
	High       float64 // trajectory turning point, degrees
	DegPerSec  float64
	DirectMs   float64 // direct-path length kept at full level
}

// Synthesizer renders a dry mono source moving through a room.
type Synthesizer struct {
	bank   *Bank
	source []float64
	opts   Options
}

// NewSynthesizer returns a synthesizer for source, which must already be at
// opts.SampleRate.
func NewSynthesizer(bank *Bank, source []float64, opts Options) (*Synthesizer, error) {
	if len(source) == 0 {
		return nil, errors.New("empty source signal")
	}
	if opts.Hop <= 0 {
		return nil, fmt.Errorf("hop must be positive, got %d", opts.Hop)
	}
	if bank.SampleRate != 0 && bank.SampleRate != opts.SampleRate {
		return nil, fmt.Errorf("RIR bank is %d Hz, synthesizer is %d Hz", bank.SampleRate, opts.SampleRate)
	}
	return &Synthesizer{bank: bank, source: source, opts: opts}, nil
}

// LoadSource reads path and downmixes it to mono at sampleRate.
func LoadSource(path string, sampleRate int) ([]float64, error) {
	clip, err := audio.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if clip.SampleRate != sampleRate {
		return nil, fmt.Errorf("source %s is %d Hz, expected %d Hz", path, clip.SampleRate, sampleRate)
	}
	return clip.Mono(), nil
}

// segment is a run of consecutive hops rendered with the same RIR.
type segment struct {
	start, end int
	rir        *RIR
}

// Generate renders the source moving along the configured trajectory in
// sc.Room with sc.ReverbPercent of the reverberant tail. The result has the
// source's length and is peak-normalized.
func (s *Synthesizer) Generate(ctx context.Context, sc models.Scenario) (audio.Stereo, error) {
	segs, err := s.plan(sc.Room)
	if err != nil {
		return audio.Stereo{}, err
	}

	n := len(s.source)
	out := audio.Stereo{make([]float64, n), make([]float64, n)}
	gain := float64(sc.ReverbPercent) / 100

	// shaped responses are reused across segments that share a RIR
	shaped := make(map[*RIR]audio.Stereo)
	for _, seg := range segs {
		if err := ctx.Err(); err != nil {
			return audio.Stereo{}, err
		}
		ir, ok := shaped[seg.rir]
		if !ok {
			ir = ShapeReverb(seg.rir.IR, s.opts.SampleRate, s.opts.DirectMs, gain)
			shaped[seg.rir] = ir
		}
		dry := s.source[seg.start:seg.end]
		for ch := 0; ch < 2; ch++ {
			wet := convolve(dry, ir[ch])
			for i, v := range wet {
				pos := seg.start + i
				if pos >= n {
					break
				}
				out[ch][pos] += v
			}
		}
	}

	normalize(out, peakLevel)
	return out, nil
}

// plan splits the source into hops, assigns each the RIR nearest to the
// trajectory angle at the hop centre, and merges equal neighbours.
func (s *Synthesizer) plan(room int) ([]segment, error) {
	var segs []segment
	hop := s.opts.Hop
	for start := 0; start < len(s.source); start += hop {
		end := start + hop
		if end > len(s.source) {
			end = len(s.source)
		}
		t := float64(start+end) / 2 / float64(s.opts.SampleRate)
		deg := labels.Trajectory(s.opts.Low, s.opts.High, s.opts.DegPerSec, t)

		rir, err := s.bank.Nearest(room, deg)
		if err != nil {
			return nil, err
		}
		if len(segs) > 0 && segs[len(segs)-1].rir == rir {
			segs[len(segs)-1].end = end
			continue
		}
		segs = append(segs, segment{start: start, end: end, rir: rir})
	}
	return segs, nil
}

// ShapeReverb keeps the direct path (directMs after the strongest tap) and
// scales everything after it by gain.
func ShapeReverb(ir audio.Stereo, sampleRate int, directMs, gain float64) audio.Stereo {
	peak, peakAt := 0.0, 0
	for ch := 0; ch < 2; ch++ {
		for i, v := range ir[ch] {
			if math.Abs(v) > peak {
				peak, peakAt = math.Abs(v), i
			}
		}
	}
	cut := peakAt + int(directMs*float64(sampleRate)/1000)

	var out audio.Stereo
	for ch := 0; ch < 2; ch++ {
		out[ch] = make([]float64, len(ir[ch]))
		for i, v := range ir[ch] {
			if i > cut {
				v *= gain
			}
			out[ch][i] = v
		}
	}
	return out
}

// convolve returns the linear convolution of x and h via zero-padded FFTs.
func convolve(x, h []float64) []float64 {
	if len(x) == 0 || len(h) == 0 {
		return nil
	}
	n := len(x) + len(h) - 1
	size := 1
	for size < n {
		size <<= 1
	}

	xc := make([]complex128, size)
	hc := make([]complex128, size)
	for i, v := range x {
		xc[i] = complex(v, 0)
	}
	for i, v := range h {
		hc[i] = complex(v, 0)
	}

	y := fft.Convolve(xc, hc)
	out := make([]float64, n)
	for i := range out {
		out[i] = real(y[i])
	}
	return out
}

func normalize(s audio.Stereo, level float64) {
	peak := 0.0
	for ch := 0; ch < 2; ch++ {
		for _, v := range s[ch] {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
	}
	if peak == 0 {
		return
	}
	scale := level / peak
	for ch := 0; ch < 2; ch++ {
		for i := range s[ch] {
			s[ch][i] *= scale
		}
	}
}
