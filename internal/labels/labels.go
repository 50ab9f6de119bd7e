// Package labels produces per-frame ground-truth directions for a source
// moving through the configured angular range.
package labels

import "math"

// Grid maps between angles in degrees and class indices spread evenly over
// [Low, High].
type Grid struct {
	Low     float64
	High    float64
	Classes int
}

// Step is the angular width of one class.
func (g Grid) Step() float64 {
	if g.Classes < 2 {
		return 0
	}
	return (g.High - g.Low) / float64(g.Classes-1)
}

// ClassOf returns the class nearest to deg, clamped to the grid.
func (g Grid) ClassOf(deg float64) int {
	step := g.Step()
	if step == 0 {
		return 0
	}
	c := int(math.Round((deg - g.Low) / step))
	if c < 0 {
		return 0
	}
	if c > g.Classes-1 {
		return g.Classes - 1
	}
	return c
}

// DegreesOf returns the centre angle of class c.
func (g Grid) DegreesOf(c int) float64 {
	return g.Low + float64(c)*g.Step()
}

// Trajectory returns the source angle at t seconds. The source starts at
// low and sweeps back and forth between low and high at degPerSec.
func Trajectory(low, high, degPerSec, t float64) float64 {
	span := high - low
	if span <= 0 || degPerSec == 0 || t <= 0 {
		return low
	}
	d := math.Mod(degPerSec*t, 2*span)
	if d <= span {
		return low + d
	}
	return high - (d - span)
}

// Framing describes how feature frames are laid over the waveform.
type Framing struct {
	SampleRate   int
	WinShift     int
	NDFT         int
	ContextWidth int
}

// CentreFrame is the STFT frame at the middle of feature frame k's context
// window.
func (f Framing) CentreFrame(k int) int {
	return k + (f.ContextWidth-1)/2
}

// FrameTime is the time in seconds at the centre of feature frame k.
func (f Framing) FrameTime(k int) float64 {
	centre := f.CentreFrame(k)*f.WinShift + f.NDFT/2
	return float64(centre) / float64(f.SampleRate)
}

// Sequence holds ground truth aligned frame-for-frame with the features.
type Sequence struct {
	Degrees []float64
	Classes []int
}

// Len returns the number of frames.
func (s Sequence) Len() int { return len(s.Degrees) }

// Generate computes the ground-truth angle and class for numFrames frames.
func Generate(numFrames int, framing Framing, grid Grid, degPerSec float64) Sequence {
	seq := Sequence{
		Degrees: make([]float64, numFrames),
		Classes: make([]int, numFrames),
	}
	for k := 0; k < numFrames; k++ {
		deg := Trajectory(grid.Low, grid.High, degPerSec, framing.FrameTime(k))
		seq.Degrees[k] = deg
		seq.Classes[k] = grid.ClassOf(deg)
	}
	return seq
}
