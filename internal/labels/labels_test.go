package labels

import (
	"math"
	"testing"
)

func TestGridRoundTrip(t *testing.T) {
	g := Grid{Low: 0, High: 180, Classes: 37}

	if g.Step() != 5 {
		t.Fatalf("Expected step 5, got %f", g.Step())
	}
	for c := 0; c < g.Classes; c++ {
		if got := g.ClassOf(g.DegreesOf(c)); got != c {
			t.Errorf("ClassOf(DegreesOf(%d)) = %d", c, got)
		}
	}
}

func TestGridClamps(t *testing.T) {
	g := Grid{Low: 0, High: 180, Classes: 37}

	if g.ClassOf(-20) != 0 {
		t.Errorf("Expected clamp to class 0, got %d", g.ClassOf(-20))
	}
	if g.ClassOf(500) != 36 {
		t.Errorf("Expected clamp to class 36, got %d", g.ClassOf(500))
	}
	if g.ClassOf(7.4) != 1 {
		t.Errorf("Expected 7.4 deg to round to class 1, got %d", g.ClassOf(7.4))
	}
}

func TestTrajectory(t *testing.T) {
	tests := []struct {
		t    float64
		want float64
	}{
		{0, 0},
		{1, 20},
		{4.5, 90},
		{9, 180},
		{10, 160},
		{18, 0},
		{19, 20},
	}

	for _, tt := range tests {
		got := Trajectory(0, 180, 20, tt.t)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Trajectory(t=%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestTrajectoryStatic(t *testing.T) {
	if got := Trajectory(30, 150, 0, 12); got != 30 {
		t.Errorf("Expected static source at 30, got %f", got)
	}
}

func TestGenerateAlignment(t *testing.T) {
	framing := Framing{SampleRate: 16000, WinShift: 128, NDFT: 256, ContextWidth: 3}
	grid := Grid{Low: 0, High: 180, Classes: 181}

	seq := Generate(500, framing, grid, 20)
	if seq.Len() != 500 || len(seq.Classes) != 500 {
		t.Fatalf("Expected 500 frames, got %d/%d", seq.Len(), len(seq.Classes))
	}

	// angles are monotonically increasing until the source reaches the far end
	for k := 1; k < seq.Len(); k++ {
		if seq.Degrees[k] < seq.Degrees[k-1] {
			t.Fatalf("Angle decreased at frame %d before reaching the range end", k)
		}
	}

	// one-degree grid: class index equals rounded angle
	for k, deg := range seq.Degrees {
		if seq.Classes[k] != int(math.Round(deg)) {
			t.Fatalf("Frame %d: class %d for %f deg", k, seq.Classes[k], deg)
		}
	}
}

func TestFrameTime(t *testing.T) {
	framing := Framing{SampleRate: 16000, WinShift: 160, NDFT: 256, ContextWidth: 5}

	// centre frame of feature frame 0 is STFT frame 2
	want := float64(2*160+128) / 16000
	if got := framing.FrameTime(0); math.Abs(got-want) > 1e-12 {
		t.Errorf("FrameTime(0) = %v, want %v", got, want)
	}
	if d := framing.FrameTime(11) - framing.FrameTime(10); math.Abs(d-0.01) > 1e-12 {
		t.Errorf("Expected 10 ms between frames, got %v", d)
	}
}
