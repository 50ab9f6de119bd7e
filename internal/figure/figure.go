// Package figure renders the per-scenario comparison plot: both waveform
// channels and the ground-truth vs predicted direction of arrival.
package figure

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/himanishpuri/doaeval/internal/audio"
	"github.com/himanishpuri/doaeval/pkg/models"
	"github.com/himanishpuri/doaeval/pkg/utils"
)

const (
	Width  = 20 * vg.Inch
	Height = 10 * vg.Inch

	// DOA panel range in degrees.
	DOAMin = 0
	DOAMax = 140

	numTicks = 5
)

var (
	truthColor   = color.RGBA{B: 255, A: 255}
	predictColor = color.RGBA{R: 255, A: 255}
)

// Data is everything one figure shows. Truth and Predicted hold one value
// per feature frame; NaN entries are left out of the plot.
type Data struct {
	Waveform  audio.Stereo
	Truth     []float64
	Predicted []float64
	Duration  float64 // seconds
}

// Dir is the directory holding every figure of one test dataset.
func Dir(figuresDir, testingDataDir string) string {
	return filepath.Join(figuresDir, "v4_voiced", filepath.Base(filepath.Clean(testingDataDir)))
}

// FileName names the figure of one scenario.
func FileName(s models.Scenario) string {
	return fmt.Sprintf("moving_plot_reverb%d_room%d.png", s.ReverbPercent, s.Room)
}

// EnsureDir creates dir if it is missing; an existing directory is reused.
func EnsureDir(dir string) error {
	if err := utils.MakeDir(dir); err != nil {
		return fmt.Errorf("creating figure directory %s: %w", dir, err)
	}
	return nil
}

// Ticks returns marks at every floor(n/5)-th index below n, labelled with the
// corresponding time in seconds rounded to two decimals.
func Ticks(n int, duration float64) []plot.Tick {
	step := n / numTicks
	if step < 1 {
		step = 1
	}
	var ticks []plot.Tick
	for i := 0; i < n; i += step {
		sec := float64(i) * duration / float64(n)
		ticks = append(ticks, plot.Tick{
			Value: float64(i),
			Label: strconv.FormatFloat(math.Round(sec*100)/100, 'f', -1, 64),
		})
	}
	return ticks
}

// Points converts a per-frame series to plot points, dropping NaN values.
func Points(values []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i), Y: v})
	}
	return pts
}

// Render draws d and writes it to path as PNG.
func Render(path string, d Data) error {
	if len(d.Truth) != len(d.Predicted) {
		return fmt.Errorf("truth has %d frames, prediction %d", len(d.Truth), len(d.Predicted))
	}

	left, err := waveformPanel(d.Waveform[0], "X", d.Duration)
	if err != nil {
		return err
	}
	right, err := waveformPanel(d.Waveform[1], "Y", d.Duration)
	if err != nil {
		return err
	}
	doa, err := doaPanel(d.Truth, d.Predicted, d.Duration)
	if err != nil {
		return err
	}

	img := vgimg.New(Width, Height)
	dc := draw.New(img)
	plots := [][]*plot.Plot{{left}, {right}, {doa}}
	canvases := plot.Align(plots, draw.Tiles{Rows: 3, Cols: 1}, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func waveformPanel(samples []float64, label string, duration float64) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = label

	pts := make(plotter.XYs, len(samples))
	for i, v := range samples {
		pts[i] = plotter.XY{X: float64(i), Y: v}
	}
	if len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", label, err)
		}
		p.Add(line)
	}

	setRange(p, len(samples), -1, 1)
	p.X.Tick.Marker = plot.ConstantTicks(Ticks(len(samples), duration))
	return p, nil
}

func doaPanel(truth, predicted []float64, duration float64) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "DOA / degree"
	p.Add(plotter.NewGrid())

	gt, err := plotter.NewScatter(Points(truth))
	if err != nil {
		return nil, fmt.Errorf("ground truth: %w", err)
	}
	gt.GlyphStyle.Shape = draw.BoxGlyph{}
	gt.GlyphStyle.Color = truthColor
	gt.GlyphStyle.Radius = vg.Points(1.6)

	pred, err := plotter.NewScatter(Points(predicted))
	if err != nil {
		return nil, fmt.Errorf("prediction: %w", err)
	}
	pred.GlyphStyle.Shape = draw.CircleGlyph{}
	pred.GlyphStyle.Color = predictColor
	pred.GlyphStyle.Radius = vg.Points(1.2)

	p.Add(gt, pred)
	p.Legend.Add("ground truth", gt)
	p.Legend.Add("predict", pred)
	p.Legend.Top = true
	p.Legend.Left = true

	setRange(p, len(truth), DOAMin, DOAMax)
	p.X.Tick.Marker = plot.ConstantTicks(Ticks(len(truth), duration))
	return p, nil
}

// setRange fixes both axes so empty or fully masked series still draw.
func setRange(p *plot.Plot, n int, ymin, ymax float64) {
	p.X.Min = 0
	p.X.Max = math.Max(float64(n-1), 1)
	p.Y.Min = ymin
	p.Y.Max = ymax
}
