// Package model builds the DOA classification network, restores its
// parameters and runs it over phase-spectrogram batches.
package model

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Scope prefixes every parameter name in the graph.
const Scope = "CNN"

// Settings mirrors the model-settings document the network is built from.
type Settings struct {
	NumClasses   int // dim_direction_label
	SampleRate   int
	WinLen       int
	WinShift     int
	NDFT         int
	ContextWidth int
	Channels     int // phase channels per bin
	BatchSize    int // fixed batch dimension of the static graph
	ConvFilters  int // feature maps per convolution
	ConvLayers   int
	Hidden       int // units in the fully connected layer
}

// CreateSettings fills the derived and default fields.
func CreateSettings(numClasses, sampleRate, winLen, winShift, nDFT, contextWidth, batchSize int) Settings {
	return Settings{
		NumClasses:   numClasses,
		SampleRate:   sampleRate,
		WinLen:       winLen,
		WinShift:     winShift,
		NDFT:         nDFT,
		ContextWidth: contextWidth,
		Channels:     4,
		BatchSize:    batchSize,
		ConvFilters:  64,
		ConvLayers:   3,
		Hidden:       512,
	}
}

// Bins is the frequency resolution of the input, 129 for nDFT=256.
func (s Settings) Bins() int { return s.NDFT/2 + 1 }

// FrameSize is the number of input values per example.
func (s Settings) FrameSize() int { return s.ContextWidth * s.Bins() * s.Channels }

func (s Settings) validate() error {
	switch {
	case s.NumClasses < 2:
		return fmt.Errorf("need at least 2 classes, got %d", s.NumClasses)
	case s.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", s.BatchSize)
	case s.ContextWidth <= 0:
		return fmt.Errorf("context width must be positive, got %d", s.ContextWidth)
	case s.ConvLayers <= 0 || s.ConvFilters <= 0 || s.Hidden <= 0:
		return fmt.Errorf("layer sizes must be positive")
	case s.Bins()-s.ConvLayers < 1:
		return fmt.Errorf("%d frequency bins cannot feed %d convolutions", s.Bins(), s.ConvLayers)
	}
	return nil
}

// network holds the nodes of one built graph.
type network struct {
	g      *gorgonia.ExprGraph
	input  *gorgonia.Node
	logits *gorgonia.Node
	params gorgonia.Nodes
}

func paramName(layer, kind string) string {
	return fmt.Sprintf("%s/%s/%s", Scope, layer, kind)
}

// buildCNN constructs the static inference graph:
// input (B, C, F, 4) -> NCHW -> ConvLayers x [conv 1x2, bias, relu] -> flatten
// -> dense(Hidden) relu -> dense(NumClasses) logits.
func buildCNN(s Settings) (*network, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	g := gorgonia.NewGraph()
	input := gorgonia.NewTensor(g, tensor.Float32, 4,
		gorgonia.WithShape(s.BatchSize, s.ContextWidth, s.Bins(), s.Channels),
		gorgonia.WithName("phase_specs"))

	net := &network{g: g, input: input}

	x, err := gorgonia.Transpose(input, 0, 3, 1, 2)
	if err != nil {
		return nil, fmt.Errorf("transposing input: %w", err)
	}

	inCh, width := s.Channels, s.Bins()
	for i := 0; i < s.ConvLayers; i++ {
		layer := fmt.Sprintf("conv%d", i+1)
		w := gorgonia.NewTensor(g, tensor.Float32, 4,
			gorgonia.WithShape(s.ConvFilters, inCh, 1, 2),
			gorgonia.WithName(paramName(layer, "weights")),
			gorgonia.WithInit(gorgonia.GlorotN(1.0)))
		b := gorgonia.NewTensor(g, tensor.Float32, 4,
			gorgonia.WithShape(1, s.ConvFilters, 1, 1),
			gorgonia.WithName(paramName(layer, "biases")),
			gorgonia.WithInit(gorgonia.Zeroes()))
		net.params = append(net.params, w, b)

		if x, err = gorgonia.Conv2d(x, w, tensor.Shape{1, 2}, []int{0, 0}, []int{1, 1}, []int{1, 1}); err != nil {
			return nil, fmt.Errorf("%s: %w", layer, err)
		}
		if x, err = gorgonia.BroadcastAdd(x, b, nil, []byte{0, 2, 3}); err != nil {
			return nil, fmt.Errorf("%s bias: %w", layer, err)
		}
		if x, err = gorgonia.Rectify(x); err != nil {
			return nil, fmt.Errorf("%s relu: %w", layer, err)
		}
		inCh = s.ConvFilters
		width--
	}

	flat := s.ConvFilters * s.ContextWidth * width
	if x, err = gorgonia.Reshape(x, tensor.Shape{s.BatchSize, flat}); err != nil {
		return nil, fmt.Errorf("flatten: %w", err)
	}

	x, err = dense(net, x, "fc1", flat, s.Hidden)
	if err != nil {
		return nil, err
	}
	if x, err = gorgonia.Rectify(x); err != nil {
		return nil, fmt.Errorf("fc1 relu: %w", err)
	}

	if net.logits, err = dense(net, x, "fc2", s.Hidden, s.NumClasses); err != nil {
		return nil, err
	}
	return net, nil
}

func dense(net *network, x *gorgonia.Node, layer string, in, out int) (*gorgonia.Node, error) {
	w := gorgonia.NewMatrix(net.g, tensor.Float32,
		gorgonia.WithShape(in, out),
		gorgonia.WithName(paramName(layer, "weights")),
		gorgonia.WithInit(gorgonia.GlorotN(1.0)))
	b := gorgonia.NewMatrix(net.g, tensor.Float32,
		gorgonia.WithShape(1, out),
		gorgonia.WithName(paramName(layer, "biases")),
		gorgonia.WithInit(gorgonia.Zeroes()))
	net.params = append(net.params, w, b)

	y, err := gorgonia.Mul(x, w)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", layer, err)
	}
	if y, err = gorgonia.BroadcastAdd(y, b, nil, []byte{0}); err != nil {
		return nil, fmt.Errorf("%s bias: %w", layer, err)
	}
	return y, nil
}
