package model

import (
	"errors"
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/himanishpuri/doaeval/internal/features"
)

// Param describes one learnable tensor of the network.
type Param struct {
	Name  string
	Shape []int
	Size  int
}

// Session owns a built network and the machine that executes it. Build it
// once, Restore optionally, Run per scenario, Close at the end.
type Session struct {
	settings Settings
	net      *network
	vm       gorgonia.VM
}

// NewSession builds the graph with freshly initialized parameters.
func NewSession(s Settings) (*Session, error) {
	net, err := buildCNN(s)
	if err != nil {
		return nil, fmt.Errorf("building network: %w", err)
	}
	return &Session{settings: s, net: net}, nil
}

// Settings returns the settings the graph was built from.
func (s *Session) Settings() Settings { return s.settings }

// Params lists the learnable tensors in graph order.
func (s *Session) Params() []Param {
	out := make([]Param, 0, len(s.net.params))
	for _, n := range s.net.params {
		shape := []int(n.Shape().Clone())
		out = append(out, Param{Name: n.Name(), Shape: shape, Size: n.Shape().TotalSize()})
	}
	return out
}

// NumParams is the total number of learnable values.
func (s *Session) NumParams() int {
	total := 0
	for _, p := range s.Params() {
		total += p.Size
	}
	return total
}

// Restore replaces every parameter with the tensor of the same name in the
// checkpoint at path. Missing tensors and shape mismatches are errors.
func (s *Session) Restore(path string) error {
	tensors, err := LoadCheckpoint(path)
	if err != nil {
		return fmt.Errorf("loading checkpoint %s: %w", path, err)
	}
	return s.Assign(tensors)
}

// Assign binds the given tensors to the parameters with matching names.
func (s *Session) Assign(tensors []NamedTensor) error {
	byName := make(map[string]NamedTensor, len(tensors))
	for _, t := range tensors {
		byName[t.Name] = t
	}

	for _, n := range s.net.params {
		t, ok := byName[n.Name()]
		if !ok {
			return fmt.Errorf("%w: %s missing", ErrCheckpointShape, n.Name())
		}
		if !sameShape(n.Shape(), t.Shape) {
			return fmt.Errorf("%w: %s is %v in graph, %v in checkpoint", ErrCheckpointShape, n.Name(), n.Shape(), t.Shape)
		}
		data := append([]float32(nil), t.Data...)
		val := tensor.New(tensor.WithShape(t.Shape...), tensor.WithBacking(data))
		if err := gorgonia.Let(n, val); err != nil {
			return fmt.Errorf("binding %s: %w", n.Name(), err)
		}
	}

	// the machine captured the old values
	s.closeVM()
	return nil
}

// Snapshot copies the current parameter values.
func (s *Session) Snapshot() ([]NamedTensor, error) {
	out := make([]NamedTensor, 0, len(s.net.params))
	for _, n := range s.net.params {
		v := n.Value()
		if v == nil {
			return nil, fmt.Errorf("parameter %s has no value", n.Name())
		}
		data, ok := v.Data().([]float32)
		if !ok {
			return nil, fmt.Errorf("parameter %s is %T, want []float32", n.Name(), v.Data())
		}
		out = append(out, NamedTensor{
			Name:  n.Name(),
			Shape: []int(n.Shape().Clone()),
			Data:  append([]float32(nil), data...),
		})
	}
	return out, nil
}

// Save writes the current parameters as a checkpoint.
func (s *Session) Save(path string, p Precision) error {
	tensors, err := s.Snapshot()
	if err != nil {
		return err
	}
	return SaveCheckpoint(path, tensors, p)
}

// Run feeds every frame of t through the network in fixed-size batches and
// returns the logits as a (t.Frames x NumClasses) row-major matrix.
func (s *Session) Run(t *features.Tensor) ([]float32, error) {
	st := s.settings
	if t.Context != st.ContextWidth || t.Bins != st.Bins() || t.Channels != st.Channels {
		return nil, fmt.Errorf("feature tensor is %dx%dx%d, network expects %dx%dx%d",
			t.Context, t.Bins, t.Channels, st.ContextWidth, st.Bins(), st.Channels)
	}
	if s.vm == nil {
		s.vm = gorgonia.NewTapeMachine(s.net.g)
	}

	frameSize := t.FrameSize()
	logits := make([]float32, 0, t.Frames*st.NumClasses)

	for start := 0; start < t.Frames; start += st.BatchSize {
		end := start + st.BatchSize
		if end > t.Frames {
			end = t.Frames
		}

		// zero-padded tail rows are computed and dropped
		batch := make([]float32, st.BatchSize*frameSize)
		for k := start; k < end; k++ {
			copy(batch[(k-start)*frameSize:], t.Frame(k))
		}

		in := tensor.New(tensor.WithShape(st.BatchSize, st.ContextWidth, st.Bins(), st.Channels), tensor.WithBacking(batch))
		if err := gorgonia.Let(s.net.input, in); err != nil {
			return nil, fmt.Errorf("feeding batch at frame %d: %w", start, err)
		}
		if err := s.vm.RunAll(); err != nil {
			s.vm.Reset()
			return nil, fmt.Errorf("running batch at frame %d: %w", start, err)
		}

		out, ok := s.net.logits.Value().Data().([]float32)
		if !ok {
			s.vm.Reset()
			return nil, errors.New("logits are not float32")
		}
		logits = append(logits, out[:(end-start)*st.NumClasses]...)
		s.vm.Reset()
	}
	return logits, nil
}

// Close releases the machine. The session must not be used afterwards.
func (s *Session) Close() error {
	return s.closeVM()
}

func (s *Session) closeVM() error {
	if s.vm == nil {
		return nil
	}
	err := s.vm.Close()
	s.vm = nil
	return err
}

func sameShape(a tensor.Shape, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
