package model

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/x448/float16"
)

const checkpointMagic = "DOACKPT1"

const (
	headerSize = len(checkpointMagic) + 1 + 4

	// maxTensorElems bounds a single decoded tensor (256 MiB of float32).
	maxTensorElems = 1 << 26
	maxRank        = 8
	// preallocCap bounds the slice capacity taken from the header count.
	preallocCap = 64
)

var (
	ErrCheckpointFormat = errors.New("malformed checkpoint")
	ErrCheckpointShape  = errors.New("checkpoint tensor does not match graph")
)

// Precision is the on-disk width of checkpoint values.
type Precision uint8

const (
	FP32 Precision = 32
	FP16 Precision = 16
)

// NamedTensor is one parameter as stored in a checkpoint.
type NamedTensor struct {
	Name  string
	Shape []int
	Data  []float32
}

// Size returns the number of elements implied by Shape.
func (t NamedTensor) Size() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// WriteCheckpoint encodes tensors as:
// magic | precision u8 | count u32 | {nameLen u16 | name | rank u8 | dims u32... | values}.
func WriteCheckpoint(w io.Writer, tensors []NamedTensor, p Precision) error {
	if p != FP32 && p != FP16 {
		return fmt.Errorf("unsupported precision %d", p)
	}

	bw := bufio.NewWriter(w)
	le := binary.LittleEndian

	if _, err := bw.WriteString(checkpointMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, le, uint8(p)); err != nil {
		return err
	}
	if err := binary.Write(bw, le, uint32(len(tensors))); err != nil {
		return err
	}

	for _, t := range tensors {
		if t.Size() != len(t.Data) {
			return fmt.Errorf("tensor %s: shape %v holds %d values, have %d", t.Name, t.Shape, t.Size(), len(t.Data))
		}
		if err := binary.Write(bw, le, uint16(len(t.Name))); err != nil {
			return err
		}
		if _, err := bw.WriteString(t.Name); err != nil {
			return err
		}
		if err := binary.Write(bw, le, uint8(len(t.Shape))); err != nil {
			return err
		}
		for _, d := range t.Shape {
			if err := binary.Write(bw, le, uint32(d)); err != nil {
				return err
			}
		}

		switch p {
		case FP32:
			buf := make([]uint32, len(t.Data))
			for i, v := range t.Data {
				buf[i] = math.Float32bits(v)
			}
			if err := binary.Write(bw, le, buf); err != nil {
				return err
			}
		case FP16:
			buf := make([]uint16, len(t.Data))
			for i, v := range t.Data {
				buf[i] = float16.Fromfloat32(v).Bits()
			}
			if err := binary.Write(bw, le, buf); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// elemCount multiplies dims, reporting false when the product exceeds
// maxTensorElems.
func elemCount(dims []uint32) (int, bool) {
	n := 1
	for _, d := range dims {
		if d == 0 {
			return 0, true
		}
		if uint64(d) > uint64(maxTensorElems/n) {
			return 0, false
		}
		n *= int(d)
	}
	return n, true
}

// ReadCheckpoint decodes a checkpoint written by WriteCheckpoint.
func ReadCheckpoint(r io.Reader) ([]NamedTensor, error) {
	return readCheckpoint(r, -1)
}

// readCheckpoint decodes from r. A non-negative size is the total byte
// length of the input; headers that claim more data than that are rejected
// before anything is allocated.
func readCheckpoint(r io.Reader, size int64) ([]NamedTensor, error) {
	br := bufio.NewReader(r)
	le := binary.LittleEndian

	magic := make([]byte, len(checkpointMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrCheckpointFormat, err)
	}
	if string(magic) != checkpointMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCheckpointFormat, magic)
	}

	var prec uint8
	var count uint32
	if err := binary.Read(br, le, &prec); err != nil {
		return nil, fmt.Errorf("%w: reading precision: %v", ErrCheckpointFormat, err)
	}
	if Precision(prec) != FP32 && Precision(prec) != FP16 {
		return nil, fmt.Errorf("%w: unsupported precision %d", ErrCheckpointFormat, prec)
	}
	if err := binary.Read(br, le, &count); err != nil {
		return nil, fmt.Errorf("%w: reading tensor count: %v", ErrCheckpointFormat, err)
	}

	remaining := size - int64(headerSize)
	consume := func(n int64, what string) error {
		if size < 0 {
			return nil
		}
		if n > remaining {
			return fmt.Errorf("%w: %s needs %d bytes, %d left", ErrCheckpointFormat, what, n, remaining)
		}
		remaining -= n
		return nil
	}
	elemBytes := int64(4)
	if Precision(prec) == FP16 {
		elemBytes = 2
	}

	tensors := make([]NamedTensor, 0, min(count, preallocCap))
	for i := uint32(0); i < count; i++ {
		var nameLen uint16
		if err := binary.Read(br, le, &nameLen); err != nil {
			return nil, fmt.Errorf("%w: tensor %d name: %v", ErrCheckpointFormat, i, err)
		}
		if err := consume(2+int64(nameLen)+1, fmt.Sprintf("tensor %d header", i)); err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(br, name); err != nil {
			return nil, fmt.Errorf("%w: tensor %d name: %v", ErrCheckpointFormat, i, err)
		}

		var rank uint8
		if err := binary.Read(br, le, &rank); err != nil {
			return nil, fmt.Errorf("%w: tensor %s rank: %v", ErrCheckpointFormat, name, err)
		}
		if rank > maxRank {
			return nil, fmt.Errorf("%w: tensor %s rank %d exceeds %d", ErrCheckpointFormat, name, rank, maxRank)
		}
		if err := consume(4*int64(rank), "tensor "+string(name)+" dims"); err != nil {
			return nil, err
		}
		dims := make([]uint32, rank)
		if err := binary.Read(br, le, dims); err != nil {
			return nil, fmt.Errorf("%w: tensor %s dims: %v", ErrCheckpointFormat, name, err)
		}

		n, ok := elemCount(dims)
		if !ok {
			return nil, fmt.Errorf("%w: tensor %s shape %v exceeds %d values", ErrCheckpointFormat, name, dims, maxTensorElems)
		}
		if err := consume(int64(n)*elemBytes, "tensor "+string(name)+" values"); err != nil {
			return nil, err
		}

		t := NamedTensor{Name: string(name), Shape: make([]int, rank)}
		for j, d := range dims {
			t.Shape[j] = int(d)
		}
		t.Data = make([]float32, n)

		switch Precision(prec) {
		case FP32:
			buf := make([]uint32, len(t.Data))
			if err := binary.Read(br, le, buf); err != nil {
				return nil, fmt.Errorf("%w: tensor %s values: %v", ErrCheckpointFormat, name, err)
			}
			for j, b := range buf {
				t.Data[j] = math.Float32frombits(b)
			}
		case FP16:
			buf := make([]uint16, len(t.Data))
			if err := binary.Read(br, le, buf); err != nil {
				return nil, fmt.Errorf("%w: tensor %s values: %v", ErrCheckpointFormat, name, err)
			}
			for j, b := range buf {
				t.Data[j] = float16.Frombits(b).Float32()
			}
		}
		tensors = append(tensors, t)
	}
	return tensors, nil
}

// LoadCheckpoint reads the checkpoint file at path.
func LoadCheckpoint(path string) ([]NamedTensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return readCheckpoint(f, info.Size())
}

// SaveCheckpoint writes tensors to path, replacing any existing file.
func SaveCheckpoint(path string, tensors []NamedTensor, p Precision) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCheckpoint(f, tensors, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
