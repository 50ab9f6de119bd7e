package model

import (
	"math"

	"github.com/himanishpuri/doaeval/internal/labels"
)

// ArgMax returns the index of the largest value in row; ties go to the lowest index.
func ArgMax(row []float32) int {
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}

// Softmax converts one row of logits into probabilities.
func Softmax(row []float32) []float64 {
	out := make([]float64, len(row))
	if len(row) == 0 {
		return out
	}
	max := float64(row[ArgMax(row)])
	sum := 0.0
	for i, v := range row {
		out[i] = math.Exp(float64(v) - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// DegreesFromLogits maps each row of a (rows x grid.Classes) logit matrix
// to the angle of its most likely class.
func DegreesFromLogits(logits []float32, grid labels.Grid) []float64 {
	if grid.Classes <= 0 {
		return nil
	}
	rows := len(logits) / grid.Classes
	out := make([]float64, rows)
	for r := 0; r < rows; r++ {
		row := logits[r*grid.Classes : (r+1)*grid.Classes]
		out[r] = grid.DegreesOf(ArgMax(row))
	}
	return out
}

// Confidence returns the softmax probability of the argmax class of each row.
func Confidence(logits []float32, classes int) []float64 {
	if classes <= 0 {
		return nil
	}
	rows := len(logits) / classes
	out := make([]float64, rows)
	for r := 0; r < rows; r++ {
		row := logits[r*classes : (r+1)*classes]
		out[r] = Softmax(row)[ArgMax(row)]
	}
	return out
}

// ClassesFromLogits returns the argmax class of each row.
func ClassesFromLogits(logits []float32, classes int) []int {
	if classes <= 0 {
		return nil
	}
	rows := len(logits) / classes
	out := make([]int, rows)
	for r := 0; r < rows; r++ {
		out[r] = ArgMax(logits[r*classes : (r+1)*classes])
	}
	return out
}
