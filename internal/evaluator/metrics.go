package evaluator

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/himanishpuri/doaeval/internal/labels"
	"github.com/himanishpuri/doaeval/internal/vad"
)

// Metrics summarizes prediction quality over the voiced frames of a scenario.
type Metrics struct {
	VoicedFrames  int
	VoicedPercent float64
	MAEDegrees    float64
	Accuracy      float64
	Confidence    float64 // mean softmax probability of the predicted class
}

// Score compares predictions with ground truth on the frames mask keeps.
// With no voiced frames the error and accuracy are zero.
func Score(predDeg []float64, predClass []int, truth labels.Sequence, mask vad.Mask) Metrics {
	var errs, hits []float64
	for k, voiced := range mask {
		if !voiced || k >= len(predDeg) || k >= truth.Len() {
			continue
		}
		errs = append(errs, math.Abs(predDeg[k]-truth.Degrees[k]))
		hit := 0.0
		if k < len(predClass) && predClass[k] == truth.Classes[k] {
			hit = 1
		}
		hits = append(hits, hit)
	}

	m := Metrics{
		VoicedFrames:  len(errs),
		VoicedPercent: mask.Fraction() * 100,
	}
	if len(errs) > 0 {
		m.MAEDegrees = stat.Mean(errs, nil)
		m.Accuracy = stat.Mean(hits, nil)
	}
	return m
}

// VoicedMean averages values over the frames mask keeps, zero when none are.
func VoicedMean(values []float64, mask vad.Mask) float64 {
	var kept []float64
	for k, voiced := range mask {
		if voiced && k < len(values) {
			kept = append(kept, values[k])
		}
	}
	if len(kept) == 0 {
		return 0
	}
	return stat.Mean(kept, nil)
}
