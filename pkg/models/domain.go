package models

import (
	"fmt"
	"time"
)

// Scenario is one (room, reverberation) condition of the evaluation sweep.
type Scenario struct {
	Room          int // Room index, selects the RIR set
	ReverbPercent int // Scale of the reverberant tail, in percent
}

func (s Scenario) String() string {
	return fmt.Sprintf("room=%d reverb=%d%%", s.Room, s.ReverbPercent)
}

// ScenarioResult summarizes one evaluated scenario.
type ScenarioResult struct {
	RunID         string   // UUID of the sweep this scenario belongs to
	Scenario      Scenario // Evaluated condition
	NumSamples    int      // Waveform length per channel
	NumFrames     int      // Feature/label/mask frame count
	DurationSec   float64  // NumSamples / sample rate
	VoicedFrames  int      // Frames kept by the voice-activity mask
	VoicedPercent float64  // VoicedFrames / NumFrames * 100
	MAEDegrees    float64  // Mean absolute angle error over voiced frames
	Accuracy      float64  // Fraction of voiced frames with the exact class
	FigurePath    string   // Rendered three-panel figure
	Elapsed       time.Duration
}
