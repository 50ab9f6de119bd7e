package audio

import (
	"fmt"
	"os"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	goaudio "github.com/go-audio/audio"
	goaudiowav "github.com/go-audio/wav"
)

// Stereo is a two-channel waveform; both channels have the same length.
type Stereo [2][]float64

// Len returns the number of samples per channel.
func (s Stereo) Len() int { return len(s[0]) }

// WriteStereoWAV writes s as 16-bit PCM, overwriting path.
func WriteStereoWAV(path string, s Stereo, sampleRate int) error {
	if len(s[0]) != len(s[1]) {
		return fmt.Errorf("channel length mismatch: %d vs %d", len(s[0]), len(s[1]))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 2,
		Precision:   2,
	}
	if err := wav.Encode(f, stereoStreamer(s), format); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

func stereoStreamer(s Stereo) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= s.Len() {
			return 0, false
		}
		n := 0
		for n < len(samples) && pos < s.Len() {
			samples[n][0] = clamp(s[0][pos])
			samples[n][1] = clamp(s[1][pos])
			n++
			pos++
		}
		return n, true
	})
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// WriteWAV writes clip as 16-bit PCM with clip's channel count.
func WriteWAV(path string, clip *Clip) error {
	nch := clip.NumChannels()
	if nch == 0 {
		return fmt.Errorf("%w: clip has no channels", ErrUnsupportedFormat)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	frames := clip.Len()
	data := make([]int, frames*nch)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < nch; ch++ {
			data[i*nch+ch] = int(clamp(clip.Channels[ch][i]) * 32767)
		}
	}

	enc := goaudiowav.NewEncoder(f, clip.SampleRate, 16, nch, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: nch, SampleRate: clip.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalizing %s: %w", path, err)
	}
	return f.Close()
}
