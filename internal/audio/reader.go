package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Clip is a decoded, de-interleaved recording with samples in [-1, 1].
type Clip struct {
	Channels   [][]float64
	SampleRate int
}

// NumChannels returns the channel count.
func (c *Clip) NumChannels() int { return len(c.Channels) }

// Len returns the number of samples per channel.
func (c *Clip) Len() int {
	if len(c.Channels) == 0 {
		return 0
	}
	return len(c.Channels[0])
}

// Mono averages all channels into one.
func (c *Clip) Mono() []float64 {
	n := c.Len()
	out := make([]float64, n)
	if len(c.Channels) == 0 {
		return out
	}
	scale := 1.0 / float64(len(c.Channels))
	for _, ch := range c.Channels {
		for i := 0; i < n; i++ {
			out[i] += ch[i] * scale
		}
	}
	return out
}

// ReadFile decodes a WAV or FLAC file, picking the decoder by extension.
func ReadFile(path string) (*Clip, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return ReadWAV(path)
	case ".flac":
		return ReadFLAC(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ReadWAV decodes an integer PCM WAV file with any channel count.
func ReadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrUnsupportedFormat, path)
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: %s uses WAV format %d, only PCM (1) is supported", ErrUnsupportedFormat, path, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	return deinterleave(buf, bitDepth)
}

func deinterleave(buf *goaudio.IntBuffer, bitDepth int) (*Clip, error) {
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: missing channel count", ErrUnsupportedFormat)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: bit depth %d", ErrUnsupportedFormat, bitDepth)
	}

	nch := buf.Format.NumChannels
	frames := len(buf.Data) / nch
	scale := 1.0 / float64(int64(1)<<(uint(bitDepth)-1))

	clip := &Clip{
		Channels:   make([][]float64, nch),
		SampleRate: buf.Format.SampleRate,
	}
	for ch := range clip.Channels {
		clip.Channels[ch] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < nch; ch++ {
			clip.Channels[ch][i] = float64(buf.Data[i*nch+ch]) * scale
		}
	}
	return clip, nil
}

// ReadFLAC decodes a FLAC stream frame by frame.
func ReadFLAC(path string) (*Clip, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer stream.Close()

	nch := int(stream.Info.NChannels)
	bitDepth := int(stream.Info.BitsPerSample)
	if nch == 0 || bitDepth == 0 {
		return nil, fmt.Errorf("%w: %s has an empty stream header", ErrUnsupportedFormat, path)
	}
	scale := 1.0 / float64(int64(1)<<(uint(bitDepth)-1))

	clip := &Clip{
		Channels:   make([][]float64, nch),
		SampleRate: int(stream.Info.SampleRate),
	}
	for {
		frame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		for ch, sub := range frame.Subframes {
			if ch >= nch {
				break
			}
			for _, s := range sub.Samples {
				clip.Channels[ch] = append(clip.Channels[ch], float64(s)*scale)
			}
		}
	}
	return clip, nil
}
