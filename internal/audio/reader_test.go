package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func sine(n int, freq, rate, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return out
}

func TestWriteStereoWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moving.wav")
	s := Stereo{sine(1600, 440, 16000, 0.5), sine(1600, 220, 16000, -0.25)}

	if err := WriteStereoWAV(path, s, 16000); err != nil {
		t.Fatalf("WriteStereoWAV failed: %v", err)
	}

	clip, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if clip.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", clip.SampleRate)
	}
	if clip.NumChannels() != 2 {
		t.Fatalf("Expected 2 channels, got %d", clip.NumChannels())
	}
	if clip.Len() != s.Len() {
		t.Fatalf("Expected %d samples, got %d", s.Len(), clip.Len())
	}

	// 16-bit quantization error is well below 1e-3
	for ch := 0; ch < 2; ch++ {
		for i := 0; i < clip.Len(); i += 97 {
			if d := math.Abs(clip.Channels[ch][i] - s[ch][i]); d > 1e-3 {
				t.Fatalf("Channel %d sample %d differs by %f", ch, i, d)
			}
		}
	}
}

func TestWriteStereoWAVOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moving.wav")

	if err := WriteStereoWAV(path, Stereo{make([]float64, 3200), make([]float64, 3200)}, 16000); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteStereoWAV(path, Stereo{make([]float64, 800), make([]float64, 800)}, 16000); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	clip, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if clip.Len() != 800 {
		t.Errorf("Expected overwritten file with 800 samples, got %d", clip.Len())
	}
}

func TestWriteStereoWAVMismatchedChannels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := WriteStereoWAV(path, Stereo{make([]float64, 10), make([]float64, 9)}, 16000); err == nil {
		t.Error("Expected error for mismatched channel lengths")
	}
}

func TestWriteWAVMono(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.wav")
	in := &Clip{Channels: [][]float64{sine(500, 100, 8000, 0.8)}, SampleRate: 8000}

	if err := WriteWAV(path, in); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}
	out, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if out.NumChannels() != 1 || out.Len() != 500 || out.SampleRate != 8000 {
		t.Errorf("Unexpected clip: %d ch, %d samples, %d Hz", out.NumChannels(), out.Len(), out.SampleRate)
	}
}

func TestClipMono(t *testing.T) {
	clip := &Clip{Channels: [][]float64{{1, 0.5}, {0, -0.5}}}
	mono := clip.Mono()
	if mono[0] != 0.5 || mono[1] != 0 {
		t.Errorf("Unexpected downmix: %v", mono)
	}
}

func TestReadWAVInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.wav")
	if err := os.WriteFile(path, []byte("INVALID HEADER DATA"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := ReadWAV(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestReadFileUnknownExtension(t *testing.T) {
	if _, err := ReadFile("clip.mp3"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestReadFLAC(t *testing.T) {
	testFile := filepath.Join("..", "..", "test", "testdata", "source.flac")
	if _, err := os.Stat(testFile); os.IsNotExist(err) {
		t.Skipf("Test file not found: %s", testFile)
	}

	clip, err := ReadFile(testFile)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if clip.Len() == 0 {
		t.Error("Expected samples from FLAC file")
	}
	for _, ch := range clip.Channels {
		for i, v := range ch {
			if v < -1 || v > 1 {
				t.Fatalf("Sample %d out of range: %f", i, v)
			}
		}
	}
}
