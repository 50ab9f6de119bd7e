package figure

import (
	"fmt"
	"image"
	"image/draw"
	"strings"

	"github.com/eligwz/spectrogram"
)

const (
	specWidth  = 2048
	specHeight = 512
)

// SpectrogramPath places the spectrogram next to the figure at figurePath.
func SpectrogramPath(figurePath string) string {
	return strings.TrimSuffix(figurePath, ".png") + "_spec.png"
}

// SaveSpectrogram draws a magnitude spectrogram of samples to a PNG.
func SaveSpectrogram(path string, samples []float64, sampleRate int) error {
	if len(samples) == 0 {
		return fmt.Errorf("no samples to draw")
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, specWidth, specHeight))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, linear magnitude
	spectrogram.Drawfft(img, samples, uint32(sampleRate), uint32(specHeight), false, false, true, false)

	if err := spectrogram.SavePng(img, path); err != nil {
		return fmt.Errorf("saving spectrogram %s: %w", path, err)
	}
	return nil
}
