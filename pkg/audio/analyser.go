package audio

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
)

const (
	// DefaultFFTSize matches the analyser window used for the level meters.
	DefaultFFTSize = 256

	minDecibels = -100.0
	maxDecibels = -30.0
)

// Analyser is a spectrum tap. Audio is pushed into a rolling window from the
// audio thread and read back as byte-scaled frequency magnitudes from the
// metering loop.
type Analyser struct {
	mu        sync.Mutex
	window    []float64
	pos       int
	smoothing float64
	smoothed  []float64
	hann      []float64
}

// NewAnalyser creates a tap holding the last fftSize samples. smoothing is the
// per-read blend with the previous spectrum, 0 disables it.
func NewAnalyser(fftSize int, smoothing float64) *Analyser {
	if fftSize <= 0 {
		fftSize = DefaultFFTSize
	}
	hann := make([]float64, fftSize)
	for i := range hann {
		hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize)))
	}
	return &Analyser{
		window:    make([]float64, fftSize),
		smoothing: smoothing,
		smoothed:  make([]float64, fftSize/2),
		hann:      hann,
	}
}

// Bins returns the number of frequency bins produced per read.
func (a *Analyser) Bins() int {
	return len(a.smoothed)
}

// Write appends samples to the rolling window.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.window[a.pos] = float64(s)
		a.pos = (a.pos + 1) % len(a.window)
	}
}

// Reset clears the window and the smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.window {
		a.window[i] = 0
	}
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
	a.pos = 0
}

// ByteFrequencyData fills dst with magnitudes mapped from
// [minDecibels, maxDecibels] onto [0, 255]. It returns the number of bins written.
func (a *Analyser) ByteFrequencyData(dst []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := len(a.window)
	frame := make([]float64, size)
	for i := 0; i < size; i++ {
		frame[i] = a.window[(a.pos+i)%size] * a.hann[i]
	}
	spectrum := fft.FFTReal(frame)

	n := len(a.smoothed)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < len(a.smoothed); i++ {
		mag := cmplx.Abs(spectrum[i]) / float64(size)
		a.smoothed[i] = a.smoothing*a.smoothed[i] + (1-a.smoothing)*mag
	}
	for i := 0; i < n; i++ {
		dst[i] = magnitudeToByte(a.smoothed[i])
	}
	return n
}

func magnitudeToByte(mag float64) byte {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	scaled := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
	switch {
	case scaled <= 0:
		return 0
	case scaled >= 255:
		return 255
	default:
		return byte(scaled)
	}
}
