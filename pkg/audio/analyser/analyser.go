// Package analyser derives a loudness score from a window of recent
// microphone samples.
//
// The score mirrors a browser AnalyserNode configured the way voice
// activity detection expects it:
//
//	FFTSize:      256 (128 frequency bins)
//	Smoothing:    0.8
//	MinDecibels: -100
//	MaxDecibels:  -30
//
// Each frame is Blackman windowed, transformed, smoothed over time,
// converted to decibels and mapped to 0..255 per bin. Energy is the mean
// of those bins, so silence reads 0 and loud speech approaches 255.
package analyser

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Config controls the analyser.
type Config struct {
	FFTSize     int
	Smoothing   float64
	MinDecibels float64
	MaxDecibels float64
}

// DefaultConfig returns the voice detection settings.
func DefaultConfig() Config {
	return Config{
		FFTSize:     256,
		Smoothing:   0.8,
		MinDecibels: -100,
		MaxDecibels: -30,
	}
}

// Analyser keeps the smoothing state between frames. It is safe for
// concurrent use.
type Analyser struct {
	cfg Config

	mu       sync.Mutex
	fft      *fourier.FFT
	window   []float64
	frame    []float64
	coeffs   []complex128
	smoothed []float64
	bins     []byte
}

// New returns an Analyser. Zero fields in cfg take their defaults and the
// FFT size is rounded up to a power of two.
func New(cfg Config) *Analyser {
	def := DefaultConfig()
	if cfg.FFTSize <= 0 {
		cfg.FFTSize = def.FFTSize
	}
	cfg.FFTSize = nextPow2(cfg.FFTSize)
	if cfg.Smoothing < 0 || cfg.Smoothing >= 1 {
		cfg.Smoothing = def.Smoothing
	}
	if cfg.MaxDecibels <= cfg.MinDecibels {
		cfg.MinDecibels, cfg.MaxDecibels = def.MinDecibels, def.MaxDecibels
	}
	n := cfg.FFTSize
	return &Analyser{
		cfg:      cfg,
		fft:      fourier.NewFFT(n),
		window:   blackman(n),
		frame:    make([]float64, n),
		coeffs:   make([]complex128, n/2+1),
		smoothed: make([]float64, n/2),
		bins:     make([]byte, n/2),
	}
}

// FFTSize returns the number of samples consumed per frame.
func (a *Analyser) FFTSize() int { return a.cfg.FFTSize }

// FrequencyBins analyses the newest FFTSize samples in window (values in
// [-1, 1]) and returns the per-bin byte levels. Shorter windows are
// zero-padded at the front. The returned slice is reused by the next call.
func (a *Analyser) FrequencyBins(window []float64) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.cfg.FFTSize
	if len(window) > n {
		window = window[len(window)-n:]
	}
	clear(a.frame)
	off := n - len(window)
	for i, s := range window {
		a.frame[off+i] = s * a.window[off+i]
	}
	a.fft.Coefficients(a.coeffs, a.frame)

	tau := a.cfg.Smoothing
	span := a.cfg.MaxDecibels - a.cfg.MinDecibels
	for k := range a.smoothed {
		mag := cmplxAbs(a.coeffs[k]) / float64(n)
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag
		db := math.Inf(-1)
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := math.Floor(255 / span * (db - a.cfg.MinDecibels))
		a.bins[k] = byte(math.Max(0, math.Min(255, v)))
	}
	return a.bins
}

// Energy returns the mean bin level for window.
func (a *Analyser) Energy(window []float64) float64 {
	bins := a.FrequencyBins(window)
	var sum int
	for _, b := range bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(bins))
}

// Reset clears the smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.smoothed)
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func blackman(n int) []float64 {
	const a0, a1, a2 = 0.42, 0.5, 0.08
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}

func nextPow2(n int) int {
	p := 32
	for p < n {
		p <<= 1
	}
	return p
}
