// ABOUTME: Spectrum analyzer behind the output visualizer
// ABOUTME: Hann window, real FFT, log-spaced display bins

// Package viz turns the playback tap into display-ready spectrum bins.
//
// The analyzer is a pure consumer: it pulls the most recent rendered
// window from a Tap once per display refresh and never touches playback.
// No tap, an empty tap or a stopped session all yield zero bins.
package viz

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// DefaultWindowSize is the FFT length in frames.
	DefaultWindowSize = 1024

	// DefaultBins is the display bin count.
	DefaultBins = 32

	// DefaultSampleRate matches the usual downlink rate.
	DefaultSampleRate = 24000

	minWindowSize = 64
)

// Tap copies the most recent rendered frames into dst and reports how
// many were written. playback.Scheduler.Tap and vocalis.Session.Tap both
// satisfy it.
type Tap func(dst []float32) int

// Config configures an Analyzer. Zero values mean the defaults.
type Config struct {
	// WindowSize is the FFT length in frames.
	WindowSize int

	// Bins is the number of display bins, capped at WindowSize/2.
	Bins int

	// SampleRate maps FFT coefficients onto frequencies.
	SampleRate int
}

// Analyzer computes normalized spectrum bins from a signal tap. Frame
// runs on the display goroutine; Attach and Deactivate may be called
// from anywhere.
type Analyzer struct {
	mu  sync.Mutex
	tap Tap

	n    int
	rate int
	fft  *fourier.FFT

	window  []float64
	gain    float64
	samples []float32
	seq     []float64
	coeffs  []complex128

	// Per-bin coefficient ranges [lo, hi). Log spacing is denser than
	// the FFT resolution at the low end, so ranges may overlap.
	lo, hi []int
}

// New creates an analyzer. Out-of-range config values are clamped, not
// rejected; the visualizer must never be the reason a session cannot run.
func New(cfg Config) *Analyzer {
	n := cfg.WindowSize
	if n == 0 {
		n = DefaultWindowSize
	}
	if n < minWindowSize {
		n = minWindowSize
	}
	bins := cfg.Bins
	if bins == 0 {
		bins = DefaultBins
	}
	if bins > n/2 {
		bins = n / 2
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	a := &Analyzer{
		n:       n,
		rate:    rate,
		fft:     fourier.NewFFT(n),
		window:  make([]float64, n),
		samples: make([]float32, n),
		seq:     make([]float64, n),
		coeffs:  make([]complex128, n/2+1),
		lo:      make([]int, bins),
		hi:      make([]int, bins),
	}

	var sum float64
	for i := range a.window {
		a.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		sum += a.window[i]
	}
	a.gain = 2 / sum

	// Log-spaced edges from the first coefficient up to Nyquist.
	minFreq := float64(rate) / float64(n)
	maxFreq := float64(rate) / 2
	ratio := maxFreq / minFreq
	for k := 0; k < bins; k++ {
		a.lo[k] = a.indexFor(minFreq * math.Pow(ratio, float64(k)/float64(bins)))
		hi := a.indexFor(minFreq * math.Pow(ratio, float64(k+1)/float64(bins)))
		if hi <= a.lo[k] {
			hi = a.lo[k] + 1
		}
		if hi > n/2+1 {
			hi = n/2 + 1
		}
		a.hi[k] = hi
	}

	return a
}

// indexFor maps a frequency onto a spectrum coefficient, skipping DC.
func (a *Analyzer) indexFor(freq float64) int {
	idx := int(math.Round(freq * float64(a.n) / float64(a.rate)))
	if idx < 1 {
		idx = 1
	}
	if idx > a.n/2 {
		idx = a.n / 2
	}
	return idx
}

// Attach points the analyzer at a signal tap.
func (a *Analyzer) Attach(tap Tap) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tap = tap
}

// Deactivate detaches the tap. Subsequent frames are zero bins.
func (a *Analyzer) Deactivate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tap = nil
}

// Active reports whether a tap is attached.
func (a *Analyzer) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tap != nil
}

// Bins returns the display bin count.
func (a *Analyzer) Bins() int {
	return len(a.lo)
}

// BinFrequency returns the center frequency of a display bin in Hz.
func (a *Analyzer) BinFrequency(bin int) float64 {
	if bin < 0 || bin >= len(a.lo) {
		return 0
	}
	lo := float64(a.lo[bin]) * float64(a.rate) / float64(a.n)
	hi := float64(a.hi[bin]) * float64(a.rate) / float64(a.n)
	return math.Sqrt(lo * hi)
}

// Frame runs one analysis pass and returns normalized bins in [0, 1]. A
// full-scale sine at a bin center reads close to 1. The slice is freshly
// allocated; callers may keep it.
func (a *Analyzer) Frame() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]float64, len(a.lo))
	if a.tap == nil {
		return out
	}

	got := a.tap(a.samples)
	if got <= 0 {
		return out
	}
	if got > a.n {
		got = a.n
	}

	for i := range a.seq {
		if i < got {
			a.seq[i] = float64(a.samples[i]) * a.window[i]
		} else {
			a.seq[i] = 0
		}
	}
	a.fft.Coefficients(a.coeffs, a.seq)

	for k := range out {
		var peak float64
		for i := a.lo[k]; i < a.hi[k]; i++ {
			if m := cmplx.Abs(a.coeffs[i]); m > peak {
				peak = m
			}
		}
		v := peak * a.gain
		if v > 1 {
			v = 1
		}
		out[k] = v
	}
	return out
}
