// ABOUTME: Tests for the spectrum analyzer
// ABOUTME: Sine concentration, silence, clamping and tap lifecycle
package viz

import (
	"math"
	"testing"
)

// sineTap fills dst with a sine of the given frequency and amplitude.
func sineTap(freq float64, amp float64, rate int) Tap {
	return func(dst []float32) int {
		for i := range dst {
			dst[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		}
		return len(dst)
	}
}

func TestFrameWithoutTapIsZero(t *testing.T) {
	a := New(Config{})

	bins := a.Frame()
	if len(bins) != DefaultBins {
		t.Fatalf("len(bins) = %d, want %d", len(bins), DefaultBins)
	}
	for i, v := range bins {
		if v != 0 {
			t.Errorf("bin %d = %v, want 0", i, v)
		}
	}
	if a.Active() {
		t.Error("Active() = true without a tap")
	}
}

func TestSineConcentratesInOneBin(t *testing.T) {
	const (
		rate = 24000
		freq = 1500.0 // lands exactly on a coefficient for n=1024
		amp  = 0.5
	)
	a := New(Config{WindowSize: 1024, Bins: 32, SampleRate: rate})
	a.Attach(sineTap(freq, amp, rate))

	bins := a.Frame()

	peak := 0
	for i, v := range bins {
		if v > bins[peak] {
			peak = i
		}
	}

	if got := bins[peak]; got < 0.35 || got > 0.65 {
		t.Errorf("peak bin value = %v, want near %v", got, amp)
	}
	if f := a.BinFrequency(peak); f < 1100 || f > 2000 {
		t.Errorf("peak at %v Hz, want near %v Hz", f, freq)
	}

	// Energy far from the tone stays near zero.
	for i, v := range bins {
		f := a.BinFrequency(i)
		if f > freq/4 && f < freq*4 {
			continue
		}
		if v > 0.05 {
			t.Errorf("bin %d (%.0f Hz) = %v, want near 0", i, f, v)
		}
	}
}

func TestSilenceYieldsZeroBins(t *testing.T) {
	a := New(Config{})
	a.Attach(func(dst []float32) int { return len(dst) })

	for i, v := range a.Frame() {
		if v > 1e-9 {
			t.Errorf("bin %d = %v, want 0", i, v)
		}
	}
}

func TestEmptyTapYieldsZeroBins(t *testing.T) {
	a := New(Config{})
	a.Attach(func(dst []float32) int { return 0 })

	for i, v := range a.Frame() {
		if v != 0 {
			t.Errorf("bin %d = %v, want 0", i, v)
		}
	}
}

func TestDeactivateZerosBins(t *testing.T) {
	a := New(Config{SampleRate: 24000})
	a.Attach(sineTap(1500, 0.5, 24000))

	var max float64
	for _, v := range a.Frame() {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		t.Fatal("expected signal before Deactivate")
	}

	a.Deactivate()
	if a.Active() {
		t.Error("Active() = true after Deactivate")
	}
	for i, v := range a.Frame() {
		if v != 0 {
			t.Errorf("bin %d = %v after Deactivate, want 0", i, v)
		}
	}
}

func TestPartialWindowIsZeroPadded(t *testing.T) {
	a := New(Config{WindowSize: 1024, SampleRate: 24000})
	a.Attach(func(dst []float32) int {
		for i := 0; i < 100; i++ {
			dst[i] = 0.5
		}
		return 100
	})

	for i, v := range a.Frame() {
		if v < 0 || v > 1 || math.IsNaN(v) {
			t.Errorf("bin %d = %v, want in [0, 1]", i, v)
		}
	}
}

func TestLoudSignalClampsToOne(t *testing.T) {
	a := New(Config{SampleRate: 24000})
	a.Attach(sineTap(1500, 1.5, 24000))

	for i, v := range a.Frame() {
		if v > 1 {
			t.Errorf("bin %d = %v, want <= 1", i, v)
		}
	}
}

func TestBinCountCappedByWindow(t *testing.T) {
	a := New(Config{WindowSize: 64, Bins: 1000})
	if a.Bins() != 32 {
		t.Errorf("Bins() = %d, want 32", a.Bins())
	}
	if len(a.Frame()) != 32 {
		t.Errorf("len(Frame()) = %d, want 32", len(a.Frame()))
	}
}

func TestBinFrequenciesAreNonDecreasing(t *testing.T) {
	a := New(Config{})

	prev := 0.0
	for i := 0; i < a.Bins(); i++ {
		f := a.BinFrequency(i)
		if f < prev {
			t.Errorf("BinFrequency(%d) = %v < BinFrequency(%d) = %v", i, f, i-1, prev)
		}
		prev = f
	}
	if top := a.BinFrequency(a.Bins() - 1); top > float64(DefaultSampleRate)/2 {
		t.Errorf("top bin %v Hz exceeds Nyquist", top)
	}
	if a.BinFrequency(-1) != 0 || a.BinFrequency(a.Bins()) != 0 {
		t.Error("out-of-range bins should report 0 Hz")
	}
}
