// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts capture audio between device and endpoint rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates.
// Handles both upsampling and downsampling.
//
// Example:
//
//	r := resample.New(44100, 16000, 1)
//	out := r.Resample(deviceFrame)
package resample
