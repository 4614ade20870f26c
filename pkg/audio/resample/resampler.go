// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Converts capture frames to the endpoint rate using linear interpolation
package resample

// Resampler performs linear interpolation to convert between sample rates.
// It operates on interleaved float32 frames and keeps fractional position
// across calls so consecutive capture frames stay continuous.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		position:   0.0,
	}
}

// Passthrough reports whether input and output rates already match.
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// Resample converts interleaved input samples at inputRate into a new
// interleaved slice at outputRate.
func (r *Resampler) Resample(input []float32) []float32 {
	if len(input) == 0 || r.channels <= 0 {
		return nil
	}
	if r.Passthrough() {
		out := make([]float32, len(input))
		copy(out, input)
		return out
	}

	inputFrames := len(input) / r.channels
	maxOut := int(float64(inputFrames)/r.ratio) + 1
	output := make([]float32, 0, maxOut*r.channels)

	for {
		inputPos := r.position
		inputIdx := int(inputPos)

		if inputIdx >= inputFrames-1 {
			break
		}

		frac := inputPos - float64(inputIdx)

		for ch := 0; ch < r.channels; ch++ {
			s1 := float64(input[inputIdx*r.channels+ch])
			s2 := float64(input[(inputIdx+1)*r.channels+ch])
			output = append(output, float32(s1*(1.0-frac)+s2*frac))
		}

		r.position += r.ratio
	}

	// Keep only the fractional overhang for the next frame
	r.position -= float64(int(r.position))

	return output
}

// Reset clears interpolation state between capture sessions.
func (r *Resampler) Reset() {
	r.position = 0.0
}

// OutputFrames estimates how many output frames a given input frame count
// produces.
func (r *Resampler) OutputFrames(inputFrames int) int {
	if r.ratio == 0 {
		return 0
	}
	return int(float64(inputFrames) / r.ratio)
}
