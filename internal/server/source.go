// ABOUTME: Speech sources for the dev server
// ABOUTME: Tone generator and looping MP3 file behind one interface
package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio/pcm"
	"github.com/Vocalis-Audio/vocalis-go/pkg/audio/resample"
)

// SpeechSource produces the mono speech signal the server streams. Read
// fills buf with samples in [-1, 1] and reports how many were written.
type SpeechSource interface {
	Read(buf []float32) (int, error)
	Rate() int
	Close() error
}

// NewSource builds a speech source from the config string: "tone" for the
// built-in generator, otherwise a path to an MP3 file.
func NewSource(spec string, rate int) (SpeechSource, error) {
	switch {
	case spec == "" || spec == "tone":
		return NewToneSource(rate), nil
	case strings.HasSuffix(strings.ToLower(spec), ".mp3"):
		return NewMP3Source(spec, rate)
	default:
		return nil, fmt.Errorf("unsupported speech source %q", spec)
	}
}

const (
	toneFrequency = 440
	toneAmplitude = 0.5
)

// ToneSource generates a continuous sine wave. Phase carries across reads
// so chunk boundaries stay click-free.
type ToneSource struct {
	rate  int
	phase int
}

// NewToneSource creates a tone source at the given sample rate.
func NewToneSource(rate int) *ToneSource {
	return &ToneSource{rate: rate}
}

// Read fills buf with the next stretch of the tone. It never fails.
func (t *ToneSource) Read(buf []float32) (int, error) {
	step := 2 * math.Pi * toneFrequency / float64(t.rate)
	for i := range buf {
		buf[i] = float32(toneAmplitude * math.Sin(step*float64(t.phase)))
		t.phase++
		if t.phase >= t.rate {
			t.phase -= t.rate
		}
	}
	return len(buf), nil
}

// Rate returns the sample rate of produced samples.
func (t *ToneSource) Rate() int {
	return t.rate
}

// Close is a no-op for the generator.
func (t *ToneSource) Close() error {
	return nil
}

// MP3Source streams a file in a loop, downmixed to mono and resampled to
// the session rate. go-mp3 always yields 16-bit stereo.
type MP3Source struct {
	file    *os.File
	decoder *mp3.Decoder
	rate    int
	rs      *resample.Resampler
	pending []float32
	raw     []byte
}

// NewMP3Source opens path for streaming at the target sample rate.
func NewMP3Source(path string, rate int) (*MP3Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mp3: %w", err)
	}

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to decode mp3: %w", err)
	}

	return &MP3Source{
		file:    file,
		decoder: decoder,
		rate:    rate,
		rs:      resample.New(decoder.SampleRate(), rate, 1),
		raw:     make([]byte, 8192),
	}, nil
}

// Read fills buf with the next stretch of the file, rewinding at EOF so
// the speech never runs out.
func (m *MP3Source) Read(buf []float32) (int, error) {
	for len(m.pending) < len(buf) {
		mono, err := m.decodeBlock()
		if err != nil {
			return 0, err
		}
		m.pending = append(m.pending, mono...)
	}
	n := copy(buf, m.pending)
	m.pending = m.pending[:copy(m.pending, m.pending[n:])]
	return n, nil
}

// decodeBlock reads one block from the decoder, downmixes to mono and
// resamples to the target rate.
func (m *MP3Source) decodeBlock() ([]float32, error) {
	n, err := m.decoder.Read(m.raw)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("mp3 read failed: %w", err)
	}
	if n == 0 {
		if err := m.rewind(); err != nil {
			return nil, err
		}
		n, err = m.decoder.Read(m.raw)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("mp3 read failed: %w", err)
		}
		if n == 0 {
			return nil, errors.New("mp3 decoder yielded no audio")
		}
	}

	frames := n / 4
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(m.raw[i*4:]))
		r := int16(binary.LittleEndian.Uint16(m.raw[i*4+2:]))
		mono[i] = (pcm.SampleFromInt16(l) + pcm.SampleFromInt16(r)) / 2
	}
	return m.rs.Resample(mono), nil
}

func (m *MP3Source) rewind() error {
	if _, err := m.decoder.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind mp3: %w", err)
	}
	return nil
}

// Rate returns the target sample rate, not the file's native rate.
func (m *MP3Source) Rate() int {
	return m.rate
}

// Close releases the underlying file.
func (m *MP3Source) Close() error {
	return m.file.Close()
}
