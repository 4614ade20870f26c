// ABOUTME: Downlink WAV capture for debugging
// ABOUTME: Buffers session audio and writes one file at close
package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
	"github.com/Vocalis-Audio/vocalis-go/pkg/audio/wav"
)

// wavDump buffers downlink payloads and frames them as a WAV file when
// the session ends. Only a PCM16 downlink can be framed; an Opus session
// skips the dump with a warning.
type wavDump struct {
	path string

	mu       sync.Mutex
	data     bytes.Buffer
	rate     int
	channels int
}

func newWAVDump(path string) *wavDump {
	return &wavDump{path: path}
}

// add appends one downlink chunk. Called from the session goroutine.
func (d *wavDump) add(chunk audio.PCMChunk) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data.Write(chunk.Data)
	d.rate = chunk.SampleRate
	d.channels = chunk.Channels
}

// write frames the captured audio and writes the file.
func (d *wavDump) write(format audio.Format) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if format.Codec != "" && format.Codec != "pcm16" && format.Codec != "pcm" {
		return fmt.Errorf("downlink codec %s cannot be framed as wav", format.Codec)
	}
	if d.data.Len() == 0 {
		return errors.New("no downlink audio captured")
	}

	out, err := wav.Wrap(d.data.Bytes(), d.rate, d.channels)
	if err != nil {
		return err
	}
	return os.WriteFile(d.path, out, 0o644)
}
