//go:build portaudio

package portaudio

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/pcm"
)

// Microphone captures fixed-size PCM frames from the default input device.
// It satisfies capture.Source.
type Microphone struct {
	s      *stream
	format pcm.Format
}

// OpenMicrophone opens and starts the default input device. Each ReadChunk
// returns frameDuration worth of audio, 160 samples for 10ms at 16 kHz.
func OpenMicrophone(format pcm.Format, frameDuration time.Duration) (*Microphone, error) {
	frames := int(format.SamplesInDuration(frameDuration))
	s, err := open(true, format.Channels(), float64(format.SampleRate()), frames)
	if err != nil {
		return nil, err
	}
	return &Microphone{s: s, format: format}, nil
}

// ReadChunk blocks for one device period. After Close it returns io.EOF.
func (m *Microphone) ReadChunk() (pcm.Chunk, error) {
	data, err := m.s.read()
	if errors.Is(err, ErrClosed) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	return m.format.DataChunk(data), nil
}

func (m *Microphone) Format() pcm.Format { return m.format }

// Close stops and releases the device. It is safe to call more than once.
func (m *Microphone) Close() error { return m.s.close() }

// Speaker renders PCM chunks on the default output device. It satisfies
// pcm.Writer; writes block at the device rate.
type Speaker struct {
	s      *stream
	format pcm.Format
}

// OpenSpeaker opens and starts the default output device with a period of
// bufferDuration.
func OpenSpeaker(format pcm.Format, bufferDuration time.Duration) (*Speaker, error) {
	frames := int(format.SamplesInDuration(bufferDuration))
	s, err := open(false, format.Channels(), float64(format.SampleRate()), frames)
	if err != nil {
		return nil, err
	}
	return &Speaker{s: s, format: format}, nil
}

// Write plays the chunk. Chunks in another format are rejected.
func (sp *Speaker) Write(chunk pcm.Chunk) error {
	if chunk.Format() != sp.format {
		return fmt.Errorf("portaudio: speaker plays %v, got %v", sp.format, chunk.Format())
	}
	return sp.s.write(pcm.Bytes(chunk))
}

func (sp *Speaker) Format() pcm.Format { return sp.format }

// Close stops and releases the device. It is safe to call more than once.
func (sp *Speaker) Close() error { return sp.s.close() }
