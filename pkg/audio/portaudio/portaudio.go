//go:build portaudio

// Package portaudio opens the default microphone and speaker through the
// PortAudio C library. It is only built with the "portaudio" build tag and
// needs portaudio-2.0 via pkg-config (apt install portaudio19-dev, or brew
// install portaudio).
//
// Streams are blocking, mono or stereo, 16-bit signed. Samples cross the cgo
// boundary as raw bytes in host order, which is little-endian on every
// platform the dialog client ships for.
package portaudio

/*
#cgo pkg-config: portaudio-2.0

#include <portaudio.h>
#include <stdlib.h>
#include <string.h>

// dev_open opens a blocking int16 stream on the default input device when
// in_channels > 0, otherwise on the default output device.
static PaError dev_open(void **handle, int in_channels, int out_channels,
                        double rate, unsigned long frames) {
    PaStreamParameters p;
    int input = in_channels > 0;
    p.device = input ? Pa_GetDefaultInputDevice() : Pa_GetDefaultOutputDevice();
    if (p.device == paNoDevice) {
        return paDeviceUnavailable;
    }
    const PaDeviceInfo *info = Pa_GetDeviceInfo(p.device);
    p.channelCount = input ? in_channels : out_channels;
    p.sampleFormat = paInt16;
    p.suggestedLatency = input ? info->defaultLowInputLatency : info->defaultLowOutputLatency;
    p.hostApiSpecificStreamInfo = NULL;
    return Pa_OpenStream((PaStream**)handle,
                         input ? &p : NULL, input ? NULL : &p,
                         rate, frames, paClipOff, NULL, NULL);
}

static PaError dev_start(void *h) { return Pa_StartStream((PaStream*)h); }
static PaError dev_stop(void *h) { return Pa_StopStream((PaStream*)h); }
static PaError dev_close(void *h) { return Pa_CloseStream((PaStream*)h); }
static PaError dev_read(void *h, void *buf, unsigned long frames) {
    return Pa_ReadStream((PaStream*)h, buf, frames);
}
static PaError dev_write(void *h, const void *buf, unsigned long frames) {
    return Pa_WriteStream((PaStream*)h, buf, frames);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

var (
	ErrClosed    = errors.New("portaudio: stream closed")
	ErrNotLoaded = errors.New("portaudio: library not initialized")
)

// The library is reference counted so that Terminate pairs with Initialize
// even when several devices are opened and closed independently.
var (
	libMu   sync.Mutex
	libRefs int
)

// Initialize loads PortAudio. Every successful call must be matched by a
// Terminate.
func Initialize() error {
	libMu.Lock()
	defer libMu.Unlock()
	if libRefs == 0 {
		if err := check("initialize", C.Pa_Initialize()); err != nil {
			return err
		}
	}
	libRefs++
	return nil
}

// Terminate releases one Initialize. The library is unloaded with the last.
func Terminate() error {
	libMu.Lock()
	defer libMu.Unlock()
	switch libRefs {
	case 0:
		return ErrNotLoaded
	case 1:
		libRefs = 0
		return check("terminate", C.Pa_Terminate())
	default:
		libRefs--
		return nil
	}
}

func loaded() bool {
	libMu.Lock()
	defer libMu.Unlock()
	return libRefs > 0
}

func check(op string, code C.PaError) error {
	if code == C.paNoError {
		return nil
	}
	return fmt.Errorf("portaudio: %s: %s", op, C.GoString(C.Pa_GetErrorText(code)))
}

// stream is one blocking PortAudio stream with a C-side buffer of exactly
// one device period.
type stream struct {
	handle    unsafe.Pointer
	buf       unsafe.Pointer
	frames    int
	frameSize int // bytes per frame across all channels

	mu      sync.Mutex
	running bool
	closed  bool
}

// open opens a stream on the default input device (input true) or the
// default output device.
func open(input bool, channels int, rate float64, frames int) (*stream, error) {
	if !loaded() {
		return nil, ErrNotLoaded
	}
	if frames <= 0 {
		return nil, fmt.Errorf("portaudio: invalid period of %d frames", frames)
	}
	in, out := C.int(0), C.int(channels)
	if input {
		in, out = C.int(channels), 0
	}
	s := &stream{frames: frames, frameSize: channels * 2}
	if err := check("open stream", C.dev_open(&s.handle, in, out, C.double(rate), C.ulong(frames))); err != nil {
		return nil, err
	}
	s.buf = C.malloc(C.size_t(frames * s.frameSize))
	if err := check("start stream", C.dev_start(s.handle)); err != nil {
		C.dev_close(s.handle)
		C.free(s.buf)
		return nil, err
	}
	s.running = true
	return s, nil
}

// read blocks for one period and returns it as little-endian bytes.
func (s *stream) read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	code := C.dev_read(s.handle, s.buf, C.ulong(s.frames))
	// Input overflow only means samples were lost; the period is still valid.
	if code != C.paNoError && code != C.paInputOverflowed {
		return nil, check("read", code)
	}
	return C.GoBytes(s.buf, C.int(s.frames*s.frameSize)), nil
}

// write plays data, one period at a time. A trailing partial frame is
// dropped.
func (s *stream) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	period := s.frames * s.frameSize
	for len(data) >= s.frameSize {
		n := min(len(data), period)
		n -= n % s.frameSize
		C.memcpy(s.buf, unsafe.Pointer(&data[0]), C.size_t(n))
		code := C.dev_write(s.handle, s.buf, C.ulong(n/s.frameSize))
		if code != C.paNoError && code != C.paOutputUnderflowed {
			return check("write", code)
		}
		data = data[n:]
	}
	return nil
}

func (s *stream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if s.running {
		errs = append(errs, check("stop stream", C.dev_stop(s.handle)))
		s.running = false
	}
	errs = append(errs, check("close stream", C.dev_close(s.handle)))
	C.free(s.buf)
	return errors.Join(errs...)
}
