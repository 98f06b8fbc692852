package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/pcm"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/resampler"
)

// DefaultFrameDuration is 10ms, 160 samples at 16 kHz.
const DefaultFrameDuration = 10 * time.Millisecond

// SourceOption configures a ReaderSource.
type SourceOption func(*ReaderSource)

// WithFrameDuration sets the length of each frame.
func WithFrameDuration(d time.Duration) SourceOption {
	return func(s *ReaderSource) { s.frameDuration = d }
}

// WithRealtime paces reads at the audio rate, as a microphone would.
func WithRealtime(realtime bool) SourceOption {
	return func(s *ReaderSource) { s.realtime = realtime }
}

// ReaderSource turns a byte stream of 16-bit PCM into fixed-size frames.
// The final partial frame is zero-padded.
type ReaderSource struct {
	r             io.Reader
	format        pcm.Format
	frameDuration time.Duration
	realtime      bool

	next time.Time
	eof  bool
}

// NewReaderSource creates a source reading PCM in format from r.
func NewReaderSource(r io.Reader, format pcm.Format, opts ...SourceOption) *ReaderSource {
	s := &ReaderSource{
		r:             r,
		format:        format,
		frameDuration: DefaultFrameDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewResamplingSource creates a source that converts r from in to format
// before framing it.
func NewResamplingSource(r io.Reader, in resampler.Format, format pcm.Format, opts ...SourceOption) (*ReaderSource, error) {
	rs, err := resampler.New(r, in, resampler.FromPCM(format))
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	s := NewReaderSource(rs, format, opts...)
	s.r = &closeBoth{Reader: rs, inner: r, rs: rs}
	return s, nil
}

// ReadChunk returns the next frame, or io.EOF once the stream is drained.
func (s *ReaderSource) ReadChunk() (pcm.Chunk, error) {
	if s.eof {
		return nil, io.EOF
	}
	if s.realtime {
		now := time.Now()
		if s.next.IsZero() {
			s.next = now
		}
		if wait := s.next.Sub(now); wait > 0 {
			time.Sleep(wait)
		}
		s.next = s.next.Add(s.frameDuration)
	}

	buf := make([]byte, s.format.BytesInDuration(s.frameDuration))
	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == nil:
		return s.format.DataChunk(buf), nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.eof = true
		clear(buf[n:])
		return s.format.DataChunk(buf), nil
	case errors.Is(err, io.EOF):
		s.eof = true
		return nil, io.EOF
	default:
		return nil, err
	}
}

// Format returns the frame format.
func (s *ReaderSource) Format() pcm.Format {
	return s.format
}

// Close closes the underlying reader if it is an io.Closer.
func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type closeBoth struct {
	io.Reader
	inner io.Reader
	rs    *resampler.Reader
}

func (c *closeBoth) Close() error {
	c.rs.Close()
	if ic, ok := c.inner.(io.Closer); ok {
		return ic.Close()
	}
	return nil
}
