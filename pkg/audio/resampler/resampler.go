package resampler

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Reader pulls 16-bit PCM from a source and yields mono 16-bit PCM at the
// destination rate. Stereo sources are downmixed before resampling.
type Reader struct {
	src    io.Reader
	srcFmt Format
	dstFmt Format

	mu        sync.Mutex
	rs        resampling.Resampler
	raw       []byte // source bytes not yet forming a whole frame
	pending   []byte // converted output not yet returned
	srcErr    error
	closeErr  error
	chunkSize int
}

// New creates a Reader converting src from srcFmt to dst. The destination is
// always mono.
func New(src io.Reader, srcFmt Format, dst Format) (*Reader, error) {
	if srcFmt.SampleRate <= 0 || dst.SampleRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid sample rate %d -> %d", srcFmt.SampleRate, dst.SampleRate)
	}
	dst.Stereo = false

	r := &Reader{
		src:       src,
		srcFmt:    srcFmt,
		dstFmt:    dst,
		chunkSize: srcFmt.FrameBytes() * srcFmt.SampleRate / 50, // 20ms
	}
	if srcFmt.SampleRate != dst.SampleRate {
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(srcFmt.SampleRate),
			OutputRate: float64(dst.SampleRate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: create: %w", err)
		}
		r.rs = rs
	}
	return r, nil
}

// Read fills p with converted samples. The returned length is always a
// multiple of 2.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) < 2 {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)&^1]

	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.pending) == 0 {
		if r.closeErr != nil {
			return 0, r.closeErr
		}
		if r.srcErr != nil {
			return 0, r.srcErr
		}
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// fill reads one chunk from the source and converts it into r.pending.
func (r *Reader) fill() error {
	buf := make([]byte, r.chunkSize)
	n, err := io.ReadAtLeast(r.src, buf, r.srcFmt.FrameBytes())
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		r.srcErr = err
		if !errors.Is(err, io.EOF) {
			return err
		}
	}
	r.raw = append(r.raw, buf[:n]...)
	whole := len(r.raw) / r.srcFmt.FrameBytes() * r.srcFmt.FrameBytes()
	if whole == 0 {
		return nil
	}
	mono := downmix(r.raw[:whole], r.srcFmt.Channels())
	r.raw = append(r.raw[:0], r.raw[whole:]...)

	if r.rs == nil {
		r.pending = mono
		return nil
	}

	in := make([]float64, len(mono)/2)
	for i := range in {
		in[i] = float64(int16(binary.LittleEndian.Uint16(mono[i*2:]))) / 32768.0
	}
	out, err := r.rs.Process(in)
	if err != nil {
		return fmt.Errorf("resampler: process: %w", err)
	}
	pending := make([]byte, len(out)*2)
	for i, s := range out {
		v := s * 32767.0
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		binary.LittleEndian.PutUint16(pending[i*2:], uint16(int16(v)))
	}
	r.pending = pending
	return nil
}

// Close stops the reader. Later reads return io.ErrClosedPipe.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr == nil {
		r.closeErr = fmt.Errorf("resampler: %w", io.ErrClosedPipe)
	}
	r.rs = nil
	return nil
}

// downmix averages interleaved channels into mono 16-bit samples.
func downmix(b []byte, channels int) []byte {
	if channels == 1 {
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	frames := len(b) / (2 * channels)
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for c := range channels {
			sum += int32(int16(binary.LittleEndian.Uint16(b[(i*channels+c)*2:])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/int32(channels))))
	}
	return out
}
