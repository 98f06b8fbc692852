package pcm

import (
	"fmt"
	"io"
	"time"
)

// Format identifies a 16-bit little-endian mono PCM stream by its rate.
type Format int

const (
	L16Mono16K Format = iota // microphone upload
	L16Mono24K               // server speech
	L16Mono48K
)

var sampleRates = [...]int{
	L16Mono16K: 16000,
	L16Mono24K: 24000,
	L16Mono48K: 48000,
}

const sampleBytes = 2

// FormatForRate returns the Format with the given sample rate.
func FormatForRate(rate int) (Format, error) {
	for f, r := range sampleRates {
		if r == rate {
			return Format(f), nil
		}
	}
	return 0, fmt.Errorf("pcm: unsupported sample rate %d", rate)
}

// SampleRate returns the rate in Hz. It panics on an unknown Format.
func (f Format) SampleRate() int {
	if f < 0 || int(f) >= len(sampleRates) {
		panic(fmt.Sprintf("pcm: unknown format %d", int(f)))
	}
	return sampleRates[f]
}

func (f Format) Channels() int    { return 1 }
func (f Format) SampleBytes() int { return sampleBytes }

// SamplesInDuration returns how many samples d holds, rounded down.
func (f Format) SamplesInDuration(d time.Duration) int64 {
	return int64(time.Duration(f.SampleRate()) * d / time.Second)
}

// BytesInDuration returns how many bytes d holds, rounded down to a sample.
func (f Format) BytesInDuration(d time.Duration) int64 {
	return f.SamplesInDuration(d) * sampleBytes
}

// Duration returns the play time of n bytes.
func (f Format) Duration(n int64) time.Duration {
	return time.Duration(n/sampleBytes) * time.Second / time.Duration(f.SampleRate())
}

// DataChunk wraps data without copying.
func (f Format) DataChunk(data []byte) Chunk {
	return &DataChunk{Data: data, fmt: f}
}

// SilenceChunk returns d of silence.
func (f Format) SilenceChunk(d time.Duration) Chunk {
	return &SilenceChunk{Duration: d, len: f.BytesInDuration(d), fmt: f}
}

// SilenceSamples returns n samples of silence.
func (f Format) SilenceSamples(n int) Chunk {
	size := int64(n) * sampleBytes
	return &SilenceChunk{Duration: f.Duration(size), len: size, fmt: f}
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(sampleRates) {
		return fmt.Sprintf("pcm.Format(%d)", int(f))
	}
	return fmt.Sprintf("audio/L16; rate=%d; channels=1", sampleRates[f])
}

// Chunk is a run of samples in one Format.
type Chunk interface {
	Len() int64
	Format() Format
	WriteTo(w io.Writer) (int64, error)
}

// DataChunk holds real samples.
type DataChunk struct {
	Data []byte
	fmt  Format
}

func (c *DataChunk) Len() int64     { return int64(len(c.Data)) }
func (c *DataChunk) Format() Format { return c.fmt }

func (c *DataChunk) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(c.Data)
	return int64(n), err
}

// SilenceChunk is zeros of a known length, written without allocating.
type SilenceChunk struct {
	Duration time.Duration
	len      int64
	fmt      Format
}

func (c *SilenceChunk) Len() int64     { return c.len }
func (c *SilenceChunk) Format() Format { return c.fmt }

var zeros [4096]byte

func (c *SilenceChunk) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for written < c.len {
		m, err := w.Write(zeros[:min(c.len-written, int64(len(zeros)))])
		written += int64(m)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
