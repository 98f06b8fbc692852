package resampler

import "github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/pcm"

// Format describes a 16-bit signed little-endian PCM stream.
type Format struct {
	// SampleRate is the sample rate in Hz (e.g., 44100, 48000).
	SampleRate int

	// Stereo indicates interleaved 2-channel samples; mono otherwise.
	Stereo bool
}

// FromPCM returns the Format matching a pcm.Format.
func FromPCM(f pcm.Format) Format {
	return Format{SampleRate: f.SampleRate()}
}

// Channels returns 2 for stereo and 1 for mono.
func (f Format) Channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

// FrameBytes returns the size of one sample frame across all channels.
func (f Format) FrameBytes() int {
	return 2 * f.Channels()
}
