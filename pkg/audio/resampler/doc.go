// Package resampler converts 16-bit PCM between sample rates using a pure Go
// polyphase resampler (github.com/tphakala/go-audio-resampling).
//
// The dialog client uses it to feed recorded files of any rate into the
// 16 kHz capture path. Stereo input is downmixed to mono.
//
// Example usage:
//
//	r, err := resampler.New(file, resampler.Format{SampleRate: 44100, Stereo: true},
//		resampler.FromPCM(pcm.L16Mono16K))
//	if err != nil {
//	    return err
//	}
//	io.Copy(output, r)
package resampler
