// Package capture reads microphone audio on a dedicated goroutine and
// delivers it as fixed-size 16-bit PCM frames (10ms at 16 kHz by default).
//
// The Engine can be paused and resumed without releasing the device. Any
// Source works: the PortAudio microphone (built with -tags portaudio), a
// PCM file paced in real time, or a resampled recording.
package capture
