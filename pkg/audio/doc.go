// Package audio groups the audio packages of the dialog client.
//
//   - pcm: 16-bit mono formats, chunks, writers and float conversion
//   - resampler: sample rate conversion of PCM streams
//   - capture: microphone loop with pause and resume
//   - playback: bounded playback queue with start and end detection
//   - portaudio: sound card source and sink, built with -tags portaudio
package audio
