// Package pcm provides types and utilities for 16-bit mono PCM audio.
//
// Key types:
//   - Format: sample rate of a 16-bit little-endian mono stream
//   - Chunk: a piece of audio; DataChunk holds samples, SilenceChunk zeros
//   - Writer: destination for chunks (speaker, file, discard)
//
// The dialog service sends 16 kHz PCM upstream and returns 24 kHz float32
// samples; Float32LEToS16LE converts the latter for rendering.
//
// Example usage:
//
//	format := pcm.L16Mono16K
//	frame := format.BytesInDuration(10 * time.Millisecond) // 320 bytes
//	silence := pcm.L16Mono24K.SilenceSamples(512)
package pcm
