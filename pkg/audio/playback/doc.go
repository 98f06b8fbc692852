// Package playback renders remote speech. Frames arrive as float32 samples
// from the network, are converted to 16-bit PCM and queued in a bounded
// drop-oldest ring; a render loop writes them to a pcm.Writer and fills gaps
// with silence.
//
// The engine tracks whether remote audio is actively playing and reports
// each start and end to an Observer, which the dialog client uses to mute
// the microphone while the agent speaks.
package playback
