// Package buffer provides a thread-safe, fixed-capacity ring that drops its
// oldest element when full.
//
// The playback engine queues decoded audio frames in a RingBuffer so a slow
// renderer falls behind by at most the ring capacity; the CLI keeps recent
// log lines in one for the TUI.
//
// Example usage:
//
//	rb := buffer.RingN[[]byte](100)
//	if evicted, _ := rb.Add(frame); evicted {
//		// the oldest frame was discarded
//	}
//	if f, ok := rb.Pop(); ok {
//		play(f)
//	}
package buffer
