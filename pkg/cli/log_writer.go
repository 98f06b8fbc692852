package cli

import (
	"strings"
	"sync"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/buffer"
)

// LogWriter keeps the last lines written to it, for showing logs inside
// the TUI instead of on the terminal.
type LogWriter struct {
	mu      sync.Mutex
	lines   *buffer.RingBuffer[string]
	partial strings.Builder
}

// NewLogWriter keeps up to maxLines lines.
func NewLogWriter(maxLines int) *LogWriter {
	return &LogWriter{lines: buffer.RingN[string](maxLines)}
}

// Write splits p into lines. A trailing fragment without a newline is held
// until the rest of the line arrives.
func (w *LogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.partial.Write(p)
	text := w.partial.String()
	last := strings.LastIndexByte(text, '\n')
	if last < 0 {
		return len(p), nil
	}
	for line := range strings.SplitSeq(text[:last], "\n") {
		if _, err := w.lines.Add(line); err != nil {
			return len(p), err
		}
	}
	w.partial.Reset()
	w.partial.WriteString(text[last+1:])
	return len(p), nil
}

// Lines returns the retained lines, oldest first.
func (w *LogWriter) Lines() []string {
	return w.lines.Items()
}

// Dropped returns how many lines were pushed out by newer ones.
func (w *LogWriter) Dropped() int64 {
	return w.lines.Dropped()
}
