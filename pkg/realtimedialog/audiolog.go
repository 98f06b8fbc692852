package realtimedialog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/pcm"
)

// AudioLog keeps the audio received from the server, as float32
// little-endian segments in arrival order.
type AudioLog struct {
	mu       sync.Mutex
	segments [][]byte
	size     int
}

// Append stores a copy of seg.
func (l *AudioLog) Append(seg []byte) {
	if len(seg) == 0 {
		return
	}
	c := make([]byte, len(seg))
	copy(c, seg)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.segments = append(l.segments, c)
	l.size += len(c)
}

// Clear drops all segments.
func (l *AudioLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.segments = nil
	l.size = 0
}

// TotalSize returns the number of stored bytes.
func (l *AudioLog) TotalSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Segments returns the stored segments. The slices must not be modified.
func (l *AudioLog) Segments() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.segments...)
}

// WriteTo writes the concatenated float32 audio to w.
func (l *AudioLog) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, seg := range l.Segments() {
		n, err := w.Write(seg)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// SavePCM16 converts the log to 16-bit PCM and writes it to path.
func (l *AudioLog) SavePCM16(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("realtimedialog: save audio: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, seg := range l.Segments() {
		data, err := pcm.Float32LEToS16LE(seg)
		if err != nil {
			f.Close()
			return fmt.Errorf("realtimedialog: save audio: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			f.Close()
			return fmt.Errorf("realtimedialog: save audio: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("realtimedialog: save audio: %w", err)
	}
	return f.Close()
}
