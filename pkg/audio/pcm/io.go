package pcm

import "bytes"

// Writer consumes chunks: a speaker, a file, a test buffer.
type Writer interface {
	Write(Chunk) error
}

// WriteFunc adapts a function to Writer.
type WriteFunc func(Chunk) error

func (f WriteFunc) Write(c Chunk) error { return f(c) }

// Discard accepts every chunk and does nothing.
var Discard Writer = WriteFunc(func(Chunk) error { return nil })

// Bytes returns the samples of c. A DataChunk's slice is returned as is.
func Bytes(c Chunk) []byte {
	if dc, ok := c.(*DataChunk); ok {
		return dc.Data
	}
	var buf bytes.Buffer
	buf.Grow(int(c.Len()))
	c.WriteTo(&buf)
	return buf.Bytes()
}
