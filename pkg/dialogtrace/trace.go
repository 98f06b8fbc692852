package dialogtrace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogproto"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogws"
)

// Record is one traced frame. Audio payloads are not kept, only their size.
type Record struct {
	Time      time.Time `msgpack:"t" json:"time" yaml:"time"`
	Direction string    `msgpack:"d" json:"direction" yaml:"direction"`
	Type      string    `msgpack:"mt" json:"type" yaml:"type"`
	Event     int32     `msgpack:"ev,omitempty" json:"event,omitempty" yaml:"event,omitempty"`
	EventName string    `msgpack:"en,omitempty" json:"event_name,omitempty" yaml:"event_name,omitempty"`
	SessionID string    `msgpack:"sid,omitempty" json:"session_id,omitempty" yaml:"session_id,omitempty"`
	ConnectID string    `msgpack:"cid,omitempty" json:"connect_id,omitempty" yaml:"connect_id,omitempty"`
	Sequence  int32     `msgpack:"seq,omitempty" json:"sequence,omitempty" yaml:"sequence,omitempty"`
	ErrorCode uint32    `msgpack:"code,omitempty" json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Size      int       `msgpack:"n" json:"size" yaml:"size"`
	Payload   string    `msgpack:"p,omitempty" json:"payload,omitempty" yaml:"payload,omitempty"`
}

// NewRecord captures msg as seen in direction dir at time t.
func NewRecord(t time.Time, dir dialogws.Direction, msg *dialogproto.Message) Record {
	r := Record{
		Time:      t,
		Direction: dir.String(),
		Type:      msg.Type.String(),
		SessionID: msg.SessionID,
		ConnectID: msg.ConnectID,
		Sequence:  msg.Sequence,
		ErrorCode: msg.ErrorCode,
		Size:      len(msg.Payload),
	}
	if msg.Flags.ContainsEvent() {
		r.Event = int32(msg.Event)
		r.EventName = msg.Event.String()
	}
	if !msg.IsAudio() {
		r.Payload = string(msg.Payload)
	}
	return r
}

// Recorder streams records for every frame it taps. It implements
// dialogws.Tap and is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	w      *bufio.Writer
	enc    *msgpack.Encoder
	closer io.Closer
	count  int
	err    error
	now    func() time.Time
}

// NewRecorder writes records to w.
func NewRecorder(w io.Writer) *Recorder {
	bw := bufio.NewWriter(w)
	enc := msgpack.NewEncoder(bw)
	enc.UseCompactInts(true)
	return &Recorder{w: bw, enc: enc, now: time.Now}
}

// Create creates or truncates the file at path and records into it.
func Create(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("dialogtrace: %w", err)
	}
	r := NewRecorder(f)
	r.closer = f
	return r, nil
}

// TapFrame records msg. The first write error is kept and later frames are
// ignored.
func (r *Recorder) TapFrame(dir dialogws.Direction, msg *dialogproto.Message) {
	rec := NewRecord(r.now(), dir, msg)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := r.enc.Encode(&rec); err != nil {
		r.err = fmt.Errorf("dialogtrace: encode: %w", err)
		slog.Warn("dialogtrace: recording stopped", "error", err)
		return
	}
	r.count++
}

// Count returns the number of records written.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Flush writes buffered records to the underlying writer.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	return r.w.Flush()
}

// Close flushes and, for recorders made by Create, closes the file.
func (r *Recorder) Close() error {
	err := r.Flush()
	if r.closer != nil {
		err = errors.Join(err, r.closer.Close())
	}
	return err
}

// Read decodes records from r until EOF.
func Read(r io.Reader) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		dec := msgpack.NewDecoder(bufio.NewReader(r))
		for {
			var rec Record
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Record{}, fmt.Errorf("dialogtrace: decode: %w", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// ReadFile reads every record in the file at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dialogtrace: %w", err)
	}
	defer f.Close()
	var out []Record
	for rec, err := range Read(f) {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}
