package dialogtrace

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogproto"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogws"
)

func TestRecorderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	rec.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	start := dialogproto.NewEventMessage(dialogproto.TypeFullClient, dialogproto.EventStartSession, "s1", []byte(`{"dialog":{}}`))
	audio := dialogproto.NewEventMessage(dialogproto.TypeAudioOnlyServer, dialogproto.EventTTSResponse, "s1", make([]byte, 640))
	serr := dialogproto.NewMessage(dialogproto.TypeError, dialogproto.FlagNoSeq)
	serr.ErrorCode = 1001
	serr.Payload = []byte(`{"error":"denied"}`)

	rec.TapFrame(dialogws.Outbound, start)
	rec.TapFrame(dialogws.Inbound, audio)
	rec.TapFrame(dialogws.Inbound, serr)
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rec.Count() != 3 {
		t.Fatalf("Count = %d, want 3", rec.Count())
	}

	var got []Record
	for r, err := range Read(&buf) {
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}

	if got[0].Direction != "out" || got[0].Event != int32(dialogproto.EventStartSession) || got[0].SessionID != "s1" {
		t.Errorf("record 0 = %+v", got[0])
	}
	if got[0].Payload != `{"dialog":{}}` {
		t.Errorf("record 0 payload = %q", got[0].Payload)
	}
	if !got[0].Time.Equal(base.Add(time.Millisecond)) {
		t.Errorf("record 0 time = %v", got[0].Time)
	}
	if got[1].Direction != "in" || got[1].Size != 640 || got[1].Payload != "" {
		t.Errorf("audio record = %+v", got[1])
	}
	if got[2].ErrorCode != 1001 || got[2].Event != 0 || got[2].Payload != `{"error":"denied"}` {
		t.Errorf("error record = %+v", got[2])
	}
}

func TestReadCorrupt(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	rec.TapFrame(dialogws.Outbound, dialogproto.NewEventMessage(dialogproto.TypeFullClient, dialogproto.EventStartConnection, "", []byte(`{}`)))
	if err := rec.Flush(); err != nil {
		t.Fatal(err)
	}
	buf.WriteByte(0xc1) // never used in msgpack

	var n int
	var lastErr error
	for _, err := range Read(&buf) {
		if err != nil {
			lastErr = err
			break
		}
		n++
	}
	if n != 1 {
		t.Errorf("decoded %d records before the error, want 1", n)
	}
	if lastErr == nil {
		t.Error("expected a decode error")
	}
}

func TestReadStopsEarly(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	for range 5 {
		rec.TapFrame(dialogws.Inbound, dialogproto.NewEventMessage(dialogproto.TypeAudioOnlyServer, dialogproto.EventTTSResponse, "s", []byte{1, 2}))
	}
	rec.Flush()

	n := 0
	for range Read(&buf) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("n = %d", n)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRecorderKeepsFirstError(t *testing.T) {
	rec := NewRecorder(failWriter{})
	big := make([]byte, 8192)
	msg := dialogproto.NewEventMessage(dialogproto.TypeFullServer, dialogproto.EventChatResponse, "s", big)
	rec.TapFrame(dialogws.Inbound, msg)
	rec.TapFrame(dialogws.Inbound, msg)
	if err := rec.Close(); err == nil {
		t.Fatal("Close() = nil, want write error")
	}
	if rec.Count() > 1 {
		t.Errorf("Count = %d after a failed write", rec.Count())
	}
}

func TestCreateAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.msgpack")
	rec, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	rec.TapFrame(dialogws.Outbound, dialogproto.NewEventMessage(dialogproto.TypeFullClient, dialogproto.EventFinishConnection, "", []byte(`{}`)))
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	recs, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].EventName != dialogproto.EventFinishConnection.String() {
		t.Errorf("records = %+v", recs)
	}
}
