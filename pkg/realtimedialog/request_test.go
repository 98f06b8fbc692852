package realtimedialog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/capture"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogproto"
)

type sentFrame struct {
	cfg dialogproto.Config
	msg *dialogproto.Message
}

// fakeSender records frames. When gate is non-nil each send waits on it.
type fakeSender struct {
	codec *dialogproto.Codec
	gate  chan struct{}
	err   error

	mu     sync.Mutex
	frames []sentFrame
}

func newFakeSender() *fakeSender {
	return &fakeSender{codec: dialogproto.NewCodec(dialogproto.DefaultConfig())}
}

func (s *fakeSender) Codec() *dialogproto.Codec { return s.codec }

func (s *fakeSender) SendWith(cfg dialogproto.Config, msg *dialogproto.Message) error {
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return s.err
	}
	// Encode to make sure every frame is valid on the wire.
	if _, err := dialogproto.Marshal(cfg, msg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, sentFrame{cfg, msg})
	return nil
}

func (s *fakeSender) sent() []sentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentFrame(nil), s.frames...)
}

// fakeRecorder delivers frames pushed through feed.
type fakeRecorder struct {
	mu      sync.Mutex
	handler capture.FrameHandler
	paused  bool
	stops   int
	closes  int
}

func (r *fakeRecorder) Start(h capture.FrameHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
	return nil
}

func (r *fakeRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = nil
	r.stops++
}

func (r *fakeRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil
}

func (r *fakeRecorder) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
}

func (r *fakeRecorder) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = false
}

func (r *fakeRecorder) isPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

func (r *fakeRecorder) feed(frame []byte) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		h.HandleFrame(frame)
	}
}

func wait(t *testing.T, c *Call) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Wait(ctx)
}

func TestRequestControlFrames(t *testing.T) {
	s := newFakeSender()
	h := NewRequestHandler(s, WithFinishGrace(time.Millisecond))
	defer h.Close()
	ctx := context.Background()

	calls := []*Call{
		h.StartConnection(ctx),
		h.StartSession(ctx, "s1", DefaultConfig().StartSessionPayload()),
		h.SayHello(ctx, "s1", SayHelloPayload{Content: "你好"}),
		h.ChatTTSText(ctx, "s1", ChatTTSTextPayload{Start: true, End: true, Content: "hi"}),
		h.FinishSession(ctx, "s1"),
		h.FinishConnection(ctx),
	}
	for _, c := range calls {
		if err := wait(t, c); err != nil {
			t.Fatalf("%s: %v", c.Event, err)
		}
	}

	frames := s.sent()
	want := []struct {
		ev      dialogproto.Event
		session string
		payload string
	}{
		{dialogproto.EventStartConnection, "", `{}`},
		{dialogproto.EventStartSession, "s1", ""},
		{dialogproto.EventSayHello, "s1", `{"content":"你好"}`},
		{dialogproto.EventChatTTSText, "s1", `{"start":true,"end":true,"content":"hi"}`},
		{dialogproto.EventFinishSession, "s1", `{}`},
		{dialogproto.EventFinishConnection, "", `{}`},
	}
	if len(frames) != len(want) {
		t.Fatalf("sent %d frames, want %d", len(frames), len(want))
	}
	for i, w := range want {
		f := frames[i]
		if f.msg.Type != dialogproto.TypeFullClient || !f.msg.Flags.ContainsEvent() {
			t.Errorf("%d: type=%v flags=%v", i, f.msg.Type, f.msg.Flags)
		}
		if f.msg.Event != w.ev || f.msg.SessionID != w.session {
			t.Errorf("%d: event=%v session=%q", i, f.msg.Event, f.msg.SessionID)
		}
		if w.payload != "" && string(f.msg.Payload) != w.payload {
			t.Errorf("%d: payload=%s", i, f.msg.Payload)
		}
		if f.cfg.Serialization != dialogproto.SerializationJSON {
			t.Errorf("%d: serialization=%v", i, f.cfg.Serialization)
		}
	}

	var start map[string]any
	if err := json.Unmarshal(frames[1].msg.Payload, &start); err != nil {
		t.Fatal(err)
	}
	audio := start["tts"].(map[string]any)["audio_config"].(map[string]any)
	if audio["sample_rate"] != float64(24000) || audio["format"] != "pcm" || audio["channel"] != float64(1) {
		t.Errorf("audio_config=%v", audio)
	}
	extra := start["dialog"].(map[string]any)["extra"].(map[string]any)
	if extra["strict_audit"] != false {
		t.Errorf("extra=%v", extra)
	}
}

func TestRequestProgramOrder(t *testing.T) {
	s := newFakeSender()
	h := NewRequestHandler(s)
	defer h.Close()

	var last *Call
	for i := 0; i < 200; i++ {
		last = h.ChatTTSText(context.Background(), "s1", ChatTTSTextPayload{Content: string(rune('a' + i%26))})
	}
	if err := wait(t, last); err != nil {
		t.Fatal(err)
	}
	for i, f := range s.sent() {
		var p ChatTTSTextPayload
		json.Unmarshal(f.msg.Payload, &p)
		if p.Content != string(rune('a'+i%26)) {
			t.Fatalf("frame %d out of order: %q", i, p.Content)
		}
	}
}

func TestRequestSendFailure(t *testing.T) {
	s := newFakeSender()
	s.err = errors.New("broken pipe")
	h := NewRequestHandler(s)
	defer h.Close()

	c := h.StartConnection(context.Background())
	err := wait(t, c)
	if err == nil || !errors.Is(err, s.err) {
		t.Errorf("err=%v", err)
	}
	if c.Err() != err {
		t.Errorf("Err()=%v", c.Err())
	}
}

func TestRequestEncodeFailure(t *testing.T) {
	h := NewRequestHandler(newFakeSender())
	defer h.Close()
	c := h.StartSession(context.Background(), "s1", func() {})
	select {
	case <-c.Done():
	default:
		t.Fatal("encode failure should complete immediately")
	}
	if c.Err() == nil {
		t.Error("expected error")
	}
}

func TestRequestCloseFailsPending(t *testing.T) {
	s := newFakeSender()
	s.gate = make(chan struct{})
	h := NewRequestHandler(s, WithSendQueueSize(4))

	first := h.StartConnection(context.Background())
	time.Sleep(10 * time.Millisecond) // sender is now blocked on first
	queued := h.StartSession(context.Background(), "s1", struct{}{})

	done := make(chan struct{})
	go func() {
		h.Close()
		close(done)
	}()
	close(s.gate)
	<-done

	if err := wait(t, first); err != nil {
		t.Errorf("first: %v", err)
	}
	if err := wait(t, queued); err != nil && !errors.Is(err, ErrClosed) {
		t.Errorf("queued: %v", err)
	}
	if err := wait(t, h.FinishConnection(context.Background())); !errors.Is(err, ErrClosed) {
		t.Errorf("after close: %v", err)
	}
	h.Close()
}

func TestRequestCloseRacingCallsNeverHang(t *testing.T) {
	for range 200 {
		h := NewRequestHandler(newFakeSender(), WithSendQueueSize(64))
		calls := make(chan *Call, 16)
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				calls <- h.SayHello(context.Background(), "s1", SayHelloPayload{Content: "hi"})
			}()
		}
		h.Close()
		wg.Wait()
		close(calls)
		for c := range calls {
			if err := wait(t, c); errors.Is(err, context.DeadlineExceeded) {
				t.Fatal("call never completed after Close")
			}
		}
	}
}

func TestRequestFinishConnectionGrace(t *testing.T) {
	h := NewRequestHandler(newFakeSender(), WithFinishGrace(50*time.Millisecond))
	defer h.Close()

	start := time.Now()
	if err := wait(t, h.FinishConnection(context.Background())); err != nil {
		t.Fatal(err)
	}
	if d := time.Since(start); d < 50*time.Millisecond {
		t.Errorf("completed after %v, before the grace period", d)
	}
}

func TestRequestAudio(t *testing.T) {
	s := newFakeSender()
	rec := &fakeRecorder{}
	h := NewRequestHandler(s, WithRecorder(rec))
	defer h.Close()

	if err := h.StartSendingAudio("s1"); err != nil {
		t.Fatal(err)
	}
	if err := h.StartSendingAudio("s1"); !errors.Is(err, ErrAlreadySending) {
		t.Errorf("err=%v", err)
	}

	frame := make([]byte, 320)
	frame[0] = 9
	rec.feed(frame)
	frame[0] = 0 // the handler must have copied the frame
	rec.feed(frame)

	deadline := time.Now().Add(time.Second)
	for len(s.sent()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	sent := s.sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d audio frames", len(sent))
	}
	f := sent[0]
	if f.msg.Type != dialogproto.TypeAudioOnlyClient || f.msg.Event != dialogproto.EventTaskRequest || f.msg.SessionID != "s1" {
		t.Errorf("frame=%v", f.msg)
	}
	if f.cfg.Serialization != dialogproto.SerializationRaw {
		t.Errorf("serialization=%v", f.cfg.Serialization)
	}
	if f.msg.Payload[0] != 9 {
		t.Error("audio payload was not copied")
	}
	if s.codec.Config().Serialization != dialogproto.SerializationJSON {
		t.Error("codec default changed")
	}

	h.PauseRecording()
	if !rec.isPaused() {
		t.Error("recorder not paused")
	}
	h.ResumeRecording()
	if rec.isPaused() {
		t.Error("recorder not resumed")
	}

	h.StopSendingAudio()
	h.StopSendingAudio()
	rec.feed(frame)
	h.Release()
	if rec.stops != 1 || rec.closes != 1 {
		t.Errorf("stops=%d closes=%d", rec.stops, rec.closes)
	}
}

func TestRequestAudioDropsWhenFull(t *testing.T) {
	s := newFakeSender()
	s.gate = make(chan struct{})
	rec := &fakeRecorder{}
	h := NewRequestHandler(s, WithRecorder(rec), WithSendQueueSize(2))

	h.StartSendingAudio("s1")
	for i := 0; i < 10; i++ {
		rec.feed(make([]byte, 320))
	}
	// One frame is held by the blocked sender, two are queued.
	if got := h.Dropped(); got < 7 {
		t.Errorf("dropped=%d", got)
	}
	close(s.gate)
	h.Close()
}

func TestRequestNoRecorder(t *testing.T) {
	h := NewRequestHandler(newFakeSender())
	defer h.Close()
	if err := h.StartSendingAudio("s1"); !errors.Is(err, ErrNoRecorder) {
		t.Errorf("err=%v", err)
	}
	h.PauseRecording()
	h.Release()
}
