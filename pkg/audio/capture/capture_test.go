package capture

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/pcm"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/resampler"
)

// toneSource emits an endless stream of 320-byte frames, one per millisecond.
type toneSource struct {
	reads  atomic.Int32
	closed atomic.Bool
}

func (s *toneSource) ReadChunk() (pcm.Chunk, error) {
	if s.closed.Load() {
		return nil, io.EOF
	}
	s.reads.Add(1)
	time.Sleep(time.Millisecond)
	return pcm.L16Mono16K.DataChunk(bytes.Repeat([]byte{1}, 320)), nil
}

func (s *toneSource) Close() error {
	s.closed.Store(true)
	return nil
}

type frameCounter struct {
	mu     sync.Mutex
	frames int
	bytes  int
}

func (c *frameCounter) HandleFrame(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	c.bytes += len(frame)
}

func (c *frameCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestEnginePauseResume(t *testing.T) {
	src := &toneSource{}
	e := New(src, WithIdleWait(5*time.Millisecond))
	fc := &frameCounter{}
	if err := e.Start(fc); err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	waitFor(t, func() bool { return fc.count() >= 5 })

	e.Pause()
	if !e.Paused() {
		t.Fatal("not paused")
	}
	time.Sleep(10 * time.Millisecond) // let an in-flight read finish
	paused := fc.count()
	reads := src.reads.Load()
	time.Sleep(50 * time.Millisecond)
	if got := fc.count(); got != paused {
		t.Errorf("frames delivered while paused: %d -> %d", paused, got)
	}
	if got := src.reads.Load(); got > reads+1 {
		t.Errorf("device read while paused: %d -> %d", reads, got)
	}
	if !e.Running() {
		t.Error("loop exited while paused")
	}

	e.Resume()
	waitFor(t, func() bool { return fc.count() > paused+3 })
}

func TestEngineStopIdempotent(t *testing.T) {
	src := &toneSource{}
	e := New(src)
	e.Start(&frameCounter{})
	if err := e.Start(&frameCounter{}); err != ErrRunning {
		t.Errorf("err=%v", err)
	}

	e.Stop()
	e.Stop()
	if e.Running() {
		t.Error("still running")
	}
	if src.closed.Load() {
		t.Error("stop closed the source")
	}

	if err := e.Start(&frameCounter{}); err != nil {
		t.Errorf("restart: %v", err)
	}
	e.Close()
	e.Close()
	if !src.closed.Load() {
		t.Error("close did not close the source")
	}
}

func TestReaderSourceFrames(t *testing.T) {
	// 2.5 frames of audio
	data := bytes.Repeat([]byte{7}, 800)
	src := NewReaderSource(bytes.NewReader(data), pcm.L16Mono16K)

	e := New(src)
	fc := &frameCounter{}
	e.Start(fc)
	select {
	case <-e.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not finish at EOF")
	}
	if fc.frames != 3 || fc.bytes != 960 {
		t.Errorf("frames=%d bytes=%d", fc.frames, fc.bytes)
	}
}

func TestReaderSourcePadsLastFrame(t *testing.T) {
	src := NewReaderSource(bytes.NewReader([]byte{1, 2, 3, 4}), pcm.L16Mono16K)
	c, err := src.ReadChunk()
	if err != nil {
		t.Fatal(err)
	}
	b := pcm.Bytes(c)
	if len(b) != 320 || b[3] != 4 || b[4] != 0 {
		t.Errorf("frame len=%d", len(b))
	}
	if _, err := src.ReadChunk(); err != io.EOF {
		t.Errorf("err=%v", err)
	}
}

func TestReaderSourceRealtime(t *testing.T) {
	data := make([]byte, 320*5)
	src := NewReaderSource(bytes.NewReader(data), pcm.L16Mono16K, WithRealtime(true))
	start := time.Now()
	for {
		if _, err := src.ReadChunk(); err != nil {
			break
		}
	}
	if d := time.Since(start); d < 35*time.Millisecond {
		t.Errorf("five 10ms frames read in %v", d)
	}
}

func TestResamplingSource(t *testing.T) {
	// 100ms of 48k silence becomes about ten 10ms frames at 16k.
	data := make([]byte, 4800*2)
	src, err := NewResamplingSource(bytes.NewReader(data), resampler.Format{SampleRate: 48000}, pcm.L16Mono16K)
	if err != nil {
		t.Fatal(err)
	}
	var frames int
	for {
		if _, err := src.ReadChunk(); err != nil {
			break
		}
		frames++
	}
	if frames < 8 || frames > 11 {
		t.Errorf("frames=%d", frames)
	}
	if err := src.Close(); err != nil {
		t.Error(err)
	}
}

func TestEngineExhausted(t *testing.T) {
	e := New(NewReaderSource(bytes.NewReader(make([]byte, 640)), pcm.L16Mono16K))
	exhausted := e.Exhausted()
	if exhausted == nil {
		t.Fatal("Exhausted is nil before Start")
	}
	if err := e.Start(HandlerFunc(func([]byte) {})); err != nil {
		t.Fatal(err)
	}
	select {
	case <-exhausted:
	case <-time.After(time.Second):
		t.Fatal("Exhausted not closed at EOF")
	}

	// Stopping an endless source is not exhaustion.
	tone := New(&toneSource{})
	tone.Start(HandlerFunc(func([]byte) {}))
	tone.Stop()
	select {
	case <-tone.Exhausted():
		t.Error("Exhausted closed by Stop")
	default:
	}
}
