package capture

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/pcm"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogmetrics"
)

const (
	DefaultIdleWait    = 50 * time.Millisecond
	DefaultJoinTimeout = time.Second
)

// ErrRunning is returned by Start when the capture loop is already running.
var ErrRunning = errors.New("capture: already running")

// Source yields fixed-size PCM frames. ReadChunk should block for at most
// one frame period; a microphone returns when the device buffer fills.
type Source interface {
	ReadChunk() (pcm.Chunk, error)
}

// FrameHandler receives captured frames on the capture goroutine. It must
// not block.
type FrameHandler interface {
	HandleFrame(frame []byte)
}

// HandlerFunc adapts a function to FrameHandler.
type HandlerFunc func(frame []byte)

// HandleFrame calls f(frame).
func (f HandlerFunc) HandleFrame(frame []byte) { f(frame) }

// Option configures an Engine.
type Option func(*Engine)

// WithIdleWait sets how long the loop sleeps per iteration while paused.
func WithIdleWait(d time.Duration) Option {
	return func(e *Engine) { e.idleWait = d }
}

// WithJoinTimeout bounds how long Stop waits for the loop to exit.
func WithJoinTimeout(d time.Duration) Option {
	return func(e *Engine) { e.joinTimeout = d }
}

// WithMetrics attaches collectors.
func WithMetrics(m *dialogmetrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine pulls frames from a Source on a dedicated goroutine and hands them
// to a FrameHandler.
//
// Pause keeps the loop and the device open but stops reading, so a short
// mute does not pay for reopening the device.
type Engine struct {
	src         Source
	idleWait    time.Duration
	joinTimeout time.Duration
	metrics     *dialogmetrics.Metrics

	paused atomic.Bool

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}

	exhausted     chan struct{}
	exhaustedOnce sync.Once
	closeOnce     sync.Once
}

// New creates an engine reading from src.
func New(src Source, opts ...Option) *Engine {
	e := &Engine{
		src:         src,
		idleWait:    DefaultIdleWait,
		joinTimeout: DefaultJoinTimeout,
		exhausted:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the capture loop delivering frames to h.
func (e *Engine) Start(h FrameHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done != nil && !isClosed(e.done) {
		return ErrRunning
	}
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(h, e.stopCh, e.done)
	slog.Info("capture: started")
	return nil
}

// Done returns a channel closed when the current loop exits, either from
// Stop or because the source is exhausted. It is nil before Start.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Exhausted is closed once the source reports end of input. Unlike Done it
// exists from New, so it can be selected on before Start.
func (e *Engine) Exhausted() <-chan struct{} {
	return e.exhausted
}

// Running reports whether the capture loop is running.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done != nil && !isClosed(e.done)
}

// Stop terminates the loop and waits for it to exit, up to the join
// timeout. The source stays open. It is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	stopCh, done := e.stopCh, e.done
	e.stopCh = nil
	e.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	select {
	case <-done:
	case <-time.After(e.joinTimeout):
		slog.Warn("capture: loop did not exit in time", "timeout", e.joinTimeout)
	}
	slog.Info("capture: stopped")
}

// Close stops the loop and closes the source if it is an io.Closer.
func (e *Engine) Close() error {
	e.Stop()
	var err error
	e.closeOnce.Do(func() {
		if c, ok := e.src.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// Pause stops delivering frames without stopping the loop.
func (e *Engine) Pause() {
	if e.paused.CompareAndSwap(false, true) {
		e.metrics.SetCapturePaused(true)
		slog.Debug("capture: paused")
	}
}

// Resume continues delivering frames after Pause.
func (e *Engine) Resume() {
	if e.paused.CompareAndSwap(true, false) {
		e.metrics.SetCapturePaused(false)
		slog.Debug("capture: resumed")
	}
}

// Paused reports whether capture is paused.
func (e *Engine) Paused() bool {
	return e.paused.Load()
}

func (e *Engine) loop(h FrameHandler, stopCh, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if e.paused.Load() {
			if !e.sleep(stopCh) {
				return
			}
			continue
		}

		chunk, err := e.src.ReadChunk()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				slog.Info("capture: source exhausted")
				e.exhaustedOnce.Do(func() { close(e.exhausted) })
				return
			}
			slog.Warn("capture: read", "error", err)
			if !e.sleep(stopCh) {
				return
			}
			continue
		}

		// A frame read across a pause or stop is discarded.
		if e.paused.Load() || isClosed(stopCh) {
			continue
		}
		if frame := pcm.Bytes(chunk); len(frame) > 0 {
			h.HandleFrame(frame)
		}
	}
}

func (e *Engine) sleep(stopCh chan struct{}) bool {
	t := time.NewTimer(e.idleWait)
	defer t.Stop()
	select {
	case <-stopCh:
		return false
	case <-t.C:
		return true
	}
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
