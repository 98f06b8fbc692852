package playback

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/pcm"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/buffer"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogmetrics"
)

const (
	DefaultCapacity         = 100
	DefaultSilenceThreshold = time.Second
	DefaultIdleWait         = 10 * time.Millisecond
	DefaultSilenceSamples   = 512
	DefaultJoinTimeout      = time.Second
)

var (
	// ErrRunning is returned by Start when the render loop is already running.
	ErrRunning = errors.New("playback: already running")

	// ErrInvalidFrame is returned for float32 input whose length is not a
	// multiple of 4.
	ErrInvalidFrame = errors.New("playback: invalid float32 frame")
)

// Observer is notified when remote audio starts and stops rendering. Each
// transition is reported exactly once. Callbacks run on the goroutine that
// caused the transition and must return quickly.
type Observer interface {
	PlaybackStarted()
	PlaybackEnded()
}

// Option configures an Engine.
type Option func(*Engine)

// WithCapacity sets the queue bound in frames.
func WithCapacity(n int) Option {
	return func(e *Engine) { e.capacity = n }
}

// WithSilenceThreshold sets how long the queue must stay empty before
// playback is considered finished.
func WithSilenceThreshold(d time.Duration) Option {
	return func(e *Engine) { e.threshold = d }
}

// WithIdleWait sets the render loop's sleep after emitting silence.
func WithIdleWait(d time.Duration) Option {
	return func(e *Engine) { e.idleWait = d }
}

// WithSilenceSamples sets the length of the silence frame emitted when the
// queue is empty.
func WithSilenceSamples(n int) Option {
	return func(e *Engine) { e.silenceSamples = n }
}

// WithFormat sets the render format. Default is 24 kHz mono.
func WithFormat(f pcm.Format) Option {
	return func(e *Engine) { e.format = f }
}

// WithObserver registers the start/end observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithJoinTimeout bounds how long Stop waits for the render loop.
func WithJoinTimeout(d time.Duration) Option {
	return func(e *Engine) { e.joinTimeout = d }
}

// WithMetrics attaches collectors.
func WithMetrics(m *dialogmetrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine renders queued PCM frames to a sink on a dedicated loop, padding
// with silence when the queue is empty.
//
// The queue has a single producer (the receive path calling Enqueue) and a
// single consumer (the render loop). When full, the oldest frame is dropped.
type Engine struct {
	sink           pcm.Writer
	format         pcm.Format
	capacity       int
	threshold      time.Duration
	idleWait       time.Duration
	silenceSamples int
	joinTimeout    time.Duration
	metrics        *dialogmetrics.Metrics

	queue   *buffer.RingBuffer[[]byte]
	silence pcm.Chunk

	obsMu    sync.RWMutex
	observer Observer

	active       atomic.Bool
	lastActivity atomic.Int64

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

// New creates an engine writing to sink. The render loop does not run until
// Start.
func New(sink pcm.Writer, opts ...Option) *Engine {
	e := &Engine{
		sink:           sink,
		format:         pcm.L16Mono24K,
		capacity:       DefaultCapacity,
		threshold:      DefaultSilenceThreshold,
		idleWait:       DefaultIdleWait,
		silenceSamples: DefaultSilenceSamples,
		joinTimeout:    DefaultJoinTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.capacity <= 0 {
		e.capacity = DefaultCapacity
	}
	e.queue = buffer.RingN[[]byte](e.capacity)
	e.silence = e.format.SilenceSamples(e.silenceSamples)
	return e
}

// SetObserver replaces the observer. It is meant to be called once while
// wiring components, before audio flows.
func (e *Engine) SetObserver(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observer = o
}

// Start launches the render loop.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopCh != nil {
		return ErrRunning
	}
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(e.stopCh, e.done)
	slog.Info("playback: started", "format", e.format, "capacity", e.capacity)
	return nil
}

// Running reports whether the render loop is running.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopCh != nil
}

// Stop ends the render loop, waits for it up to the join timeout, drops
// queued frames and reports the end of playback if it was active. It is
// safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	stopCh, done := e.stopCh, e.done
	e.stopCh, e.done = nil, nil
	e.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		select {
		case <-done:
		case <-time.After(e.joinTimeout):
			slog.Warn("playback: render loop did not exit in time", "timeout", e.joinTimeout)
		}
		slog.Info("playback: stopped")
	}
	e.queue.Reset()
	e.markEnded()
}

// Enqueue converts little-endian float32 samples to 16-bit PCM and queues
// them for rendering.
func (e *Engine) Enqueue(f32le []byte) error {
	if len(f32le)%4 != 0 {
		return ErrInvalidFrame
	}
	data, err := pcm.Float32LEToS16LE(f32le)
	if err != nil {
		return err
	}
	return e.EnqueuePCM16(data)
}

// EnqueuePCM16 queues 16-bit PCM for rendering. The first frame after an
// idle period reports the start of playback.
func (e *Engine) EnqueuePCM16(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	evicted, err := e.queue.Add(data)
	if err != nil {
		return err
	}
	if evicted {
		e.metrics.PlaybackDropped()
		slog.Debug("playback: queue full, dropped oldest frame", "capacity", e.capacity)
	}
	e.touch()
	e.markStarted()
	return nil
}

// Clear drops all queued frames.
func (e *Engine) Clear() {
	n := e.queue.Len()
	e.queue.Reset()
	if n > 0 {
		slog.Debug("playback: cleared queue", "frames", n)
	}
}

// Len returns the number of queued frames.
func (e *Engine) Len() int {
	return e.queue.Len()
}

// Capacity returns the queue bound.
func (e *Engine) Capacity() int {
	return e.capacity
}

// Active reports whether remote audio is currently rendering.
func (e *Engine) Active() bool {
	return e.active.Load()
}

func (e *Engine) loop(stopCh, done chan struct{}) {
	defer close(done)
	defer e.markEnded()

	timer := time.NewTimer(e.idleWait)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if frame, ok := e.queue.Pop(); ok {
			if err := e.sink.Write(e.format.DataChunk(frame)); err != nil {
				slog.Warn("playback: write frame", "error", err)
			}
			e.touch()
			e.markStarted()
			continue
		}

		if err := e.sink.Write(e.silence); err != nil {
			slog.Warn("playback: write silence", "error", err)
		}
		if e.active.Load() && e.idleFor() > e.threshold {
			e.markEnded()
		}

		timer.Reset(e.idleWait)
		select {
		case <-stopCh:
			return
		case <-timer.C:
		}
	}
}

func (e *Engine) touch() {
	e.lastActivity.Store(time.Now().UnixNano())
}

func (e *Engine) idleFor() time.Duration {
	return time.Since(time.Unix(0, e.lastActivity.Load()))
}

func (e *Engine) markStarted() {
	if !e.active.CompareAndSwap(false, true) {
		return
	}
	e.metrics.SetPlaybackActive(true)
	if o := e.currentObserver(); o != nil {
		o.PlaybackStarted()
	}
}

func (e *Engine) markEnded() {
	if !e.active.CompareAndSwap(true, false) {
		return
	}
	e.metrics.SetPlaybackActive(false)
	if o := e.currentObserver(); o != nil {
		o.PlaybackEnded()
	}
}

func (e *Engine) currentObserver() Observer {
	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	return e.observer
}
