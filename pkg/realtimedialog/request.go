package realtimedialog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/capture"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogmetrics"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogproto"
)

const (
	DefaultSendQueueSize = 64
	tracerName           = "realtimedialog"
)

// Sender writes encoded frames to the connection. *dialogws.Client
// implements it.
type Sender interface {
	SendWith(cfg dialogproto.Config, msg *dialogproto.Message) error
	Codec() *dialogproto.Codec
}

// Recorder is the microphone side. *capture.Engine implements it.
type Recorder interface {
	Start(h capture.FrameHandler) error
	Stop()
	Close() error
	Pause()
	Resume()
}

// Call is the pending result of a control request.
type Call struct {
	Event dialogproto.Event

	done chan struct{}
	once sync.Once
	err  error
}

func newCall(ev dialogproto.Event) *Call {
	return &Call{Event: ev, done: make(chan struct{})}
}

func (c *Call) complete(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done is closed when the request has been written, or has failed.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Err returns the outcome once Done is closed, and nil before.
func (c *Call) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the call completes or ctx is done.
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestOption configures a RequestHandler.
type RequestOption func(*RequestHandler)

// WithRecorder sets the microphone that StartSendingAudio streams from.
func WithRecorder(r Recorder) RequestOption {
	return func(h *RequestHandler) { h.recorder = r }
}

// WithSendQueueSize sets how many frames may wait for the sender.
func WithSendQueueSize(n int) RequestOption {
	return func(h *RequestHandler) { h.queueSize = n }
}

// WithFinishGrace sets how long FinishConnection waits after sending, for
// the server's close handshake.
func WithFinishGrace(d time.Duration) RequestOption {
	return func(h *RequestHandler) { h.finishGrace = d }
}

// WithTracer replaces the tracer. The default comes from the global
// provider.
func WithTracer(t trace.Tracer) RequestOption {
	return func(h *RequestHandler) { h.tracer = t }
}

// WithRequestMetrics attaches collectors.
func WithRequestMetrics(m *dialogmetrics.Metrics) RequestOption {
	return func(h *RequestHandler) { h.metrics = m }
}

type outbound struct {
	cfg      dialogproto.Config
	msg      *dialogproto.Message
	call     *Call
	span     trace.Span
	enqueued time.Time
	grace    time.Duration
}

// RequestHandler frames dialog operations and hands them to a single sender
// goroutine, so frames reach the wire in the order they were requested.
//
// Control requests return immediately with a *Call. Audio frames from the
// recorder are queued without blocking and dropped when the queue is full.
type RequestHandler struct {
	sender      Sender
	recorder    Recorder
	queueSize   int
	finishGrace time.Duration
	tracer      trace.Tracer
	metrics     *dialogmetrics.Metrics

	// enqueueMu is held shared around the closed check and the enqueue, and
	// exclusively by Close, so nothing lands in queue after the final drain.
	enqueueMu sync.RWMutex
	queue     chan *outbound
	closeCh   chan struct{}
	done      chan struct{}
	closed    atomic.Bool

	sending      atomic.Bool
	audioSession atomic.Pointer[string]
	dropped      atomic.Int64
}

// NewRequestHandler creates a handler sending through s and starts its
// sender goroutine.
func NewRequestHandler(s Sender, opts ...RequestOption) *RequestHandler {
	h := &RequestHandler{
		sender:      s,
		queueSize:   DefaultSendQueueSize,
		finishGrace: DefaultFinishGrace,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.tracer == nil {
		h.tracer = otel.Tracer(tracerName)
	}
	if h.queueSize <= 0 {
		h.queueSize = DefaultSendQueueSize
	}
	h.queue = make(chan *outbound, h.queueSize)
	h.closeCh = make(chan struct{})
	h.done = make(chan struct{})
	go h.sendLoop()
	return h
}

// StartConnection opens the protocol connection.
func (h *RequestHandler) StartConnection(ctx context.Context) *Call {
	return h.control(ctx, dialogproto.EventStartConnection, "", struct{}{}, 0)
}

// StartSession starts a session. payload is usually a *StartSessionPayload
// but may be any JSON-encodable value.
func (h *RequestHandler) StartSession(ctx context.Context, sessionID string, payload any) *Call {
	return h.control(ctx, dialogproto.EventStartSession, sessionID, payload, 0)
}

// SayHello asks the bot to greet the user.
func (h *RequestHandler) SayHello(ctx context.Context, sessionID string, payload SayHelloPayload) *Call {
	return h.control(ctx, dialogproto.EventSayHello, sessionID, payload, 0)
}

// ChatTTSText asks the bot to speak the given text.
func (h *RequestHandler) ChatTTSText(ctx context.Context, sessionID string, payload ChatTTSTextPayload) *Call {
	return h.control(ctx, dialogproto.EventChatTTSText, sessionID, payload, 0)
}

// FinishSession ends a session.
func (h *RequestHandler) FinishSession(ctx context.Context, sessionID string) *Call {
	return h.control(ctx, dialogproto.EventFinishSession, sessionID, struct{}{}, 0)
}

// FinishConnection ends the protocol connection. The call completes one
// grace period after the frame is written, giving the server time to close.
func (h *RequestHandler) FinishConnection(ctx context.Context) *Call {
	return h.control(ctx, dialogproto.EventFinishConnection, "", struct{}{}, h.finishGrace)
}

// StartSendingAudio starts the recorder and streams its frames as audio
// requests for sessionID until StopSendingAudio.
func (h *RequestHandler) StartSendingAudio(sessionID string) error {
	if h.closed.Load() {
		return ErrClosed
	}
	if h.recorder == nil {
		return ErrNoRecorder
	}
	if !h.sending.CompareAndSwap(false, true) {
		return ErrAlreadySending
	}
	h.audioSession.Store(&sessionID)
	if err := h.recorder.Start(capture.HandlerFunc(h.sendAudio)); err != nil {
		h.sending.Store(false)
		return fmt.Errorf("realtimedialog: start recorder: %w", err)
	}
	slog.Info("realtimedialog: sending audio", "session_id", sessionID)
	return nil
}

// StopSendingAudio stops streaming and the recorder loop. The device stays
// open until Release.
func (h *RequestHandler) StopSendingAudio() {
	if !h.sending.CompareAndSwap(true, false) {
		return
	}
	if h.recorder != nil {
		h.recorder.Stop()
	}
	slog.Info("realtimedialog: stopped sending audio", "dropped", h.dropped.Load())
}

// Sending reports whether audio is streaming.
func (h *RequestHandler) Sending() bool {
	return h.sending.Load()
}

// PauseRecording mutes the microphone without stopping the stream.
func (h *RequestHandler) PauseRecording() {
	if h.recorder != nil {
		h.recorder.Pause()
	}
}

// ResumeRecording unmutes the microphone.
func (h *RequestHandler) ResumeRecording() {
	if h.recorder != nil {
		h.recorder.Resume()
	}
}

// Release stops streaming and closes the recorder.
func (h *RequestHandler) Release() {
	h.StopSendingAudio()
	if h.recorder != nil {
		if err := h.recorder.Close(); err != nil {
			slog.Warn("realtimedialog: close recorder", "error", err)
		}
	}
}

// Close stops the sender goroutine. Requests still queued fail with
// ErrClosed. Close is idempotent and does not close the connection.
func (h *RequestHandler) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(h.closeCh)
	h.enqueueMu.Lock()
	defer h.enqueueMu.Unlock()
	select {
	case <-h.done:
	case <-time.After(time.Second):
		slog.Warn("realtimedialog: sender did not exit in time")
	}
	h.drain()
	return nil
}

// Dropped returns the number of audio frames dropped on a full queue.
func (h *RequestHandler) Dropped() int64 {
	return h.dropped.Load()
}

func (h *RequestHandler) control(ctx context.Context, ev dialogproto.Event, sessionID string, payload any, grace time.Duration) *Call {
	call := newCall(ev)
	_, span := h.tracer.Start(ctx, tracerName+"."+ev.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("dialog.event", int(ev)),
			attribute.String("dialog.session_id", sessionID),
		))
	out := &outbound{call: call, span: span, enqueued: time.Now(), grace: grace}

	data, err := json.Marshal(payload)
	if err != nil {
		h.finish(out, fmt.Errorf("realtimedialog: encode %s: %w", ev, err))
		return call
	}
	out.msg = dialogproto.NewEventMessage(dialogproto.TypeFullClient, ev, sessionID, data)
	out.cfg = h.sender.Codec().Config().WithSerialization(dialogproto.SerializationJSON)

	h.enqueueMu.RLock()
	defer h.enqueueMu.RUnlock()
	if h.closed.Load() {
		h.finish(out, ErrClosed)
		return call
	}
	select {
	case h.queue <- out:
	case <-h.closeCh:
		h.finish(out, ErrClosed)
	case <-ctx.Done():
		h.finish(out, ctx.Err())
	}
	return call
}

// sendAudio runs on the capture goroutine.
func (h *RequestHandler) sendAudio(frame []byte) {
	if !h.sending.Load() {
		return
	}
	h.enqueueMu.RLock()
	defer h.enqueueMu.RUnlock()
	if h.closed.Load() {
		return
	}
	sid := h.audioSession.Load()
	if sid == nil {
		return
	}
	payload := make([]byte, len(frame))
	copy(payload, frame)

	out := &outbound{
		cfg: h.sender.Codec().Config().WithSerialization(dialogproto.SerializationRaw),
		msg: dialogproto.NewEventMessage(dialogproto.TypeAudioOnlyClient, dialogproto.EventTaskRequest, *sid, payload),
	}
	select {
	case h.queue <- out:
	default:
		if n := h.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Debug("realtimedialog: audio frame dropped", "error", ErrQueueFull, "dropped", n)
		}
		h.metrics.AudioDropped()
	}
}

func (h *RequestHandler) sendLoop() {
	defer close(h.done)
	for {
		select {
		case <-h.closeCh:
			h.drain()
			return
		case out := <-h.queue:
			h.write(out)
		}
	}
}

func (h *RequestHandler) drain() {
	for {
		select {
		case out := <-h.queue:
			if out.call != nil {
				h.finish(out, ErrClosed)
			}
		default:
			return
		}
	}
}

func (h *RequestHandler) write(out *outbound) {
	err := h.sender.SendWith(out.cfg, out.msg)
	if out.call == nil {
		if err != nil {
			slog.Debug("realtimedialog: send audio", "error", err)
		}
		return
	}
	if err != nil {
		h.finish(out, fmt.Errorf("realtimedialog: send %s: %w", out.msg.Event, err))
		return
	}
	slog.Debug("realtimedialog: sent request", "event", out.msg.Event, "session_id", out.msg.SessionID)
	if out.grace > 0 {
		time.AfterFunc(out.grace, func() { h.finish(out, nil) })
		return
	}
	h.finish(out, nil)
}

func (h *RequestHandler) finish(out *outbound, err error) {
	ev := out.call.Event
	h.metrics.ControlCall(ev.String(), err == nil, time.Since(out.enqueued))
	if err != nil {
		slog.Warn("realtimedialog: request failed", "event", ev, "error", err)
		out.span.RecordError(err)
		out.span.SetStatus(codes.Error, err.Error())
	} else {
		out.span.SetStatus(codes.Ok, "")
	}
	out.span.End()
	out.call.complete(err)
}
