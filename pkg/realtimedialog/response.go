package realtimedialog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/playback"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogmetrics"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogproto"
)

// Player renders received audio. *playback.Engine implements it.
type Player interface {
	Enqueue(f32le []byte) error
	Clear()
}

// RecordingController mutes and unmutes the microphone.
// *RequestHandler implements it.
type RecordingController interface {
	PauseRecording()
	ResumeRecording()
}

// ResponseOption configures a ResponseHandler.
type ResponseOption func(*ResponseHandler)

// WithObserver sets the observer for application events.
func WithObserver(o Observer) ResponseOption {
	return func(h *ResponseHandler) { h.observer = o }
}

// WithResponseMetrics attaches collectors.
func WithResponseMetrics(m *dialogmetrics.Metrics) ResponseOption {
	return func(h *ResponseHandler) { h.metrics = m }
}

// ResponseHandler interprets inbound frames. It tracks whether the
// connection and session are active, feeds server audio to the Player and
// keeps the microphone muted while that audio is playing.
//
// It implements dialogws.Listener and playback.Observer.
type ResponseHandler struct {
	player   Player
	recorder RecordingController
	observer Observer
	metrics  *dialogmetrics.Metrics
	audioLog AudioLog

	connectionActive atomic.Bool
	sessionActive    atomic.Bool
	connectID        atomic.Pointer[string]
	sessionID        atomic.Pointer[string]

	mu      sync.Mutex
	changed chan struct{}
	failure error
	closed  chan struct{}
	once    sync.Once
}

// NewResponseHandler creates a handler. If player accepts a
// playback.Observer, the handler registers itself so that playback start
// and end pause and resume recording.
func NewResponseHandler(player Player, recorder RecordingController, opts ...ResponseOption) *ResponseHandler {
	h := &ResponseHandler{
		player:   player,
		recorder: recorder,
		observer: nopObserver{},
		changed:  make(chan struct{}),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.observer == nil {
		h.observer = nopObserver{}
	}
	if p, ok := player.(interface{ SetObserver(playback.Observer) }); ok {
		p.SetObserver(h)
	}
	return h
}

// ConnectionActive reports whether the server acknowledged StartConnection
// and the connection has not closed since.
func (h *ResponseHandler) ConnectionActive() bool {
	return h.connectionActive.Load()
}

// SessionActive reports whether a session is running.
func (h *ResponseHandler) SessionActive() bool {
	return h.sessionActive.Load()
}

// ConnectID returns the connect id from the last ConnectionStarted event.
func (h *ResponseHandler) ConnectID() string {
	if p := h.connectID.Load(); p != nil {
		return *p
	}
	return ""
}

// SessionID returns the session id from the last SessionStarted event.
func (h *ResponseHandler) SessionID() string {
	if p := h.sessionID.Load(); p != nil {
		return *p
	}
	return ""
}

// AudioLog returns the log of received audio.
func (h *ResponseHandler) AudioLog() *AudioLog {
	return &h.audioLog
}

// Closed is closed when the transport reports the connection gone.
func (h *ResponseHandler) Closed() <-chan struct{} {
	return h.closed
}

// Err returns the last failure seen: a protocol error, a failed
// connection, or a lost connection.
func (h *ResponseHandler) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failure
}

// ResetErr forgets the last failure.
func (h *ResponseHandler) ResetErr() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failure = nil
}

// WaitConnectionActive blocks until the connection is active, a failure
// is recorded, or ctx is done.
func (h *ResponseHandler) WaitConnectionActive(ctx context.Context) error {
	return h.waitFor(ctx, h.ConnectionActive)
}

// WaitSessionActive blocks until a session is active, a failure is
// recorded, or ctx is done.
func (h *ResponseHandler) WaitSessionActive(ctx context.Context) error {
	return h.waitFor(ctx, h.SessionActive)
}

func (h *ResponseHandler) waitFor(ctx context.Context, cond func() bool) error {
	for {
		h.mu.Lock()
		ch, failure := h.changed, h.failure
		h.mu.Unlock()

		if cond() {
			return nil
		}
		if failure != nil {
			return failure
		}
		select {
		case <-ch:
		case <-h.closed:
			if cond() {
				return nil
			}
			if err := h.Err(); err != nil {
				return err
			}
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// broadcast wakes waiters. err, if not nil, becomes the recorded failure.
func (h *ResponseHandler) broadcast(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.failure = err
	}
	close(h.changed)
	h.changed = make(chan struct{})
}

// HandleMessage dispatches one inbound frame.
func (h *ResponseHandler) HandleMessage(msg *dialogproto.Message) {
	switch msg.Type {
	case dialogproto.TypeFullServer:
		h.handleServerEvent(msg)
	case dialogproto.TypeAudioOnlyServer:
		h.handleAudio(msg)
	case dialogproto.TypeError:
		h.handleError(msg)
	default:
		slog.Debug("realtimedialog: ignoring message", "type", msg.Type, "event", msg.Event)
	}
}

func (h *ResponseHandler) handleServerEvent(msg *dialogproto.Message) {
	switch msg.Event {
	case dialogproto.EventConnectionStarted:
		id := msg.ConnectID
		h.connectID.Store(&id)
		h.setConnectionActive(true)
		slog.Info("realtimedialog: connection started", "connect_id", id)
		h.broadcast(nil)
		h.notify(Event{Kind: KindStatus, Status: "connection started", ServerEvent: msg.Event})

	case dialogproto.EventConnectionFailed:
		h.setConnectionActive(false)
		err := fmt.Errorf("%w: %s", ErrConnectionFailed, msg.Payload)
		slog.Error("realtimedialog: connection failed", "payload", string(msg.Payload))
		h.broadcast(err)
		h.notify(Event{Kind: KindError, ServerEvent: msg.Event, Payload: msg.Payload, Err: err})

	case dialogproto.EventConnectionFinished:
		slog.Info("realtimedialog: connection finished")
		h.notify(Event{Kind: KindStatus, Status: "connection finished", ServerEvent: msg.Event})

	case dialogproto.EventSessionStarted:
		id := msg.SessionID
		h.sessionID.Store(&id)
		h.setSessionActive(true)
		slog.Info("realtimedialog: session started", "session_id", id)
		h.broadcast(nil)
		h.notify(Event{Kind: KindStatus, Status: "session started", ServerEvent: msg.Event, SessionID: id})

	case dialogproto.EventSessionFinished, dialogproto.EventSessionFailed:
		// Both end the session normally; 153 carries the server's reason.
		h.setSessionActive(false)
		slog.Info("realtimedialog: session finished", "session_id", msg.SessionID, "event", msg.Event, "payload", string(msg.Payload))
		h.broadcast(nil)
		h.notify(Event{Kind: KindStatus, Status: "session finished", ServerEvent: msg.Event, SessionID: msg.SessionID, Payload: msg.Payload})

	case dialogproto.EventASRInfo:
		// The user started speaking: drop whatever the bot was saying.
		h.player.Clear()
		h.audioLog.Clear()
		slog.Info("realtimedialog: turn boundary, playback cleared", "session_id", msg.SessionID)

	case dialogproto.EventASRResponse,
		dialogproto.EventASREnded,
		dialogproto.EventChatResponse,
		dialogproto.EventChatEnded,
		dialogproto.EventTTSSentenceStart,
		dialogproto.EventTTSSentenceEnd,
		dialogproto.EventTTSEnded:
		h.notify(Event{
			Kind:        KindText,
			ServerEvent: msg.Event,
			SessionID:   msg.SessionID,
			Payload:     msg.Payload,
			Text:        parseServerText(msg.Payload),
		})

	default:
		slog.Debug("realtimedialog: unhandled server event", "event", msg.Event, "session_id", msg.SessionID)
	}
}

func (h *ResponseHandler) handleAudio(msg *dialogproto.Message) {
	if len(msg.Payload) == 0 {
		return
	}
	h.audioLog.Append(msg.Payload)
	if err := h.player.Enqueue(msg.Payload); err != nil {
		slog.Warn("realtimedialog: enqueue audio", "bytes", len(msg.Payload), "error", err)
	}
}

func (h *ResponseHandler) handleError(msg *dialogproto.Message) {
	h.setSessionActive(false)
	perr := newProtocolError(msg.ErrorCode, msg.SessionID, msg.Payload)
	if perr.IsAuthError() {
		slog.Error("realtimedialog: authentication failed, check app id and access key", "code", perr.Code, "message", perr.Message)
	} else {
		slog.Error("realtimedialog: server error", "code", perr.Code, "message", perr.Message)
	}
	h.broadcast(perr)
	h.notify(Event{Kind: KindError, SessionID: msg.SessionID, Payload: msg.Payload, Err: perr})
}

// HandleError reports a frame that could not be decoded.
func (h *ResponseHandler) HandleError(err error) {
	h.notify(Event{Kind: KindError, Err: err})
}

// HandleClose clears the connection and session state.
func (h *ResponseHandler) HandleClose(err error) {
	h.setConnectionActive(false)
	h.setSessionActive(false)
	if err != nil {
		slog.Error("realtimedialog: connection closed", "error", err)
	} else {
		slog.Info("realtimedialog: connection closed")
	}
	h.broadcast(err)
	h.once.Do(func() { close(h.closed) })
	if err != nil {
		h.notify(Event{Kind: KindError, Err: err})
	}
	h.notify(Event{Kind: KindStatus, Status: "closed"})
}

// PlaybackStarted mutes the microphone while the bot speaks.
func (h *ResponseHandler) PlaybackStarted() {
	if h.recorder != nil {
		h.recorder.PauseRecording()
	}
	slog.Info("realtimedialog: playback started, recording paused")
	h.notify(Event{Kind: KindPlaybackStart})
}

// PlaybackEnded unmutes the microphone.
func (h *ResponseHandler) PlaybackEnded() {
	if h.recorder != nil {
		h.recorder.ResumeRecording()
	}
	slog.Info("realtimedialog: playback ended, recording resumed")
	h.notify(Event{Kind: KindPlaybackEnd})
}

func (h *ResponseHandler) setConnectionActive(v bool) {
	if h.connectionActive.Swap(v) != v {
		h.metrics.SetConnectionActive(v)
	}
}

func (h *ResponseHandler) setSessionActive(v bool) {
	if h.sessionActive.Swap(v) != v {
		h.metrics.SetSessionActive(v)
	}
}

func (h *ResponseHandler) notify(ev Event) {
	h.observer.HandleEvent(ev)
}
