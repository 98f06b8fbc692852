package realtimedialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/pcm"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/playback"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogmetrics"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogproto"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogws"
)

// DialogOption configures a Dialog.
type DialogOption func(*Dialog)

// WithDialogObserver sets the observer for application events.
func WithDialogObserver(o Observer) DialogOption {
	return func(d *Dialog) { d.observer = o }
}

// WithDialogRecorder sets the microphone. Without one the dialog is
// driven by SayHello and ChatTTSText only.
func WithDialogRecorder(r Recorder) DialogOption {
	return func(d *Dialog) { d.recorder = r }
}

// WithSink sets where received audio is rendered. The default discards it.
func WithSink(w pcm.Writer) DialogOption {
	return func(d *Dialog) { d.sink = w }
}

// WithFrameTap records every frame sent and received.
func WithFrameTap(t dialogws.Tap) DialogOption {
	return func(d *Dialog) { d.tap = t }
}

// WithDialogMetrics attaches collectors to every component.
func WithDialogMetrics(m *dialogmetrics.Metrics) DialogOption {
	return func(d *Dialog) { d.metrics = m }
}

// WithWebsocketDialer replaces the websocket dialer.
func WithWebsocketDialer(dl *websocket.Dialer) DialogOption {
	return func(d *Dialog) { d.dialer = dl }
}

// Dialog wires a transport, request and response handlers, a player and
// an optional recorder into one voice session.
type Dialog struct {
	cfg      Config
	observer Observer
	recorder Recorder
	sink     pcm.Writer
	tap      dialogws.Tap
	metrics  *dialogmetrics.Metrics
	dialer   *websocket.Dialer

	player *playback.Engine

	// lifecycle serializes Start and Stop; mu guards the fields below for
	// short reads.
	lifecycle sync.Mutex
	mu        sync.Mutex
	client    *dialogws.Client
	requests  *RequestHandler
	responses *ResponseHandler
	sessionID string
	started   bool
	stopped   bool
}

// NewDialog validates cfg, after filling defaults, and builds a dialog.
// Nothing is dialed until Start.
func NewDialog(cfg Config, opts ...DialogOption) (*Dialog, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Dialog{
		cfg:  cfg,
		sink: pcm.Discard,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.observer == nil {
		d.observer = nopObserver{}
	}

	format, _ := pcm.FormatForRate(cfg.PlaybackRate)
	d.player = playback.New(d.sink,
		playback.WithFormat(format),
		playback.WithCapacity(cfg.QueueCapacity),
		playback.WithSilenceThreshold(cfg.SilenceThreshold.Std()),
		playback.WithMetrics(d.metrics),
	)
	return d, nil
}

// Config returns the effective configuration.
func (d *Dialog) Config() Config {
	return d.cfg
}

// Start connects, opens the protocol connection and a session, and starts
// playback and, if a recorder is set, audio upload. An empty sessionID is
// replaced with a random one. On failure everything started is torn down.
func (d *Dialog) Start(ctx context.Context, sessionID string) (err error) {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if d.started {
		return errors.New("realtimedialog: dialog already started")
	}
	if d.stopped {
		return ErrClosed
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	connectID := uuid.NewString()
	wsOpts := []dialogws.Option{
		dialogws.WithHeader(d.cfg.Header(connectID)),
		dialogws.WithMetrics(d.metrics),
	}
	if d.tap != nil {
		wsOpts = append(wsOpts, dialogws.WithTap(d.tap))
	}
	if d.dialer != nil {
		wsOpts = append(wsOpts, dialogws.WithDialer(d.dialer))
	}
	client := dialogws.New(d.cfg.URL, wsOpts...)

	reqOpts := []RequestOption{
		WithFinishGrace(d.cfg.FinishGrace.Std()),
		WithRequestMetrics(d.metrics),
	}
	if d.recorder != nil {
		reqOpts = append(reqOpts, WithRecorder(d.recorder))
	}
	requests := NewRequestHandler(client, reqOpts...)
	responses := NewResponseHandler(d.player, requests,
		WithObserver(d.observer),
		WithResponseMetrics(d.metrics),
	)
	client.SetListener(responses)

	d.mu.Lock()
	d.started = true
	d.sessionID = sessionID
	d.client, d.requests, d.responses = client, requests, responses
	d.mu.Unlock()

	defer func() {
		if err != nil {
			d.teardown(context.Background())
		}
	}()

	d.status("connecting")
	slog.Info("realtimedialog: connecting", "url", d.cfg.URL, "connect_id", connectID, "session_id", sessionID)
	connectCtx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout.Std())
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return fmt.Errorf("realtimedialog: connect: %w", err)
	}
	if err := client.WaitConnected(connectCtx); err != nil {
		return fmt.Errorf("realtimedialog: connect: %w", err)
	}
	d.status("connected")

	if err := d.handshake(ctx, requests.StartConnection(ctx), responses.WaitConnectionActive); err != nil {
		return fmt.Errorf("realtimedialog: start connection: %w", err)
	}

	call := requests.StartSession(ctx, sessionID, d.cfg.StartSessionPayload())
	if err := d.handshake(ctx, call, responses.WaitSessionActive); err != nil {
		return fmt.Errorf("realtimedialog: start session: %w", err)
	}

	if err := d.player.Start(); err != nil {
		return fmt.Errorf("realtimedialog: start playback: %w", err)
	}
	if d.recorder != nil {
		if err := requests.StartSendingAudio(sessionID); err != nil {
			return err
		}
	}
	d.status("session started")
	return nil
}

func (d *Dialog) handshake(ctx context.Context, call *Call, wait func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.HandshakeTimeout.Std())
	defer cancel()
	if err := call.Wait(ctx); err != nil {
		return err
	}
	return wait(ctx)
}

// Stop ends the dialog: audio upload, recorder, playback, session,
// connection and transport, in that order. Stop is idempotent.
func (d *Dialog) Stop(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	d.mu.Lock()
	stopped, started := d.stopped, d.started
	d.stopped = true
	d.mu.Unlock()
	if stopped {
		return nil
	}
	if !started {
		d.player.Stop()
		if d.recorder != nil {
			d.recorder.Close()
		}
		return nil
	}
	return d.teardown(ctx)
}

// teardown releases everything Start created. d.lifecycle must be held.
func (d *Dialog) teardown(ctx context.Context) error {
	d.requests.StopSendingAudio()
	d.requests.Release()
	d.player.Stop()

	var errs []error
	ctx, cancel := context.WithTimeout(ctx, d.cfg.HandshakeTimeout.Std()+d.cfg.FinishGrace.Std())
	defer cancel()
	if d.responses.SessionActive() {
		if err := d.requests.FinishSession(ctx, d.sessionID).Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if d.client.Connected() {
		if err := d.requests.FinishConnection(ctx).Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.requests.Close()
	if err := d.client.Close(); err != nil {
		errs = append(errs, err)
	}
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.status("stopped")
	return errors.Join(errs...)
}

// SayHello asks the bot to speak a greeting in the current session.
func (d *Dialog) SayHello(ctx context.Context, content string) *Call {
	h, sid, err := d.active()
	if err != nil {
		return failedCall(dialogproto.EventSayHello, err)
	}
	return h.SayHello(ctx, sid, SayHelloPayload{Content: content})
}

// ChatTTSText asks the bot to speak text in the current session.
func (d *Dialog) ChatTTSText(ctx context.Context, payload ChatTTSTextPayload) *Call {
	h, sid, err := d.active()
	if err != nil {
		return failedCall(dialogproto.EventChatTTSText, err)
	}
	return h.ChatTTSText(ctx, sid, payload)
}

// StartAudio resumes streaming the recorder after StopAudio. Start already
// streams when a recorder is set.
func (d *Dialog) StartAudio() error {
	h, sid, err := d.active()
	if err != nil {
		return err
	}
	return h.StartSendingAudio(sid)
}

// StopAudio stops streaming the recorder. The device stays open.
func (d *Dialog) StopAudio() error {
	h, _, err := d.active()
	if err != nil {
		return err
	}
	h.StopSendingAudio()
	return nil
}

// SendingAudio reports whether recorder audio is streaming.
func (d *Dialog) SendingAudio() bool {
	h, _, err := d.active()
	return err == nil && h.Sending()
}

// FinishSession ends the current session and keeps the connection open.
func (d *Dialog) FinishSession(ctx context.Context) *Call {
	h, sid, err := d.active()
	if err != nil {
		return failedCall(dialogproto.EventFinishSession, err)
	}
	h.StopSendingAudio()
	return h.FinishSession(ctx, sid)
}

// FinishConnection ends the protocol connection. Stop still has to be
// called to release the transport.
func (d *Dialog) FinishConnection(ctx context.Context) *Call {
	h, _, err := d.active()
	if err != nil {
		return failedCall(dialogproto.EventFinishConnection, err)
	}
	return h.FinishConnection(ctx)
}

func (d *Dialog) active() (*RequestHandler, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started || d.stopped {
		return nil, "", ErrClosed
	}
	return d.requests, d.sessionID, nil
}

// SessionID returns the session id passed to, or chosen by, Start.
func (d *Dialog) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

// ConnectionActive reports whether the protocol connection is up.
func (d *Dialog) ConnectionActive() bool {
	r := d.responseHandler()
	return r != nil && r.ConnectionActive()
}

// SessionActive reports whether the session is running.
func (d *Dialog) SessionActive() bool {
	r := d.responseHandler()
	return r != nil && r.SessionActive()
}

// AudioLog returns the log of received audio, or nil before Start.
func (d *Dialog) AudioLog() *AudioLog {
	if r := d.responseHandler(); r != nil {
		return r.AudioLog()
	}
	return nil
}

// Done is closed when the connection is gone. It is nil before Start.
func (d *Dialog) Done() <-chan struct{} {
	if r := d.responseHandler(); r != nil {
		return r.Closed()
	}
	return nil
}

// Err returns the last failure reported by the server or transport.
func (d *Dialog) Err() error {
	if r := d.responseHandler(); r != nil {
		return r.Err()
	}
	return nil
}

func (d *Dialog) responseHandler() *ResponseHandler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.responses
}

func (d *Dialog) status(s string) {
	d.observer.HandleEvent(Event{Kind: KindStatus, Status: s})
}

func failedCall(ev dialogproto.Event, err error) *Call {
	c := newCall(ev)
	c.complete(err)
	return c
}
