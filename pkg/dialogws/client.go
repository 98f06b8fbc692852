package dialogws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogmetrics"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogproto"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultCloseTimeout     = time.Second

	previewLimit = 256
)

var (
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("dialogws: client closed")

	// ErrNotConnected is returned by Send before Connect succeeds or after
	// the connection is lost.
	ErrNotConnected = errors.New("dialogws: not connected")
)

// Listener receives everything the read loop produces. Calls are made from
// the read goroutine in the order frames are decoded, so implementations
// must not block.
type Listener interface {
	// HandleMessage is called for every decoded frame.
	HandleMessage(msg *dialogproto.Message)

	// HandleError is called for a frame that failed to decode. The
	// connection stays open.
	HandleError(err error)

	// HandleClose is called once when the connection is gone for good: a
	// nil error for an intentional or normal close, otherwise the cause.
	HandleClose(err error)
}

// Direction tells a Tap which way a frame went.
type Direction uint8

const (
	Outbound Direction = iota + 1
	Inbound
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "out"
	case Inbound:
		return "in"
	default:
		return fmt.Sprintf("Direction(%d)", d)
	}
}

// Tap observes every frame sent or received, after encoding or decoding.
type Tap interface {
	TapFrame(dir Direction, msg *dialogproto.Message)
}

// HandshakeError is returned by Connect when the server rejects the
// websocket upgrade.
type HandshakeError struct {
	StatusCode int
	LogID      string
	Err        error
}

func (e *HandshakeError) Error() string {
	if e.LogID != "" {
		return fmt.Sprintf("dialogws: handshake failed (status %d, logid %s): %v", e.StatusCode, e.LogID, e.Err)
	}
	return fmt.Sprintf("dialogws: handshake failed (status %d): %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// Option configures a Client.
type Option func(*Client)

// WithHeader adds handshake headers.
func WithHeader(h http.Header) Option {
	return func(c *Client) {
		for k, vs := range h {
			for _, v := range vs {
				c.header.Add(k, v)
			}
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithCodec sets the codec whose configuration Send uses.
func WithCodec(codec *dialogproto.Codec) Option {
	return func(c *Client) { c.codec = codec }
}

// WithListener registers the listener.
func WithListener(l Listener) Option {
	return func(c *Client) { c.listener = l }
}

// WithTap registers a frame tap.
func WithTap(t Tap) Option {
	return func(c *Client) { c.tap = t }
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeTimeout = d }
}

// WithMetrics attaches collectors.
func WithMetrics(m *dialogmetrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client owns one websocket connection carrying binary dialog frames.
//
// Frames read from the connection are decoded and handed to the Listener.
// If the connection fails unexpectedly, the client redials once; if that
// fails too, the listener is told the connection is closed.
type Client struct {
	url          string
	header       http.Header
	dialer       *websocket.Dialer
	codec        *dialogproto.Codec
	writeTimeout time.Duration
	metrics      *dialogmetrics.Metrics

	hookMu   sync.RWMutex
	listener Listener
	tap      Tap

	mu       sync.Mutex
	conn     *websocket.Conn
	loopDone chan struct{}

	writeMu sync.Mutex

	connected   atomic.Bool
	closing     atomic.Bool
	connectedCh chan struct{}
	connectOnce sync.Once
	closeCh     chan struct{}
	closeOnce   sync.Once
	notifyOnce  sync.Once
}

// New creates a client for url. Nothing is dialed until Connect.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:          url,
		header:       http.Header{},
		dialer:       &websocket.Dialer{HandshakeTimeout: DefaultHandshakeTimeout},
		writeTimeout: DefaultWriteTimeout,
		connectedCh:  make(chan struct{}),
		closeCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.codec == nil {
		c.codec = dialogproto.NewCodec(dialogproto.DefaultConfig())
	}
	return c
}

// SetListener replaces the listener. Use it when the listener is built
// after the client.
func (c *Client) SetListener(l Listener) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.listener = l
}

// SetTap replaces the frame tap.
func (c *Client) SetTap(t Tap) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.tap = t
}

// Codec returns the codec holding the connection's frame defaults.
func (c *Client) Codec() *dialogproto.Codec {
	return c.codec
}

// Connect dials the server and starts the read loop. Calling it on a
// connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	if c.closing.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.attach(conn)
	c.connectOnce.Do(func() { close(c.connectedCh) })
	return nil
}

// WaitConnected blocks until the first successful Connect, ctx is done, or
// the client is closed.
func (c *Client) WaitConnected(ctx context.Context) error {
	select {
	case <-c.connectedCh:
		if !c.Connected() {
			return ErrNotConnected
		}
		return nil
	case <-c.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether a connection is open and not being closed.
func (c *Client) Connected() bool {
	if c.closing.Load() || !c.connected.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send encodes msg with the codec's current configuration and writes it as
// one binary frame.
func (c *Client) Send(msg *dialogproto.Message) error {
	return c.SendWith(c.codec.Config(), msg)
}

// SendWith encodes msg with cfg and writes it as one binary frame.
func (c *Client) SendWith(cfg dialogproto.Config, msg *dialogproto.Message) error {
	if c.closing.Load() {
		return ErrClosed
	}
	data, err := dialogproto.Marshal(cfg, msg)
	if err != nil {
		return fmt.Errorf("dialogws: encode: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	if c.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	err = conn.WriteMessage(websocket.BinaryMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		if c.closing.Load() {
			return ErrClosed
		}
		return fmt.Errorf("dialogws: write: %w", err)
	}

	c.metrics.FrameSent(msg.Type.String())
	if !msg.IsAudio() && slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("dialogws: sent frame", "type", msg.Type, "event", msg.Event, "bytes", len(data), "payload", preview(msg.Payload))
	}
	if t := c.currentTap(); t != nil {
		t.TapFrame(Outbound, msg)
	}
	return nil
}

// Close sends a normal close frame, closes the connection and waits briefly
// for the read loop. The listener receives HandleClose(nil). Close is
// idempotent.
func (c *Client) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	c.closeOnce.Do(func() { close(c.closeCh) })
	c.connected.Store(false)

	c.mu.Lock()
	conn, done := c.conn, c.loopDone
	c.mu.Unlock()

	if conn == nil {
		c.notifyClose(nil)
		return nil
	}

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(DefaultCloseTimeout))
	c.writeMu.Unlock()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		slog.Debug("dialogws: write close frame", "error", werr)
	}

	err := conn.Close()
	select {
	case <-done:
	case <-time.After(DefaultCloseTimeout):
		slog.Warn("dialogws: read loop did not exit in time")
	}
	c.notifyClose(nil)
	slog.Info("dialogws: closed")
	return err
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{
				StatusCode: resp.StatusCode,
				LogID:      resp.Header.Get("X-Tt-Logid"),
				Err:        err,
			}
		}
		return nil, fmt.Errorf("dialogws: dial: %w", err)
	}
	slog.Info("dialogws: connected", "url", c.url, "logid", resp.Header.Get("X-Tt-Logid"))
	return conn, nil
}

// attach installs conn and starts its read loop. c.mu must be held.
func (c *Client) attach(conn *websocket.Conn) {
	done := make(chan struct{})
	c.conn = conn
	c.loopDone = done
	c.connected.Store(true)
	go c.readLoop(conn, done)
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(conn, err)
			return
		}
		if mt != websocket.BinaryMessage {
			slog.Debug("dialogws: ignoring non-binary frame", "type", mt, "bytes", len(data))
			continue
		}

		msg, err := dialogproto.Unmarshal(data)
		if err != nil {
			slog.Warn("dialogws: dropping malformed frame", "bytes", len(data), "error", err)
			c.metrics.DecodeError()
			if l := c.currentListener(); l != nil {
				l.HandleError(err)
			}
			continue
		}

		c.metrics.FrameReceived(msg.Type.String())
		if !msg.IsAudio() && slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			slog.Debug("dialogws: received frame", "type", msg.Type, "event", msg.Event, "payload", preview(msg.Payload))
		}
		if t := c.currentTap(); t != nil {
			t.TapFrame(Inbound, msg)
		}
		if l := c.currentListener(); l != nil {
			l.HandleMessage(msg)
		}
	}
}

func (c *Client) handleReadError(conn *websocket.Conn, err error) {
	c.connected.Store(false)
	if c.closing.Load() {
		return
	}
	logClose(err)

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()

	if !isTransportFailure(err) {
		var ce *websocket.CloseError
		if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
			err = nil
		}
		c.notifyClose(err)
		return
	}

	slog.Error("dialogws: connection lost, reconnecting", "error", err)
	if rerr := c.reconnect(); rerr != nil {
		c.metrics.Reconnect(false)
		slog.Error("dialogws: reconnect failed", "error", rerr)
		c.notifyClose(fmt.Errorf("dialogws: connection lost: %w", errors.Join(err, rerr)))
		return
	}
	c.metrics.Reconnect(true)
	slog.Info("dialogws: reconnected")
}

func (c *Client) reconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultHandshakeTimeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing.Load() {
		conn.Close()
		return ErrClosed
	}
	c.attach(conn)
	return nil
}

func (c *Client) notifyClose(err error) {
	c.notifyOnce.Do(func() {
		if l := c.currentListener(); l != nil {
			l.HandleClose(err)
		}
	})
}

func (c *Client) currentListener() Listener {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.listener
}

func (c *Client) currentTap() Tap {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.tap
}

// isTransportFailure reports whether err is a broken connection rather than
// a close handshake initiated by the server.
func isTransportFailure(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return true
	}
	return ce.Code == websocket.CloseAbnormalClosure
}

func logClose(err error) {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return
	}
	switch ce.Code {
	case websocket.CloseNormalClosure:
		slog.Info("dialogws: server closed connection normally", "reason", ce.Text)
	case websocket.CloseProtocolError:
		slog.Warn("dialogws: server closed connection: protocol error", "reason", ce.Text)
	case websocket.ClosePolicyViolation:
		slog.Warn("dialogws: server closed connection: policy violation", "reason", ce.Text)
	default:
		slog.Warn("dialogws: connection closed", "code", ce.Code, "reason", ce.Text)
	}
}

func preview(b []byte) string {
	if len(b) > previewLimit {
		return string(b[:previewLimit]) + "..."
	}
	return string(b)
}
