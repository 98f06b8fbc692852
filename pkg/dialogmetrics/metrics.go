// Package dialogmetrics exposes Prometheus collectors for the realtime
// dialog client. All methods are safe to call on a nil *Metrics, so
// instrumented components work unchanged when metrics are disabled.
package dialogmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "lanqi").
	Namespace string

	// Subsystem is the metrics subsystem (default: "dialog").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "lanqi",
		Subsystem: "dialog",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors. Create one per registry.
type Metrics struct {
	framesSent       *prometheus.CounterVec
	framesReceived   *prometheus.CounterVec
	decodeErrors     prometheus.Counter
	reconnects       *prometheus.CounterVec
	controlCalls     *prometheus.CounterVec
	controlLatency   *prometheus.HistogramVec
	audioDropped     prometheus.Counter
	playbackDropped  prometheus.Counter
	connectionActive prometheus.Gauge
	sessionActive    prometheus.Gauge
	playbackActive   prometheus.Gauge
	capturePaused    prometheus.Gauge
}

// New registers the collectors with the configured registry. Registering
// twice with the same registry panics, as with promauto.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Metrics{
		framesSent:     counterVec("frames_sent_total", "Frames written to the connection", "type"),
		framesReceived: counterVec("frames_received_total", "Frames decoded from the connection", "type"),
		decodeErrors:   counter("decode_errors_total", "Inbound frames dropped as malformed"),
		reconnects:     counterVec("reconnects_total", "Automatic reconnect attempts", "result"),
		controlCalls:   counterVec("control_calls_total", "Control requests by event and outcome", "event", "result"),
		controlLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "control_call_duration_seconds",
			Help:        "Time from enqueue to completion of a control request",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"event"}),
		audioDropped:     counter("audio_frames_dropped_total", "Captured frames dropped because the send queue was full"),
		playbackDropped:  counter("playback_frames_dropped_total", "Received frames evicted from the playback queue"),
		connectionActive: gauge("connection_active", "1 while the connection handshake is acknowledged"),
		sessionActive:    gauge("session_active", "1 while a session is started"),
		playbackActive:   gauge("playback_active", "1 while remote audio is rendering"),
		capturePaused:    gauge("capture_paused", "1 while the microphone is paused"),
	}
}

// FrameSent counts an outbound frame.
func (m *Metrics) FrameSent(msgType string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(msgType).Inc()
}

// FrameReceived counts a decoded inbound frame.
func (m *Metrics) FrameReceived(msgType string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(msgType).Inc()
}

// DecodeError counts a dropped malformed frame.
func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

// Reconnect counts a reconnect attempt.
func (m *Metrics) Reconnect(ok bool) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(result(ok)).Inc()
}

// ControlCall records the outcome and latency of a control request.
func (m *Metrics) ControlCall(event string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.controlCalls.WithLabelValues(event, result(ok)).Inc()
	m.controlLatency.WithLabelValues(event).Observe(d.Seconds())
}

// AudioDropped counts a captured frame that could not be queued.
func (m *Metrics) AudioDropped() {
	if m == nil {
		return
	}
	m.audioDropped.Inc()
}

// PlaybackDropped counts a frame evicted from the playback queue.
func (m *Metrics) PlaybackDropped() {
	if m == nil {
		return
	}
	m.playbackDropped.Inc()
}

// SetConnectionActive sets the connection gauge.
func (m *Metrics) SetConnectionActive(v bool) {
	if m == nil {
		return
	}
	m.connectionActive.Set(boolValue(v))
}

// SetSessionActive sets the session gauge.
func (m *Metrics) SetSessionActive(v bool) {
	if m == nil {
		return
	}
	m.sessionActive.Set(boolValue(v))
}

// SetPlaybackActive sets the playback gauge.
func (m *Metrics) SetPlaybackActive(v bool) {
	if m == nil {
		return
	}
	m.playbackActive.Set(boolValue(v))
}

// SetCapturePaused sets the capture gauge.
func (m *Metrics) SetCapturePaused(v bool) {
	if m == nil {
		return
	}
	m.capturePaused.Set(boolValue(v))
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
