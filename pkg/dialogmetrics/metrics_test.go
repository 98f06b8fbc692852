package dialogmetrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.FrameSent("FULL_CLIENT")
	m.FrameReceived("FULL_SERVER")
	m.DecodeError()
	m.Reconnect(true)
	m.ControlCall("StartSession", false, time.Millisecond)
	m.AudioDropped()
	m.PlaybackDropped()
	m.SetConnectionActive(true)
	m.SetSessionActive(true)
	m.SetPlaybackActive(true)
	m.SetCapturePaused(true)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg))

	m.FrameSent("AUDIO_ONLY_CLIENT")
	m.FrameSent("AUDIO_ONLY_CLIENT")
	m.DecodeError()
	m.Reconnect(false)
	m.SetSessionActive(true)

	if got := testutil.ToFloat64(m.framesSent.WithLabelValues("AUDIO_ONLY_CLIENT")); got != 2 {
		t.Errorf("frames sent=%v", got)
	}
	if got := testutil.ToFloat64(m.decodeErrors); got != 1 {
		t.Errorf("decode errors=%v", got)
	}
	if got := testutil.ToFloat64(m.sessionActive); got != 1 {
		t.Errorf("session active=%v", got)
	}

	expected := `
# HELP lanqi_dialog_reconnects_total Automatic reconnect attempts
# TYPE lanqi_dialog_reconnects_total counter
lanqi_dialog_reconnects_total{result="error"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "lanqi_dialog_reconnects_total"); err != nil {
		t.Error(err)
	}
}
