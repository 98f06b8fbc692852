package realtimedialog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/jsontime"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{AppID: "a", AccessKey: "k", PlaybackRate: 16000}.WithDefaults()
	if cfg.URL != DefaultURL {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.AppKey != DefaultAppKey || cfg.ResourceID != DefaultResourceID {
		t.Errorf("AppKey, ResourceID = %q, %q", cfg.AppKey, cfg.ResourceID)
	}
	if cfg.BotName != DefaultBotName {
		t.Errorf("BotName = %q", cfg.BotName)
	}
	if cfg.PlaybackRate != 16000 {
		t.Errorf("PlaybackRate = %d, want explicit value kept", cfg.PlaybackRate)
	}
	if cfg.QueueCapacity != 100 {
		t.Errorf("QueueCapacity = %d, want 100", cfg.QueueCapacity)
	}
	if cfg.SilenceThreshold.Std() != time.Second {
		t.Errorf("SilenceThreshold = %v, want 1s", cfg.SilenceThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"missing credentials", Config{}, []string{"app_id", "access_key"}},
		{"bad playback rate", Config{AppID: "a", AccessKey: "k", PlaybackRate: 22050}, []string{"22050"}},
		{"bad capture rate", Config{AppID: "a", AccessKey: "k", CaptureRate: 8000}, []string{"8000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.WithDefaults().Validate()
			if err == nil {
				t.Fatal("Validate() = nil")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}

func TestConfigHeader(t *testing.T) {
	cfg := Config{AppID: "app", AccessKey: "key"}.WithDefaults()
	h := cfg.Header("conn-9")
	want := map[string]string{
		"X-Api-App-ID":      "app",
		"X-Api-Access-Key":  "key",
		"X-Api-App-Key":     DefaultAppKey,
		"X-Api-Resource-Id": DefaultResourceID,
		"X-Api-Connect-Id":  "conn-9",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestConfigStartSessionPayload(t *testing.T) {
	cfg := Config{AppID: "a", AccessKey: "k", Speaker: "zh_female", StrictAudit: true}.WithDefaults()
	data, err := json.Marshal(cfg.StartSessionPayload())
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		ASR *struct{} `json:"asr"`
		TTS struct {
			Speaker     string      `json:"speaker"`
			AudioConfig AudioConfig `json:"audio_config"`
		} `json:"tts"`
		Dialog struct {
			BotName string         `json:"bot_name"`
			Extra   map[string]any `json:"extra"`
		} `json:"dialog"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ASR != nil {
		t.Errorf("asr present without extra: %s", data)
	}
	if got.TTS.Speaker != "zh_female" {
		t.Errorf("speaker = %q", got.TTS.Speaker)
	}
	if got.TTS.AudioConfig != (AudioConfig{Channel: 1, Format: "pcm", SampleRate: 24000}) {
		t.Errorf("audio_config = %+v", got.TTS.AudioConfig)
	}
	if got.Dialog.BotName != DefaultBotName {
		t.Errorf("bot_name = %q", got.Dialog.BotName)
	}
	if got.Dialog.Extra["strict_audit"] != true {
		t.Errorf("strict_audit = %v", got.Dialog.Extra["strict_audit"])
	}
}

func TestConfigYAML(t *testing.T) {
	src := `
app_id: app
access_key: key
handshake_timeout: 3s
silence_threshold: 500ms
queue_capacity: 50
`
	var cfg Config
	if err := yaml.Unmarshal([]byte(src), &cfg); err != nil {
		t.Fatal(err)
	}
	cfg = cfg.WithDefaults()
	if cfg.HandshakeTimeout != jsontime.Duration(3*time.Second) {
		t.Errorf("HandshakeTimeout = %v", cfg.HandshakeTimeout)
	}
	if cfg.SilenceThreshold.Std() != 500*time.Millisecond {
		t.Errorf("SilenceThreshold = %v", cfg.SilenceThreshold)
	}
	if cfg.QueueCapacity != 50 {
		t.Errorf("QueueCapacity = %d", cfg.QueueCapacity)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		code                 uint32
		auth, client, server bool
	}{
		{1001, true, false, false},
		{45000001, false, true, false},
		{55000000, false, false, true},
		{3000, false, false, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			e := &Error{Code: tt.code}
			if e.IsAuthError() != tt.auth || e.IsClientError() != tt.client || e.IsServerError() != tt.server {
				t.Errorf("code %d: auth=%v client=%v server=%v", tt.code, e.IsAuthError(), e.IsClientError(), e.IsServerError())
			}
		})
	}
}

func TestNewProtocolError(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{`{"error":"quota exceeded"}`, "quota exceeded"},
		{`{"message":"bad audio"}`, "bad audio"},
		{`plain text`, "plain text"},
	}
	for _, tt := range tests {
		e := newProtocolError(45000002, "s1", []byte(tt.payload))
		if e.Message != tt.want {
			t.Errorf("Message = %q, want %q", e.Message, tt.want)
		}
		wrapped := fmt.Errorf("outer: %w", e)
		got, ok := AsError(wrapped)
		if !ok || got != e {
			t.Errorf("AsError(%v) = %v, %v", wrapped, got, ok)
		}
	}
	if _, ok := AsError(errors.New("x")); ok {
		t.Error("AsError matched a plain error")
	}
}
