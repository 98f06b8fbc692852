package realtimedialog

import (
	"errors"
	"net/http"
	"time"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/pcm"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/jsontime"
)

const (
	DefaultURL        = "wss://openspeech.bytedance.com/api/v3/realtime/dialogue"
	DefaultResourceID = "volc.speech.dialog"
	DefaultAppKey     = "PlgvMymc7f3tQnJ6"

	DefaultBotName       = "蓝岐医童"
	DefaultSystemRole    = "蓝岐医童是一位专为家庭健康管理打造的智能医童，为用户提供症状预诊、用药监护、医学知识科普与日常陪伴。"
	DefaultSpeakingStyle = "语气活泼亲切，耐心专业，善于用通俗语言解释医学术语。"

	DefaultConnectTimeout   = 10 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultFinishGrace      = time.Second
	DefaultPlaybackRate     = 24000
	DefaultCaptureRate      = 16000
	DefaultQueueCapacity    = 100
	DefaultSilenceThreshold = time.Second
)

// Config describes one dialog: where to connect, how to authenticate and
// how the bot should behave. Zero fields take the defaults.
type Config struct {
	URL        string `json:"url,omitempty" yaml:"url,omitempty"`
	AppID      string `json:"app_id,omitempty" yaml:"app_id,omitempty"`
	AccessKey  string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	AppKey     string `json:"app_key,omitempty" yaml:"app_key,omitempty"`
	ResourceID string `json:"resource_id,omitempty" yaml:"resource_id,omitempty"`

	BotName       string         `json:"bot_name,omitempty" yaml:"bot_name,omitempty"`
	DialogID      string         `json:"dialog_id,omitempty" yaml:"dialog_id,omitempty"`
	SystemRole    string         `json:"system_role,omitempty" yaml:"system_role,omitempty"`
	SpeakingStyle string         `json:"speaking_style,omitempty" yaml:"speaking_style,omitempty"`
	StrictAudit   bool           `json:"strict_audit,omitempty" yaml:"strict_audit,omitempty"`
	Speaker       string         `json:"speaker,omitempty" yaml:"speaker,omitempty"`
	ASRExtra      map[string]any `json:"asr_extra,omitempty" yaml:"asr_extra,omitempty"`

	ConnectTimeout   jsontime.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
	HandshakeTimeout jsontime.Duration `json:"handshake_timeout,omitempty" yaml:"handshake_timeout,omitempty"`
	FinishGrace      jsontime.Duration `json:"finish_grace,omitempty" yaml:"finish_grace,omitempty"`

	PlaybackRate     int               `json:"playback_rate,omitempty" yaml:"playback_rate,omitempty"`
	CaptureRate      int               `json:"capture_rate,omitempty" yaml:"capture_rate,omitempty"`
	QueueCapacity    int               `json:"queue_capacity,omitempty" yaml:"queue_capacity,omitempty"`
	SilenceThreshold jsontime.Duration `json:"silence_threshold,omitempty" yaml:"silence_threshold,omitempty"`
}

// DefaultConfig returns a config with every default filled in and no
// credentials.
func DefaultConfig() Config {
	return Config{
		URL:              DefaultURL,
		AppKey:           DefaultAppKey,
		ResourceID:       DefaultResourceID,
		BotName:          DefaultBotName,
		SystemRole:       DefaultSystemRole,
		SpeakingStyle:    DefaultSpeakingStyle,
		ConnectTimeout:   jsontime.Duration(DefaultConnectTimeout),
		HandshakeTimeout: jsontime.Duration(DefaultHandshakeTimeout),
		FinishGrace:      jsontime.Duration(DefaultFinishGrace),
		PlaybackRate:     DefaultPlaybackRate,
		CaptureRate:      DefaultCaptureRate,
		QueueCapacity:    DefaultQueueCapacity,
		SilenceThreshold: jsontime.Duration(DefaultSilenceThreshold),
	}
}

// WithDefaults returns c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	setString := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	setString(&c.URL, d.URL)
	setString(&c.AppKey, d.AppKey)
	setString(&c.ResourceID, d.ResourceID)
	setString(&c.BotName, d.BotName)
	setString(&c.SystemRole, d.SystemRole)
	setString(&c.SpeakingStyle, d.SpeakingStyle)

	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.FinishGrace <= 0 {
		c.FinishGrace = d.FinishGrace
	}
	if c.PlaybackRate <= 0 {
		c.PlaybackRate = d.PlaybackRate
	}
	if c.CaptureRate <= 0 {
		c.CaptureRate = d.CaptureRate
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = d.SilenceThreshold
	}
	return c
}

// Validate checks that the credentials are present and the audio rates are
// supported.
func (c Config) Validate() error {
	var errs []error
	if c.AppID == "" {
		errs = append(errs, errors.New("app_id is required"))
	}
	if c.AccessKey == "" {
		errs = append(errs, errors.New("access_key is required"))
	}
	if _, err := pcm.FormatForRate(c.PlaybackRate); err != nil {
		errs = append(errs, err)
	}
	if _, err := pcm.FormatForRate(c.CaptureRate); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return errors.Join(errors.New("realtimedialog: invalid config"), err)
	}
	return nil
}

// Header returns the handshake headers for a connection.
func (c Config) Header(connectID string) http.Header {
	h := http.Header{}
	h.Set("X-Api-Resource-Id", c.ResourceID)
	h.Set("X-Api-Access-Key", c.AccessKey)
	h.Set("X-Api-App-Key", c.AppKey)
	h.Set("X-Api-App-ID", c.AppID)
	h.Set("X-Api-Connect-Id", connectID)
	return h
}

// StartSessionPayload builds the StartSession body for this config.
func (c Config) StartSessionPayload() *StartSessionPayload {
	p := &StartSessionPayload{
		TTS: TTSConfig{
			Speaker: c.Speaker,
			AudioConfig: AudioConfig{
				Channel:    1,
				Format:     "pcm",
				SampleRate: c.PlaybackRate,
			},
		},
		Dialog: DialogConfig{
			BotName:       c.BotName,
			DialogID:      c.DialogID,
			SystemRole:    c.SystemRole,
			SpeakingStyle: c.SpeakingStyle,
			Extra:         map[string]any{"strict_audit": c.StrictAudit},
		},
	}
	if len(c.ASRExtra) > 0 {
		p.ASR = &ASRConfig{Extra: c.ASRExtra}
	}
	return p
}
