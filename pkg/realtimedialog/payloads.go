package realtimedialog

import (
	"encoding/json"
	"strings"
)

// AudioConfig describes the audio the server synthesizes.
type AudioConfig struct {
	Channel    int    `json:"channel"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	Speaker     string      `json:"speaker,omitempty"`
	AudioConfig AudioConfig `json:"audio_config"`
}

// ASRConfig configures speech recognition.
type ASRConfig struct {
	Extra map[string]any `json:"extra,omitempty"`
}

// DialogConfig is the bot persona.
type DialogConfig struct {
	BotName       string         `json:"bot_name"`
	DialogID      string         `json:"dialog_id,omitempty"`
	SystemRole    string         `json:"system_role"`
	SpeakingStyle string         `json:"speaking_style"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// StartSessionPayload is the body of a StartSession request.
type StartSessionPayload struct {
	ASR    *ASRConfig   `json:"asr,omitempty"`
	TTS    TTSConfig    `json:"tts"`
	Dialog DialogConfig `json:"dialog"`
}

// SayHelloPayload asks the bot to speak a greeting.
type SayHelloPayload struct {
	Content string `json:"content"`
}

// ChatTTSTextPayload injects text for the bot to speak. A sentence may be
// streamed in pieces: the first with Start, the last with End.
type ChatTTSTextPayload struct {
	Start   bool   `json:"start"`
	End     bool   `json:"end"`
	Content string `json:"content"`
}

// ASRResult is one recognition hypothesis.
type ASRResult struct {
	Text      string `json:"text"`
	IsInterim bool   `json:"is_interim"`
}

// ServerText is the text carried by recognition, chat and TTS sentence
// events. Fields the event does not use are empty.
type ServerText struct {
	Content  string      `json:"content,omitempty"`
	Text     string      `json:"text,omitempty"`
	Results  []ASRResult `json:"results,omitempty"`
	Question string      `json:"question_id,omitempty"`
	Reply    string      `json:"reply_id,omitempty"`
}

// String returns the most specific text present.
func (t *ServerText) String() string {
	switch {
	case t == nil:
		return ""
	case t.Content != "":
		return t.Content
	case t.Text != "":
		return t.Text
	}
	parts := make([]string, 0, len(t.Results))
	for _, r := range t.Results {
		if r.Text != "" {
			parts = append(parts, r.Text)
		}
	}
	return strings.Join(parts, " ")
}

// parseServerText decodes payload best-effort. It returns nil if the
// payload is not a JSON object.
func parseServerText(payload []byte) *ServerText {
	var t ServerText
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil
	}
	return &t
}
