// Package dialogproto implements the binary framing used by the realtime
// dialog service (端到端实时语音对话).
//
// Every frame starts with a 4-byte header (version, header size, message
// type, flags, serialization, compression) followed by a set of optional
// fields whose presence is decided by the message type, the flags and the
// event code. [Marshal] and [Unmarshal] are pure functions of a [Config]
// and a [Message]; [Codec] wraps a Config for callers that want a shared,
// mutable default per connection.
//
// Example:
//
//	cfg := dialogproto.DefaultConfig()
//	msg := dialogproto.NewEventMessage(dialogproto.TypeFullClient,
//		dialogproto.EventStartSession, "s1", []byte(`{}`))
//	frame, err := dialogproto.Marshal(cfg, msg)
//
//	// audio frames carry no JSON tag
//	audio, err := dialogproto.Marshal(cfg.WithSerialization(dialogproto.SerializationRaw), pcmMsg)
package dialogproto
