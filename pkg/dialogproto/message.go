package dialogproto

import "fmt"

// ================== 协议常量 ==================

// Version is the protocol version carried in the upper nibble of byte 0.
type Version uint8

const (
	Version1 Version = 0b0001
	Version2 Version = 0b0010
	Version3 Version = 0b0011
	Version4 Version = 0b0100
)

// HeaderSize is the header length in 4-byte units, carried in the lower
// nibble of byte 0.
type HeaderSize uint8

const (
	HeaderSize4  HeaderSize = 0b0001
	HeaderSize8  HeaderSize = 0b0010
	HeaderSize12 HeaderSize = 0b0011
	HeaderSize16 HeaderSize = 0b0100
)

// Bytes returns the header length in bytes.
func (h HeaderSize) Bytes() int {
	return int(h) * 4
}

// Serialization tells the peer how the payload is encoded.
type Serialization uint8

const (
	SerializationRaw    Serialization = 0b0000
	SerializationJSON   Serialization = 0b0001
	SerializationThrift Serialization = 0b0011
	SerializationCustom Serialization = 0b1111
)

func (s Serialization) String() string {
	switch s {
	case SerializationRaw:
		return "raw"
	case SerializationJSON:
		return "json"
	case SerializationThrift:
		return "thrift"
	case SerializationCustom:
		return "custom"
	}
	return fmt.Sprintf("serialization(%d)", uint8(s))
}

// Compression tells the peer how the payload is compressed.
type Compression uint8

const (
	CompressionNone   Compression = 0b0000
	CompressionGzip   Compression = 0b0001
	CompressionCustom Compression = 0b1111
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionCustom:
		return "custom"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// MessageType is the logical type of a frame. The numeric value of every
// valid type equals its 4-bit wire tag.
type MessageType uint8

const (
	TypeInvalid         MessageType = 0
	TypeFullClient      MessageType = 0b0001
	TypeAudioOnlyClient MessageType = 0b0010
	TypeFullServer      MessageType = 0b1001
	TypeAudioOnlyServer MessageType = 0b1011
	TypeFrontEndResult  MessageType = 0b1100
	TypeError           MessageType = 0b1111
)

// typeFromTag maps a wire tag to a MessageType. Unknown tags map to
// TypeInvalid.
func typeFromTag(tag uint8) MessageType {
	switch t := MessageType(tag); t {
	case TypeFullClient, TypeAudioOnlyClient, TypeFullServer,
		TypeAudioOnlyServer, TypeFrontEndResult, TypeError:
		return t
	}
	return TypeInvalid
}

// Valid reports whether t is one of the known wire types.
func (t MessageType) Valid() bool {
	return t != TypeInvalid && typeFromTag(uint8(t)) == t
}

func (t MessageType) String() string {
	switch t {
	case TypeFullClient:
		return "FULL_CLIENT"
	case TypeAudioOnlyClient:
		return "AUDIO_ONLY_CLIENT"
	case TypeFullServer:
		return "FULL_SERVER"
	case TypeAudioOnlyServer:
		return "AUDIO_ONLY_SERVER"
	case TypeFrontEndResult:
		return "FRONT_END_RESULT_SERVER"
	case TypeError:
		return "ERROR"
	}
	return "INVALID"
}

// Flags is the 4-bit type-specific flag field. The two low bits are a
// mutually exclusive sequence code; bit 2 marks the presence of an event.
type Flags uint8

const (
	FlagNoSeq       Flags = 0b0000
	FlagPositiveSeq Flags = 0b0001
	FlagLastNoSeq   Flags = 0b0010
	FlagNegativeSeq Flags = 0b0011
	FlagWithEvent   Flags = 0b0100

	seqMask Flags = 0b0011
)

// ContainsSequence reports whether a 4-byte sequence number follows the
// header. The sequence sub-field is compared as a 2-bit code, not tested as
// a bitmask.
func (f Flags) ContainsSequence() bool {
	code := f & seqMask
	return code == FlagPositiveSeq || code == FlagNegativeSeq
}

// ContainsEvent reports whether the event block is present.
func (f Flags) ContainsEvent() bool {
	return f&FlagWithEvent != 0
}

// Event is an application-level action code.
type Event int32

const (
	EventStartConnection    Event = 1
	EventFinishConnection   Event = 2
	EventConnectionStarted  Event = 50
	EventConnectionFailed   Event = 51
	EventConnectionFinished Event = 52
	EventStartSession       Event = 100
	EventFinishSession      Event = 102
	EventSessionStarted     Event = 150
	EventSessionFinished    Event = 152
	EventSessionFailed      Event = 153
	EventTaskRequest        Event = 200
	EventSayHello           Event = 300
	EventTTSSentenceStart   Event = 350
	EventTTSSentenceEnd     Event = 351
	EventTTSResponse        Event = 352
	EventTTSEnded           Event = 359
	EventASRInfo            Event = 450
	EventASRResponse        Event = 451
	EventASREnded           Event = 459
	EventChatTTSText        Event = 500
	EventChatResponse       Event = 550
	EventChatEnded          Event = 559
)

var eventNames = map[Event]string{
	EventStartConnection:    "StartConnection",
	EventFinishConnection:   "FinishConnection",
	EventConnectionStarted:  "ConnectionStarted",
	EventConnectionFailed:   "ConnectionFailed",
	EventConnectionFinished: "ConnectionFinished",
	EventStartSession:       "StartSession",
	EventFinishSession:      "FinishSession",
	EventSessionStarted:     "SessionStarted",
	EventSessionFinished:    "SessionFinished",
	EventSessionFailed:      "SessionFailed",
	EventTaskRequest:        "TaskRequest",
	EventSayHello:           "SayHello",
	EventTTSSentenceStart:   "TTSSentenceStart",
	EventTTSSentenceEnd:     "TTSSentenceEnd",
	EventTTSResponse:        "TTSResponse",
	EventTTSEnded:           "TTSEnded",
	EventASRInfo:            "ASRInfo",
	EventASRResponse:        "ASRResponse",
	EventASREnded:           "ASREnded",
	EventChatTTSText:        "ChatTTSText",
	EventChatResponse:       "ChatResponse",
	EventChatEnded:          "ChatEnded",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Event(%d)", int32(e))
}

// IsConnectionEvent reports whether e belongs to the connection lifecycle.
// Connection events never carry a session id; the acknowledgements among
// them carry a connect id instead.
func (e Event) IsConnectionEvent() bool {
	switch e {
	case EventStartConnection, EventFinishConnection,
		EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	}
	return false
}

// HasSessionID reports whether the session id block is on the wire for e.
func (e Event) HasSessionID() bool {
	return !e.IsConnectionEvent()
}

// HasConnectID reports whether the connect id block is on the wire for e.
func (e Event) HasConnectID() bool {
	switch e {
	case EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	}
	return false
}

// ================== 协议结构 ==================

// Message is one protocol frame in logical form.
//
// Which optional fields are meaningful is a function of Type, Flags and
// Event; see [Message.HasSequence], [Message.HasSessionID],
// [Message.HasConnectID] and [Message.HasErrorCode]. Fields that are absent
// on the wire decode as their zero value.
type Message struct {
	Type  MessageType
	Flags Flags

	Event     Event
	SessionID string
	ConnectID string
	Sequence  int32
	ErrorCode uint32
	Payload   []byte

	// Header fields observed when the message was decoded. They are ignored
	// by Marshal, which takes them from its Config.
	Version       Version
	Serialization Serialization
	Compression   Compression
}

// NewMessage creates a message of the given type and flags.
func NewMessage(t MessageType, flags Flags) *Message {
	return &Message{Type: t, Flags: flags}
}

// NewEventMessage creates a message carrying the WITH_EVENT flag.
func NewEventMessage(t MessageType, ev Event, sessionID string, payload []byte) *Message {
	return &Message{
		Type:      t,
		Flags:     FlagWithEvent,
		Event:     ev,
		SessionID: sessionID,
		Payload:   payload,
	}
}

// HasSequence reports whether the sequence field is present.
func (m *Message) HasSequence() bool {
	return m.Flags.ContainsSequence()
}

// HasErrorCode reports whether the error code field is present.
func (m *Message) HasErrorCode() bool {
	return m.Type == TypeError
}

// HasSessionID reports whether the session id block is present.
func (m *Message) HasSessionID() bool {
	return m.Flags.ContainsEvent() && m.Event.HasSessionID()
}

// HasConnectID reports whether the connect id block is present.
func (m *Message) HasConnectID() bool {
	return m.Flags.ContainsEvent() && m.Event.HasConnectID()
}

// IsAudio reports whether the message carries only audio.
func (m *Message) IsAudio() bool {
	return m.Type == TypeAudioOnlyClient || m.Type == TypeAudioOnlyServer
}

// IsError reports whether the message is a server error.
func (m *Message) IsError() bool {
	return m.Type == TypeError
}

func (m *Message) String() string {
	s := fmt.Sprintf("%s flags=%04b", m.Type, uint8(m.Flags))
	if m.Flags.ContainsEvent() {
		s += " event=" + m.Event.String()
	}
	if m.HasSessionID() && m.SessionID != "" {
		s += " session=" + m.SessionID
	}
	if m.HasConnectID() && m.ConnectID != "" {
		s += " connect=" + m.ConnectID
	}
	if m.HasSequence() {
		s += fmt.Sprintf(" seq=%d", m.Sequence)
	}
	if m.HasErrorCode() {
		s += fmt.Sprintf(" code=%d", m.ErrorCode)
	}
	return s + fmt.Sprintf(" payload=%dB", len(m.Payload))
}
