package dialogproto

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

const (
	// MaxIDSize bounds the declared length of a session id or connect id.
	MaxIDSize = 1024

	// MaxPayloadSize bounds the declared length of a payload on the wire.
	MaxPayloadSize = 10 * 1024 * 1024
)

// Config holds the header defaults applied to every frame built with it.
// It is a plain value; copies are independent.
type Config struct {
	Version       Version
	HeaderSize    HeaderSize
	Serialization Serialization
	Compression   Compression
}

// DefaultConfig returns version 1, a 4-byte header, JSON serialization and
// no compression.
func DefaultConfig() Config {
	return Config{
		Version:       Version1,
		HeaderSize:    HeaderSize4,
		Serialization: SerializationJSON,
		Compression:   CompressionNone,
	}
}

// WithSerialization returns a copy of c using s.
func (c Config) WithSerialization(s Serialization) Config {
	c.Serialization = s
	return c
}

// WithCompression returns a copy of c using comp.
func (c Config) WithCompression(comp Compression) Config {
	c.Compression = comp
	return c
}

// Validate checks that every field fits its nibble and names a known value.
func (c Config) Validate() error {
	if c.Version < Version1 || c.Version > Version4 {
		return fmt.Errorf("dialogproto: invalid version %d", c.Version)
	}
	if c.HeaderSize < HeaderSize4 || c.HeaderSize > HeaderSize16 {
		return fmt.Errorf("dialogproto: invalid header size %d", c.HeaderSize)
	}
	switch c.Serialization {
	case SerializationRaw, SerializationJSON, SerializationThrift, SerializationCustom:
	default:
		return fmt.Errorf("dialogproto: invalid serialization %d", c.Serialization)
	}
	switch c.Compression {
	case CompressionNone, CompressionGzip, CompressionCustom:
	default:
		return fmt.Errorf("dialogproto: invalid compression %d", c.Compression)
	}
	return nil
}

// Marshal encodes msg into a frame using the header defaults in cfg.
//
// Frame layout (big-endian):
//
//	byte 0   version<<4 | header size
//	byte 1   type<<4 | flags
//	byte 2   serialization<<4 | compression
//	byte 3   reserved
//	[seq]        int32, when the flags carry a sequence code
//	[error code] uint32, for ERROR frames
//	[event]      int32, when WITH_EVENT is set, followed by
//	  [session id]  uint32 length + bytes, unless a connection event
//	  [connect id]  uint32 length + bytes, for connection acknowledgements
//	payload      uint32 length + bytes
func Marshal(cfg Config, msg *Message) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !msg.Type.Valid() {
		return nil, &FrameError{Op: "marshal type", Err: ErrInvalidType}
	}
	if msg.Flags > 0x0f {
		return nil, fmt.Errorf("dialogproto: flags %#x overflow nibble", uint8(msg.Flags))
	}

	buf := new(bytes.Buffer)

	// Header
	buf.WriteByte(byte(cfg.Version)<<4 | byte(cfg.HeaderSize))
	buf.WriteByte(byte(msg.Type)<<4 | byte(msg.Flags))
	buf.WriteByte(byte(cfg.Serialization)<<4 | byte(cfg.Compression))
	buf.WriteByte(0x00)
	if extra := cfg.HeaderSize.Bytes() - 4; extra > 0 {
		buf.Write(make([]byte, extra))
	}

	if msg.HasSequence() {
		writeUint32(buf, uint32(msg.Sequence))
	}

	if msg.HasErrorCode() {
		writeUint32(buf, msg.ErrorCode)
	}

	if msg.Flags.ContainsEvent() {
		writeUint32(buf, uint32(msg.Event))

		if msg.Event.HasSessionID() {
			if err := writeID(buf, "session id", msg.SessionID); err != nil {
				return nil, err
			}
		}
		if msg.Event.HasConnectID() {
			if err := writeID(buf, "connect id", msg.ConnectID); err != nil {
				return nil, err
			}
		}
	}

	payload := msg.Payload
	if cfg.Compression == CompressionGzip && len(payload) > 0 {
		compressed, err := gzipCompress(payload)
		if err != nil {
			return nil, fmt.Errorf("dialogproto: gzip compress: %w", err)
		}
		payload = compressed
	}
	if len(payload) > MaxPayloadSize {
		return nil, &FrameError{Op: "marshal payload", Err: ErrInvalidLength}
	}
	writeUint32(buf, uint32(len(payload)))
	buf.Write(payload)

	return buf.Bytes(), nil
}

// Unmarshal decodes one frame.
//
// Framing failures are reported as *FrameError wrapping ErrShortRead,
// ErrInvalidLength or ErrInvalidType. When the type tag is unknown the
// returned message is non-nil with Type set to TypeInvalid and only the
// header fields filled in; nothing after the header is interpreted.
func Unmarshal(data []byte) (*Message, error) {
	if len(data) < 4 {
		return nil, &FrameError{Op: "read header", Err: ErrShortRead}
	}

	msg := &Message{
		Version:       Version(data[0] >> 4),
		Type:          typeFromTag(data[1] >> 4),
		Flags:         Flags(data[1] & 0x0f),
		Serialization: Serialization(data[2] >> 4),
		Compression:   Compression(data[2] & 0x0f),
	}
	if msg.Type == TypeInvalid {
		return msg, &FrameError{Op: "read type", Err: ErrInvalidType}
	}

	r := bytes.NewReader(data)
	headerSize := int(data[0]&0x0f) * 4
	if headerSize < 4 {
		headerSize = 4
	}
	if len(data) < headerSize {
		return nil, &FrameError{Op: "read header", Err: ErrShortRead}
	}
	if _, err := r.Seek(int64(headerSize), io.SeekStart); err != nil {
		return nil, &FrameError{Op: "read header", Err: ErrShortRead}
	}

	var err error
	if msg.HasSequence() {
		var seq uint32
		if seq, err = readUint32(r, "read sequence"); err != nil {
			return nil, err
		}
		msg.Sequence = int32(seq)
	}

	if msg.HasErrorCode() {
		if msg.ErrorCode, err = readUint32(r, "read error code"); err != nil {
			return nil, err
		}
	}

	if msg.Flags.ContainsEvent() {
		var ev uint32
		if ev, err = readUint32(r, "read event"); err != nil {
			return nil, err
		}
		msg.Event = Event(int32(ev))

		if msg.Event.HasSessionID() {
			if msg.SessionID, err = readID(r, "read session id"); err != nil {
				return nil, err
			}
		}
		if msg.Event.HasConnectID() {
			if msg.ConnectID, err = readID(r, "read connect id"); err != nil {
				return nil, err
			}
		}
	}

	size, err := readUint32(r, "read payload size")
	if err != nil {
		return nil, err
	}
	if size > MaxPayloadSize {
		return nil, &FrameError{Op: "read payload", Err: ErrInvalidLength}
	}
	if int64(size) > int64(r.Len()) {
		return nil, &FrameError{Op: "read payload", Err: ErrShortRead}
	}
	msg.Payload = make([]byte, size)
	if _, err := io.ReadFull(r, msg.Payload); err != nil {
		return nil, &FrameError{Op: "read payload", Err: ErrShortRead}
	}

	if msg.Compression == CompressionGzip && len(msg.Payload) > 0 {
		decompressed, err := gzipDecompress(msg.Payload)
		if err != nil {
			return nil, &FrameError{Op: "decompress payload", Err: err}
		}
		msg.Payload = decompressed
	}

	return msg, nil
}

// Codec holds per-connection header defaults. It is safe for concurrent
// use; a sender that needs a non-default mode for one frame should use
// [Marshal] with a derived Config rather than flipping the shared default.
type Codec struct {
	mu  sync.Mutex
	cfg Config
}

// NewCodec creates a codec with the given defaults.
func NewCodec(cfg Config) *Codec {
	return &Codec{cfg: cfg}
}

// Config returns a snapshot of the current defaults.
func (c *Codec) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetSerialization changes the serialization default for later frames.
func (c *Codec) SetSerialization(s Serialization) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Serialization = s
}

// SetCompression changes the compression default for later frames.
func (c *Codec) SetCompression(comp Compression) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Compression = comp
}

// Marshal encodes msg with the current defaults.
func (c *Codec) Marshal(msg *Message) ([]byte, error) {
	return Marshal(c.Config(), msg)
}

// Unmarshal decodes a frame. Decoding does not depend on the defaults.
func (c *Codec) Unmarshal(data []byte) (*Message, error) {
	return Unmarshal(data)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeID(buf *bytes.Buffer, what, id string) error {
	if len(id) > MaxIDSize {
		return &FrameError{Op: "marshal " + what, Err: ErrInvalidLength}
	}
	writeUint32(buf, uint32(len(id)))
	buf.WriteString(id)
	return nil
}

func readUint32(r *bytes.Reader, op string) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, &FrameError{Op: op, Err: ErrShortRead}
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readID(r *bytes.Reader, op string) (string, error) {
	size, err := readUint32(r, op)
	if err != nil {
		return "", err
	}
	if size > MaxIDSize {
		return "", &FrameError{Op: op, Err: ErrInvalidLength}
	}
	if int64(size) > int64(r.Len()) {
		return "", &FrameError{Op: op, Err: ErrShortRead}
	}
	if size == 0 {
		return "", nil
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", &FrameError{Op: op, Err: ErrShortRead}
	}
	return string(b), nil
}

// gzipCompress gzip 压缩
func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gzipDecompress gzip 解压, bounded by MaxPayloadSize.
func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, MaxPayloadSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxPayloadSize {
		return nil, ErrInvalidLength
	}
	return out, nil
}
