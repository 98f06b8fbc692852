package dialogproto

import (
	"errors"
	"fmt"
)

var (
	// ErrShortRead means the frame ended before a declared field did.
	ErrShortRead = errors.New("dialogproto: short read")

	// ErrInvalidLength means a declared length is outside its allowed range.
	ErrInvalidLength = errors.New("dialogproto: invalid length")

	// ErrInvalidType means the type tag is not a known message type.
	ErrInvalidType = errors.New("dialogproto: invalid message type")
)

// FrameError is an unrecoverable framing failure for a single frame. The
// frame should be discarded; the connection itself is still usable.
type FrameError struct {
	Op  string
	Err error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("dialogproto: %s: %v", e.Op, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFrameError reports whether err is a framing failure.
func IsFrameError(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe)
}
