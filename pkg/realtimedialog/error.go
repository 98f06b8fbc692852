package realtimedialog

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned for requests issued after, or still queued at,
	// Close.
	ErrClosed = errors.New("realtimedialog: closed")

	// ErrAlreadySending is returned by StartSendingAudio while audio is
	// already streaming.
	ErrAlreadySending = errors.New("realtimedialog: already sending audio")

	// ErrNoRecorder is returned by StartSendingAudio when no recorder was
	// configured.
	ErrNoRecorder = errors.New("realtimedialog: no recorder")

	// ErrQueueFull is reported when an audio frame is dropped because the
	// send queue is full.
	ErrQueueFull = errors.New("realtimedialog: send queue full")

	// ErrConnectionFailed is the cause reported for a ConnectionFailed
	// event from the server.
	ErrConnectionFailed = errors.New("realtimedialog: connection failed")
)

// Error is a protocol error delivered in an ERROR frame. It ends the
// current session.
type Error struct {
	// Code is the error code from the frame header.
	Code uint32 `json:"code"`

	// Message is the error text from the payload.
	Message string `json:"message"`

	// SessionID is the session the error refers to, if any.
	SessionID string `json:"session_id,omitempty"`
}

func (e *Error) Error() string {
	kind := "server error"
	if e.IsAuthError() {
		kind = "authentication error"
	}
	return fmt.Sprintf("realtimedialog: %s %d: %s", kind, e.Code, e.Message)
}

// IsAuthError reports whether the credentials were rejected.
func (e *Error) IsAuthError() bool {
	return e.Code >= 1000 && e.Code < 2000
}

// IsClientError reports whether the request was malformed or not allowed.
func (e *Error) IsClientError() bool {
	return e.Code >= 40000000 && e.Code < 50000000
}

// IsServerError reports whether the server failed internally.
func (e *Error) IsServerError() bool {
	return e.Code >= 50000000
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// newProtocolError builds an Error from an ERROR frame. The payload is
// usually JSON with an "error" field; anything else is kept as text.
func newProtocolError(code uint32, sessionID string, payload []byte) *Error {
	e := &Error{Code: code, SessionID: sessionID, Message: string(payload)}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &body) == nil {
		switch {
		case body.Error != "":
			e.Message = body.Error
		case body.Message != "":
			e.Message = body.Message
		}
	}
	return e
}
