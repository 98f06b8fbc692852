package realtimedialog

import (
	"fmt"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogproto"
)

// Kind classifies an Event.
type Kind uint8

const (
	// KindStatus carries a lifecycle change in Status.
	KindStatus Kind = iota + 1

	// KindText carries server text: recognition results, chat replies and
	// TTS sentence markers.
	KindText

	// KindError carries a failure in Err.
	KindError

	// KindPlaybackStart is reported when remote audio starts rendering.
	KindPlaybackStart

	// KindPlaybackEnd is reported when remote audio has gone quiet.
	KindPlaybackEnd
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindText:
		return "text"
	case KindError:
		return "error"
	case KindPlaybackStart:
		return "playback_start"
	case KindPlaybackEnd:
		return "playback_end"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Event is a notification for the application layer.
type Event struct {
	Kind Kind

	// Status is set for KindStatus.
	Status string

	// ServerEvent, SessionID and Payload describe the frame that caused the
	// event, when there was one.
	ServerEvent dialogproto.Event
	SessionID   string
	Payload     []byte

	// Text is the decoded payload of a KindText event, or nil if it was
	// not a JSON object.
	Text *ServerText

	// Err is set for KindError. Protocol errors are *Error.
	Err error
}

func (e Event) String() string {
	switch e.Kind {
	case KindStatus:
		return "status: " + e.Status
	case KindText:
		return fmt.Sprintf("%s: %s", e.ServerEvent, e.Text.String())
	case KindError:
		return fmt.Sprintf("error: %v", e.Err)
	default:
		return e.Kind.String()
	}
}

// Observer receives Events. HandleEvent is called from the transport read
// goroutine or the playback loop and must return quickly.
type Observer interface {
	HandleEvent(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// HandleEvent calls f(ev).
func (f ObserverFunc) HandleEvent(ev Event) { f(ev) }

type nopObserver struct{}

func (nopObserver) HandleEvent(Event) {}
