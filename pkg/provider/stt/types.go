package stt

import "strings"

// EventType enumerates the events a recognition activation can emit.
type EventType int

const (
	// EventStart signals that audio capture has begun.
	EventStart EventType = iota

	// EventResult carries the finalized recognition alternatives.
	EventResult

	// EventError carries a classified recognition failure in Event.Err.
	EventError

	// EventEnd signals that the activation is over. It is always the last
	// event of an activation.
	EventEnd
)

// String returns a short name for the event type.
func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Alternative is one recognition hypothesis.
type Alternative struct {
	// Transcript is the recognized text.
	Transcript string

	// Confidence is the recognizer's confidence in [0, 1]. Zero when the
	// platform does not report it.
	Confidence float64
}

// Event is a single recognition event.
type Event struct {
	Type EventType

	// Alternatives is set for EventResult, best hypothesis first.
	Alternatives []Alternative

	// Err is set for EventError. It is usually a [*types.Error].
	Err error
}

// Top returns the trimmed transcript of the best alternative, or "" when
// the event carries none. Lower-ranked alternatives are ignored.
func (e Event) Top() string {
	if len(e.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(e.Alternatives[0].Transcript)
}
