package tts

import "github.com/MrWong99/saathi/pkg/types"

// Utterance is a single piece of text to be spoken.
type Utterance struct {
	Text   string
	Locale types.Locale

	// Prosody carries rate, pitch and volume. A zero value means platform
	// defaults.
	types.Prosody
}

// EventType enumerates the terminal outcomes of an utterance.
type EventType int

const (
	// EventEnd means the utterance was spoken to completion.
	EventEnd EventType = iota

	// EventCancelled means the utterance was interrupted by CancelAll or by
	// a newer Speak call.
	EventCancelled

	// EventError means speech output failed; Event.Err holds the cause.
	EventError
)

// String returns a short name for the event type.
func (t EventType) String() string {
	switch t {
	case EventEnd:
		return "end"
	case EventCancelled:
		return "cancelled"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the terminal event of an utterance.
type Event struct {
	Type EventType

	// Err is set for EventError, usually a [*types.Error] of kind
	// [types.KindSynthesisFailed].
	Err error
}
