package controller

import "github.com/MrWong99/saathi/pkg/types"

// State is the turn-taking state of a conversation.
type State int

const (
	// Idle: nothing is outstanding. Start moves to Listening.
	Idle State = iota

	// Listening: one recognition activation is outstanding.
	Listening

	// AwaitingReply: the user turn is in history and one generation call is
	// outstanding.
	AwaitingReply

	// Speaking: the assistant turn is in history and one utterance is
	// playing.
	Speaking

	// Errored: speech capture is denied or unsupported. Only Reset or
	// Cancel leave this state.
	Errored
)

// String returns the snake_case name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case AwaitingReply:
		return "awaiting_reply"
	case Speaking:
		return "speaking"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// EventType enumerates controller notifications.
type EventType int

const (
	// EventStateChanged: State and Previous are set.
	EventStateChanged EventType = iota

	// EventTurnAppended: Turn is set.
	EventTurnAppended

	// EventError: Err is set. The state change that follows is reported
	// separately.
	EventError

	// EventRecognized: Transcript holds the top recognition alternative,
	// possibly empty.
	EventRecognized

	// EventPreempted: another conversation took over a device this one was
	// using. A transition to Idle follows.
	EventPreempted
)

// String returns a short name for the event type.
func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state_changed"
	case EventTurnAppended:
		return "turn_appended"
	case EventError:
		return "error"
	case EventRecognized:
		return "recognized"
	case EventPreempted:
		return "preempted"
	default:
		return "unknown"
	}
}

// Event is delivered to observers registered with [WithObserver].
type Event struct {
	Type EventType

	State    State
	Previous State

	Turn       types.Turn
	Transcript string
	Err        error

	// Device is set for EventPreempted.
	Device string
}
