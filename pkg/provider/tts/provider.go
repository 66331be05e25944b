// Package tts defines the Synthesizer interface for text-to-speech collaborators.
//
// A Synthesizer wraps a platform speech engine (the browser's speechSynthesis
// reached over the device bridge, a console writer, or any other engine) and
// speaks one utterance per Speak call. Every utterance ends with exactly one
// terminal event: completion, cancellation, or error. The guarantee holds even
// when the utterance is cut short by CancelAll, so callers waiting on the
// event channel are never left hanging.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Synthesizer is the abstraction over any speech output backend.
type Synthesizer interface {
	// Speak starts speaking u and returns a channel that receives the
	// utterance's terminal event and is then closed. The channel is buffered
	// so the terminal event is delivered even if nobody reads it.
	//
	// Implementations speak one utterance at a time: a Speak call while a
	// previous utterance is still playing cancels the previous one first
	// (last reply wins). Replies are never queued.
	//
	// A non-nil error means the utterance could not be started; it should be
	// a [*types.Error] with [types.KindSynthesisFailed] or
	// [types.KindUnsupportedPlatform].
	Speak(ctx context.Context, u Utterance) (<-chan Event, error)

	// CancelAll stops any in-progress utterance. Each cancelled utterance
	// still receives a terminal EventCancelled. Safe to call when idle.
	CancelAll()
}
