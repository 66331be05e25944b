// Package stt defines the Source interface for speech-to-text collaborators.
//
// A Source wraps a platform speech recognizer (a browser's Web Speech API
// reached over the device bridge, a console line reader, or any other
// recognizer) and exposes single-utterance activations. Each activation is
// locale-tagged, non-continuous and produces no interim results: it emits a
// Start event, at most one Result, optionally an Error, and finally End.
//
// Implementations must be safe for concurrent use, although the turn-taking
// controller never keeps more than one activation outstanding per Source.
package stt

import (
	"context"

	"github.com/MrWong99/saathi/pkg/types"
)

// Source is the abstraction over any speech-recognition backend.
type Source interface {
	// Activate starts a recognition session for locale and returns a channel
	// that emits the session's events. The channel is closed after the End
	// event, after Deactivate, or when ctx is cancelled, whichever comes first.
	//
	// Activating while a previous activation is outstanding implicitly
	// deactivates the previous one.
	//
	// A non-nil error means the session could not start. Implementations
	// should return a [*types.Error] with [types.KindPermissionDenied] or
	// [types.KindUnsupportedPlatform] when the capture device is unavailable.
	Activate(ctx context.Context, locale types.Locale) (<-chan Event, error)

	// Deactivate stops the outstanding activation, if any, and closes its
	// channel. It must be safe to call when nothing is active and safe to
	// call more than once.
	Deactivate()
}

// Rearmable is implemented by sources that can immediately start a fresh
// activation after an empty or unintelligible utterance, keeping the
// controller in the Listening state instead of returning to Idle.
type Rearmable interface {
	// CanRearm reports whether re-activation is currently supported.
	CanRearm() bool
}
