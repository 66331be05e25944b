// Package types defines the shared types used across all Saathi packages.
//
// These types form the lingua franca between the transcript source, the
// response generator, the speech synthesizer, and the turn-taking controller.
// Each package defines its own domain types; cross-cutting data structures
// live here to avoid circular imports.
package types

import "strings"

// Role identifies who produced a [Turn].
type Role string

const (
	// RoleUser marks a turn spoken by the human.
	RoleUser Role = "user"

	// RoleAssistant marks a turn produced by the generation collaborator.
	RoleAssistant Role = "assistant"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one finalized utterance in a conversation.
//
// A Turn is immutable once appended to a conversation history. Sequence is
// assigned at append time and defines the ordering of turns; it starts at 1
// and grows by exactly one per appended turn.
type Turn struct {
	// Role is the speaker of this turn.
	Role Role

	// Text is the raw transcript (user) or generated reply (assistant).
	// It is never empty once finalized.
	Text string

	// Sequence is the 1-based position of the turn in its history.
	Sequence int
}

// Locale is a BCP-47 language tag such as "hi-IN" or "en-US".
type Locale string

// DefaultLocale is used when no locale has been configured.
const DefaultLocale Locale = "hi-IN"

// Language returns the primary language subtag ("hi" for "hi-IN").
func (l Locale) Language() string {
	lang, _, _ := strings.Cut(string(l), "-")
	return strings.ToLower(lang)
}

// Prosody holds the speech output parameters for an utterance. Values follow
// the Web Speech API ranges: Rate in [0.1, 10], Pitch in [0, 2], Volume in
// [0, 1]. A zero Prosody means "platform defaults".
type Prosody struct {
	Rate   float64
	Pitch  float64
	Volume float64
}

// DefaultProsody speaks at normal rate, pitch and volume.
var DefaultProsody = Prosody{Rate: 1, Pitch: 1, Volume: 1}
