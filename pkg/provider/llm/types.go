package llm

import (
	"errors"

	"github.com/MrWong99/saathi/pkg/types"
)

// GenerationRequest carries everything a Generator needs to produce a reply.
type GenerationRequest struct {
	// History is an immutable snapshot of the conversation before UserTurn,
	// oldest first.
	History []types.Turn

	// UserTurn is the newly finalized user utterance that drives the reply.
	UserTurn types.Turn

	// Persona is an optional instruction prefix describing how the assistant
	// should behave ("always answer in Hindi"). Backends with a dedicated
	// system slot put it there; others prepend it to the first user block.
	Persona string

	// Locale is the conversation locale. Informational for most backends.
	Locale types.Locale
}

// Turns returns History followed by UserTurn as a fresh slice.
func (r GenerationRequest) Turns() []types.Turn {
	out := make([]types.Turn, 0, len(r.History)+1)
	out = append(out, r.History...)
	return append(out, r.UserTurn)
}

// ErrNoUserTurn is returned when a request has an empty UserTurn.
var ErrNoUserTurn = errors.New("llm: request has no user turn")

// Validate checks that r has a non-empty user turn.
func (r GenerationRequest) Validate() error {
	if r.UserTurn.Text == "" {
		return ErrNoUserTurn
	}
	return nil
}

// GenerationReply is the single assistant reply produced for a request.
type GenerationReply struct {
	// Text is the reply text. Never empty on success.
	Text string

	// Placeholder is true when Text is a substituted placeholder rather than
	// backend output (see [WithEmptyReplyPolicy]).
	Placeholder bool

	// Model names the backend model that produced the reply, if known.
	Model string
}
