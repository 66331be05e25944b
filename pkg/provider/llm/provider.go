// Package llm defines the Generator interface for text-generation backends.
//
// A Generator wraps a remote or local model API (Google Gemini over plain
// HTTP, any OpenAI-compatible endpoint, or one of the vendors reachable through
// any-llm-go) and turns a conversation snapshot plus the newest user turn into
// exactly one assistant reply.
//
// Generators invoke their backend once per call. They never retry and never
// back off; that policy belongs to the caller (see internal/resilience for an
// opt-in fallback chain). Failures are reported as [*types.Error] values of
// kind [types.KindTransport], [types.KindService] or [types.KindEmptyReply].
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Generator is the abstraction over any text-generation backend.
type Generator interface {
	// Generate sends req to the backend and waits for the reply.
	//
	// The request payload embeds req.History in order followed by
	// req.UserTurn, each mapped to a role-tagged text block.
	//
	// Network failures and context expiry surface as [types.KindTransport].
	// A non-success status or a body that does not have the expected shape
	// surfaces as [types.KindService] with the status code and body attached.
	// A well-formed response without usable text surfaces as
	// [types.KindEmptyReply]; wrap the generator with [WithEmptyReplyPolicy]
	// to substitute a placeholder instead.
	Generate(ctx context.Context, req GenerationRequest) (*GenerationReply, error)

	// Name returns a short identifier for logs and metrics, e.g. "gemini".
	Name() string
}
