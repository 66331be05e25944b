// Package mock provides a test double for the llm.Generator interface.
//
// Use Generator in unit tests to verify that the controller sends the
// expected GenerationRequests and to feed controlled replies without a live
// backend. All fields are safe to set before calling any method; mutating them
// during a concurrent call is the caller's responsibility.
//
// Example:
//
//	g := &mock.Generator{Reply: &llm.GenerationReply{Text: "hi there"}}
//	reply, err := g.Generate(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/saathi/pkg/provider/llm"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Req is the GenerationRequest passed to Generate.
	Req llm.GenerationRequest
}

// Generator is a mock implementation of llm.Generator.
// A nil Reply with a nil Err returns an empty reply.
type Generator struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Reply is returned by Generate.
	Reply *llm.GenerationReply

	// Replies, when non-empty, is consumed one entry per call before falling
	// back to Reply.
	Replies []string

	// Err, if non-nil, is returned as the error from Generate.
	Err error

	// Gate, if non-nil, makes Generate wait until a value is received or the
	// channel is closed. Unless IgnoreContext is set, ctx cancellation also
	// releases the wait and Generate returns ctx.Err().
	Gate chan struct{}

	// IgnoreContext makes a gated Generate ignore ctx, modelling a network
	// call that cannot be aborted.
	IgnoreContext bool

	// GeneratorName is returned by Name. Defaults to "mock".
	GeneratorName string

	// --- Call records (read after test) ---

	// Calls records every invocation of Generate in order.
	Calls []GenerateCall

	// MaxOutstanding is the highest number of concurrent Generate calls seen.
	MaxOutstanding int

	outstanding int
	next        int
}

var _ llm.Generator = (*Generator)(nil)

// Generate records the call and returns the configured response.
func (g *Generator) Generate(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationReply, error) {
	g.mu.Lock()
	g.Calls = append(g.Calls, GenerateCall{Ctx: ctx, Req: req})
	g.outstanding++
	if g.outstanding > g.MaxOutstanding {
		g.MaxOutstanding = g.outstanding
	}
	gate, ignore := g.Gate, g.IgnoreContext
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.outstanding--
		g.mu.Unlock()
	}()

	if gate != nil {
		if ignore {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	if g.next < len(g.Replies) {
		text := g.Replies[g.next]
		g.next++
		return &llm.GenerationReply{Text: text, Model: "mock"}, nil
	}
	if g.Reply == nil {
		return &llm.GenerationReply{}, nil
	}
	r := *g.Reply
	return &r, nil
}

// Name implements llm.Generator.
func (g *Generator) Name() string {
	if g.GeneratorName != "" {
		return g.GeneratorName
	}
	return "mock"
}

// CallCount returns the number of Generate calls. Thread-safe.
func (g *Generator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}

// LastRequest returns the most recent request, or false when none was made.
func (g *Generator) LastRequest() (llm.GenerationRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Calls) == 0 {
		return llm.GenerationRequest{}, false
	}
	return g.Calls[len(g.Calls)-1].Req, true
}

// Outstanding returns the number of Generate calls currently in progress.
func (g *Generator) Outstanding() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outstanding
}

// Peak returns MaxOutstanding under the lock.
func (g *Generator) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.MaxOutstanding
}
