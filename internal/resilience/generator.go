package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/saathi/pkg/provider/llm"
	"github.com/MrWong99/saathi/pkg/types"
)

var _ llm.Generator = (*GeneratorFallback)(nil)

// GeneratorFallback is an [llm.Generator] that tries a primary backend and
// then its fallbacks, each behind its own circuit breaker.
//
// When every backend is skipped by an open breaker the returned error is of
// kind [types.KindService]; otherwise it carries the kind of the last
// backend failure.
type GeneratorFallback struct {
	group *FallbackGroup[llm.Generator]
}

// NewGeneratorFallback returns a GeneratorFallback with primary as the
// preferred backend.
func NewGeneratorFallback(primary llm.Generator, cfg FallbackConfig) *GeneratorFallback {
	return &GeneratorFallback{group: NewFallbackGroup(primary, primary.Name(), cfg)}
}

// AddFallback appends g to the chain.
func (f *GeneratorFallback) AddFallback(g llm.Generator) {
	f.group.AddFallback(g.Name(), g)
}

// Name returns the primary backend's name.
func (f *GeneratorFallback) Name() string { return f.group.entries[0].name }

// States reports the breaker state of each backend.
func (f *GeneratorFallback) States() []EntryState { return f.group.States() }

// Generate implements [llm.Generator].
func (f *GeneratorFallback) Generate(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationReply, error) {
	reply, err := ExecuteWithResult(ctx, f.group, func(g llm.Generator) (*llm.GenerationReply, error) {
		return g.Generate(ctx, req)
	})
	if err != nil && errors.Is(err, ErrAllFailed) && types.KindOf(err) == types.KindUnknown {
		err = types.NewError(types.KindService, "fallback: generate", err)
	}
	return reply, err
}
