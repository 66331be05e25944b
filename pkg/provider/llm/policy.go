package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/saathi/pkg/types"
)

// EmptyReplyPolicy decides what happens when a backend answers without usable
// text.
type EmptyReplyPolicy string

const (
	// EmptyReplyPlaceholder substitutes a placeholder reply so the
	// conversation keeps flowing.
	EmptyReplyPlaceholder EmptyReplyPolicy = "placeholder"

	// EmptyReplyFail fails the turn with [types.KindEmptyReply].
	EmptyReplyFail EmptyReplyPolicy = "fail"
)

// IsValid reports whether p is a recognised policy.
func (p EmptyReplyPolicy) IsValid() bool {
	return p == EmptyReplyPlaceholder || p == EmptyReplyFail
}

// DefaultPlaceholder returns the stock placeholder for locale.
func DefaultPlaceholder(locale types.Locale) string {
	if locale.Language() == "hi" {
		return "मुझे समझ नहीं आया।"
	}
	return "Sorry, I did not catch that."
}

// WithEmptyReplyPolicy wraps g so that empty replies are handled according to
// policy. Replies consisting only of whitespace count as empty regardless of
// how the backend reported them. An empty placeholder means
// [DefaultPlaceholder] for the request locale.
//
// Under [EmptyReplyPlaceholder] the substituted reply is returned as a normal
// successful reply with Placeholder set.
func WithEmptyReplyPolicy(g Generator, policy EmptyReplyPolicy, placeholder string) Generator {
	if policy == "" {
		policy = EmptyReplyPlaceholder
	}
	return &policyGenerator{inner: g, policy: policy, placeholder: placeholder}
}

type policyGenerator struct {
	inner       Generator
	policy      EmptyReplyPolicy
	placeholder string
}

func (p *policyGenerator) Name() string { return p.inner.Name() }

func (p *policyGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationReply, error) {
	reply, err := p.inner.Generate(ctx, req)
	if err == nil {
		if reply != nil && strings.TrimSpace(reply.Text) != "" {
			return reply, nil
		}
		err = types.NewError(types.KindEmptyReply, p.inner.Name()+": generate", nil)
	}
	if !errors.Is(err, types.ErrEmptyReply) || p.policy != EmptyReplyPlaceholder {
		return nil, err
	}

	text := p.placeholder
	if text == "" {
		text = DefaultPlaceholder(req.Locale)
	}
	out := &GenerationReply{Text: text, Placeholder: true}
	if reply != nil {
		out.Model = reply.Model
	}
	return out, nil
}
