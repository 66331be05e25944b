// Package openai provides a Generator backed by the OpenAI chat completions
// API or any endpoint compatible with it.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/saathi/pkg/provider/llm"
	"github.com/MrWong99/saathi/pkg/types"
)

var _ llm.Generator = (*Provider)(nil)

const opGenerate = "openai: generate"

// Provider implements llm.Generator using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI Generator.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are the caller's decision.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Name implements llm.Generator.
func (p *Provider) Name() string { return "openai" }

// Generate implements llm.Generator.
func (p *Provider) Generate(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationReply, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", opGenerate, err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewError(types.KindEmptyReply, opGenerate, errors.New("no choices in response"))
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, types.NewError(types.KindEmptyReply, opGenerate, nil)
	}
	return &llm.GenerationReply{Text: text, Model: resp.Model}, nil
}

// buildParams converts a GenerationRequest into OpenAI SDK params.
func (p *Provider) buildParams(req llm.GenerationRequest) oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion
	if req.Persona != "" {
		messages = append(messages, oai.SystemMessage(req.Persona))
	}
	for _, t := range req.Turns() {
		messages = append(messages, convertTurn(t))
	}
	return oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
}

// convertTurn converts a conversation turn to an OpenAI SDK message param.
func convertTurn(t types.Turn) oai.ChatCompletionMessageParamUnion {
	if t.Role == types.RoleAssistant {
		asst := oai.ChatCompletionAssistantMessageParam{}
		asst.Content.OfString = oai.String(t.Text)
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
	}
	return oai.UserMessage(t.Text)
}

// classify maps SDK errors onto the shared error taxonomy. API errors carry
// an HTTP status and are service errors; everything else failed before a
// response arrived.
func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &types.Error{
			Kind:       types.KindService,
			Op:         opGenerate,
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	return types.NewError(types.KindTransport, opGenerate, err)
}
