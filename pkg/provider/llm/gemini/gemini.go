// Package gemini implements the llm.Generator interface for Google's Gemini
// generateContent REST endpoint.
//
// Each call POSTs one JSON body of ordered role/text content blocks:
//
//	{"contents":[{"role":"user","parts":[{"text":"..."}]},
//	             {"role":"model","parts":[{"text":"..."}]}, ...],
//	 "systemInstruction":{"parts":[{"text":"<persona>"}]}}
//
// and reads the reply from candidates[0].content.parts[*].text. The API key is
// sent either as the "key" query parameter (the default, as the public
// endpoint expects) or as a bearer token for proxies that require one.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/saathi/pkg/provider/llm"
	"github.com/MrWong99/saathi/pkg/types"
)

// Compile-time interface assertion.
var _ llm.Generator = (*Provider)(nil)

const (
	defaultModel   = "gemini-1.5-flash"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 1 << 20

	// maxErrorBody caps the body excerpt attached to service errors.
	maxErrorBody = 2048

	opGenerate = "gemini: generate"
)

// AuthMode selects how the API credential is attached to requests.
type AuthMode string

const (
	// AuthQuery sends the key as the "key" query parameter.
	AuthQuery AuthMode = "query"

	// AuthBearer sends the key as "Authorization: Bearer <key>".
	AuthBearer AuthMode = "bearer"
)

// IsValid reports whether m is a recognised auth mode.
func (m AuthMode) IsValid() bool {
	return m == AuthQuery || m == AuthBearer
}

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini model, e.g. "gemini-1.5-flash".
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the API base URL. Primarily used in tests to point at
// an httptest server.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAuthMode selects query-parameter or bearer authentication.
func WithAuthMode(m AuthMode) Option {
	return func(p *Provider) {
		if m != "" {
			p.auth = m
		}
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithTimeout sets a per-request HTTP timeout on the default client.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient = &http.Client{Timeout: d}
		}
	}
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements llm.Generator for the Gemini REST API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	auth       AuthMode
	httpClient *http.Client
}

// New creates a Gemini generator authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		auth:       AuthQuery,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if !p.auth.IsValid() {
		return nil, fmt.Errorf("gemini: unknown auth mode %q", p.auth)
	}
	return p, nil
}

// Name implements llm.Generator.
func (p *Provider) Name() string { return "gemini" }

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// ── Wire types ─────────────────────────────────────────────────────────────────

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      *content `json:"content"`
		FinishReason string   `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	ModelVersion string `json:"modelVersion"`
}

// ── Generate ───────────────────────────────────────────────────────────────────

// Generate implements llm.Generator.
func (p *Provider) Generate(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationReply, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", opGenerate, err)
	}

	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", opGenerate, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", opGenerate, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.auth == AuthBearer {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.KindTransport, opGenerate, redact(err, p.apiKey))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, types.NewError(types.KindTransport, opGenerate, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &types.Error{
			Kind:       types.KindService,
			Op:         opGenerate,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw), maxErrorBody),
		}
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &types.Error{
			Kind:       types.KindService,
			Op:         opGenerate,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw), maxErrorBody),
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}

	text := extractText(out)
	if text == "" {
		var cause error
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			cause = fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason)
		}
		return nil, types.NewError(types.KindEmptyReply, opGenerate, cause)
	}

	model := out.ModelVersion
	if model == "" {
		model = p.model
	}
	return &llm.GenerationReply{Text: text, Model: model}, nil
}

// endpoint returns the generateContent URL, with the key attached in
// query mode.
func (p *Provider) endpoint() string {
	u := p.baseURL + "/models/" + url.PathEscape(p.model) + ":generateContent"
	if p.auth == AuthQuery {
		u += "?key=" + url.QueryEscape(p.apiKey)
	}
	return u
}

// buildRequest maps the ordered history plus the new user turn to role-tagged
// content blocks. Assistant turns use Gemini's "model" role.
func buildRequest(req llm.GenerationRequest) generateRequest {
	turns := req.Turns()
	out := generateRequest{Contents: make([]content, 0, len(turns))}
	for _, t := range turns {
		role := "user"
		if t.Role == types.RoleAssistant {
			role = "model"
		}
		out.Contents = append(out.Contents, content{Role: role, Parts: []part{{Text: t.Text}}})
	}
	if req.Persona != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.Persona}}}
	}
	return out
}

// extractText joins the text parts of the first candidate.
func extractText(r generateResponse) string {
	if len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, pt := range r.Candidates[0].Content.Parts {
		b.WriteString(pt.Text)
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

// redact removes the API key from transport errors, which embed the request
// URL.
func redact(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), key, "REDACTED"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
