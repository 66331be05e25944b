package config_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/saathi/internal/config"
	"github.com/MrWong99/saathi/pkg/provider/llm"
	"github.com/MrWong99/saathi/pkg/provider/stt"
	"github.com/MrWong99/saathi/pkg/provider/tts"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

providers:
  llm:
    name: gemini
    api_key: test-key
    model: gemini-1.5-flash
    options:
      auth: query
  llm_fallbacks:
    - name: openai
      api_key: sk-test
      model: gpt-4o-mini
  stt:
    name: console
  tts:
    name: console

conversation:
  locale: hi-IN
  continuous: true
  persona: companion-hi
  voice:
    rate: 1.2
    pitch: 1
    volume: 0.8
  empty_reply:
    policy: fail
  generation_timeout: 20s
  max_rearms: 2
  checklist:
    - "What is your name?"
    - "Where do you live?"

memory:
  postgres_dsn: "postgres://localhost/saathi"

resilience:
  max_failures: 3
  reset_timeout: 10s
`

type stubGenerator struct{ name string }

func (g stubGenerator) Generate(context.Context, llm.GenerationRequest) (*llm.GenerationReply, error) {
	return &llm.GenerationReply{Text: "ok"}, nil
}
func (g stubGenerator) Name() string { return g.name }

// ── Load ─────────────────────────────────────────────────────────────────────

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server: got %+v", cfg.Server)
	}
	if cfg.Providers.LLM.Name != "gemini" || cfg.Providers.LLM.OptionString("auth") != "query" {
		t.Errorf("providers.llm: got %+v", cfg.Providers.LLM)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "openai" {
		t.Errorf("providers.llm_fallbacks: got %+v", cfg.Providers.LLMFallbacks)
	}
	c := cfg.Conversation
	if c.Locale != "hi-IN" || !c.Continuous || c.Persona != "companion-hi" {
		t.Errorf("conversation: got %+v", c)
	}
	if c.Voice != (config.VoiceConfig{Rate: 1.2, Pitch: 1, Volume: 0.8}) {
		t.Errorf("voice: got %+v", c.Voice)
	}
	if c.EmptyReply.Policy != config.EmptyReplyFail {
		t.Errorf("empty_reply.policy: got %q", c.EmptyReply.Policy)
	}
	if c.GenerationTimeout != 20*time.Second || c.MaxRearms != 2 {
		t.Errorf("timeouts: got %v / %d", c.GenerationTimeout, c.MaxRearms)
	}
	want := []string{"What is your name?", "Where do you live?"}
	if !reflect.DeepEqual(c.Checklist, want) {
		t.Errorf("checklist: want %v, got %v", want, c.Checklist)
	}
	if cfg.Resilience.MaxFailures != 3 || cfg.Resilience.ResetTimeout != 10*time.Second {
		t.Errorf("resilience: got %+v", cfg.Resilience)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" || cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server defaults: got %+v", cfg.Server)
	}
	if cfg.Providers.STT.Name != "console" || cfg.Providers.TTS.Name != "console" {
		t.Errorf("device defaults: got %q / %q", cfg.Providers.STT.Name, cfg.Providers.TTS.Name)
	}
	c := cfg.Conversation
	if c.Persona != "companion-hi" || c.Locale != "hi-IN" {
		t.Errorf("persona defaults: got %q / %q", c.Persona, c.Locale)
	}
	if c.EmptyReply.Policy != config.EmptyReplyPlaceholder {
		t.Errorf("empty reply default: got %q", c.EmptyReply.Policy)
	}
	if c.Voice != (config.VoiceConfig{Rate: 1, Pitch: 1, Volume: 1}) {
		t.Errorf("voice defaults: got %+v", c.Voice)
	}
}

func TestLoadFromReader_PersonaLocale(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("conversation:\n  persona: companion-en\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Conversation.Locale != "en-US" {
		t.Errorf("locale: want en-US, got %q", cfg.Conversation.Locale)
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("SAATHI_TEST_GEMINI_KEY", "from-env")
	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  llm:
    name: gemini
    api_key: ${SAATHI_TEST_GEMINI_KEY}
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if got := cfg.Providers.LLM.APIKey; got != "from-env" {
		t.Errorf("api_key: want from-env, got %q", got)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("conversation:\n  bogus: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateLLM(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Generator, error) {
		return stubGenerator{name: e.Model}, nil
	})

	g, err := reg.CreateLLM(config.ProviderEntry{Name: "stub", Model: "m1"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if g.Name() != "m1" {
		t.Errorf("Name: want m1, got %q", g.Name())
	}
	if names := reg.LLMNames(); !reflect.DeepEqual(names, []string{"stub"}) {
		t.Errorf("LLMNames: got %v", names)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	_, err := reg.CreateLLM(config.ProviderEntry{Name: "missing"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM: want ErrProviderNotRegistered, got %v", err)
	}
	_, err = reg.CreateSTT(config.ProviderEntry{Name: "missing"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT: want ErrProviderNotRegistered, got %v", err)
	}
	_, err = reg.CreateTTS(config.ProviderEntry{Name: "missing"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS: want ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_FactoryErrorPropagates(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterSTT("bad", func(config.ProviderEntry) (stt.Source, error) { return nil, boom })
	reg.RegisterTTS("bad", func(config.ProviderEntry) (tts.Synthesizer, error) { return nil, boom })

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Errorf("CreateSTT: want boom, got %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Errorf("CreateTTS: want boom, got %v", err)
	}
}
