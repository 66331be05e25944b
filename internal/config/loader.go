package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/saathi/internal/prompt"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"console"},
	"tts": {"console"},
}

// LoadEnv loads KEY=value pairs from the given dotenv files into the process
// environment. Variables that are already set win. Missing files are
// skipped; with no arguments ".env" is tried.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env %q: %w", p, err)
		}
		slog.Debug("loaded environment file", "path", p)
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expanding ${VAR} references
// from the environment first, and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.STT.Name == "" {
		cfg.Providers.STT.Name = "console"
	}
	if cfg.Providers.TTS.Name == "" {
		cfg.Providers.TTS.Name = "console"
	}
	c := &cfg.Conversation
	if c.Persona == "" {
		c.Persona = prompt.DefaultPersona
	}
	if c.Locale == "" {
		if p, ok := prompt.Lookup(c.Persona); ok {
			c.Locale = string(p.Locale)
		}
	}
	if c.EmptyReply.Policy == "" {
		c.EmptyReply.Policy = EmptyReplyPlaceholder
	}
	if c.Voice.Rate == 0 {
		c.Voice.Rate = 1
	}
	if c.Voice.Pitch == 0 {
		c.Voice.Pitch = 1
	}
	if c.Voice.Volume == 0 {
		c.Voice.Volume = 1
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for _, fb := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", fb.Name)
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; conversations will not be able to generate replies")
	}
	if cfg.Providers.LLM.Name != "" && cfg.Providers.LLM.Name != "ollama" && cfg.Providers.LLM.APIKey == "" {
		slog.Warn("providers.llm.api_key is empty", "name", cfg.Providers.LLM.Name)
	}
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
	}
	if auth := cfg.Providers.LLM.OptionString("auth"); auth != "" && auth != "query" && auth != "bearer" {
		errs = append(errs, fmt.Errorf("providers.llm.options.auth %q is invalid; valid values: query, bearer", auth))
	}

	// Conversation
	c := cfg.Conversation
	if c.PersonaPrompt == "" {
		if _, ok := prompt.Lookup(c.Persona); !ok && c.Persona != "" {
			errs = append(errs, fmt.Errorf("conversation.persona %q is unknown and persona_prompt is empty; known personas: %v", c.Persona, prompt.Names()))
		}
	}
	if c.EmptyReply.Policy != "" && !c.EmptyReply.Policy.IsValid() {
		errs = append(errs, fmt.Errorf("conversation.empty_reply.policy %q is invalid; valid values: placeholder, fail", c.EmptyReply.Policy))
	}
	if c.Voice.Rate != 0 && (c.Voice.Rate < 0.1 || c.Voice.Rate > 10) {
		errs = append(errs, fmt.Errorf("conversation.voice.rate %.2f is out of range [0.1, 10]", c.Voice.Rate))
	}
	if c.Voice.Pitch < 0 || c.Voice.Pitch > 2 {
		errs = append(errs, fmt.Errorf("conversation.voice.pitch %.2f is out of range [0, 2]", c.Voice.Pitch))
	}
	if c.Voice.Volume < 0 || c.Voice.Volume > 1 {
		errs = append(errs, fmt.Errorf("conversation.voice.volume %.2f is out of range [0, 1]", c.Voice.Volume))
	}
	if c.GenerationTimeout < 0 {
		errs = append(errs, fmt.Errorf("conversation.generation_timeout %v must not be negative", c.GenerationTimeout))
	}
	if c.MaxRearms < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_rearms %d must not be negative", c.MaxRearms))
	}
	seen := make(map[string]int, len(c.Checklist))
	for i, q := range c.Checklist {
		if q == "" {
			errs = append(errs, fmt.Errorf("conversation.checklist[%d] is empty", i))
			continue
		}
		if prev, ok := seen[q]; ok {
			errs = append(errs, fmt.Errorf("conversation.checklist[%d] is a duplicate of checklist[%d]", i, prev))
		}
		seen[q] = i
	}

	// Memory
	if cfg.Memory.PostgresDSN == "" {
		slog.Debug("memory.postgres_dsn is empty; messages are kept in memory only")
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %v must not be negative", cfg.Resilience.ResetTimeout))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
