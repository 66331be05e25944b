package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/saathi/internal/app"
	"github.com/MrWong99/saathi/internal/config"
	"github.com/MrWong99/saathi/pkg/provider/llm"
	"github.com/MrWong99/saathi/pkg/provider/llm/anyllm"
	"github.com/MrWong99/saathi/pkg/provider/llm/gemini"
	"github.com/MrWong99/saathi/pkg/provider/llm/openai"
	"github.com/MrWong99/saathi/pkg/provider/stt"
	sttconsole "github.com/MrWong99/saathi/pkg/provider/stt/console"
	"github.com/MrWong99/saathi/pkg/provider/tts"
	ttsconsole "github.com/MrWong99/saathi/pkg/provider/tts/console"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Generator, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		if auth := entry.OptionString("auth"); auth != "" {
			opts = append(opts, gemini.WithAuthMode(gemini.AuthMode(auth)))
		}
		if d, ok := optDuration(entry, "timeout"); ok {
			opts = append(opts, gemini.WithTimeout(d))
		}
		return gemini.New(entry.APIKey, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Generator, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptionString("organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d, ok := optDuration(entry, "timeout"); ok {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, deepseek, mistral, groq, llamacpp and llamafile share the
	// same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{"anthropic", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Generator, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Generator, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT / TTS ─────────────────────────────────────────────────────────────

	reg.RegisterSTT("console", func(entry config.ProviderEntry) (stt.Source, error) {
		prompt := entry.OptionString("prompt")
		if prompt == "" {
			prompt = "you> "
		}
		return sttconsole.New(os.Stdin, sttconsole.WithPrompt(os.Stdout, prompt)), nil
	})

	reg.RegisterTTS("console", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []ttsconsole.Option
		if prefix := entry.OptionString("prefix"); prefix != "" {
			opts = append(opts, ttsconsole.WithPrefix(prefix))
		}
		if d, ok := optDuration(entry, "pace"); ok {
			opts = append(opts, ttsconsole.WithPace(d))
		}
		return ttsconsole.New(os.Stdout, opts...), nil
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	for i, entry := range cfg.Providers.LLMFallbacks {
		p, err := reg.CreateLLM(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown fallback provider, skipping", "index", i, "name", entry.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
		}
		ps.LLMFallbacks = append(ps.LLMFallbacks, p)
		slog.Info("provider created", "kind", "llm_fallback", "name", entry.Name)
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		ps.TTS = p
		slog.Info("provider created", "kind", "tts", "name", name)
	}

	return ps, nil
}

// optDuration parses Options[key] as a Go duration string ("20s").
func optDuration(entry config.ProviderEntry, key string) (time.Duration, bool) {
	s := entry.OptionString(key)
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid duration option", "provider", entry.Name, "key", key, "value", s)
		return 0, false
	}
	return d, true
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Saathi, startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	fmt.Printf("║  Fallbacks       : %-19d ║\n", len(cfg.Providers.LLMFallbacks))
	printProvider("Persona", cfg.Conversation.Persona, "")
	printProvider("Locale", cfg.Conversation.Locale, "")
	if cfg.Memory.PostgresDSN != "" {
		fmt.Printf("║  Message log     : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Message log     : %-19s ║\n", "in memory")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
