package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/saathi/internal/app"
	"github.com/MrWong99/saathi/internal/config"
	"github.com/MrWong99/saathi/pkg/memory"
	llmmock "github.com/MrWong99/saathi/pkg/provider/llm/mock"
)

func TestBuildProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM:          config.ProviderEntry{Name: "gemini", APIKey: "k", Options: map[string]any{"auth": "bearer", "timeout": "5s"}},
		LLMFallbacks: []config.ProviderEntry{{Name: "openai", APIKey: "k", Model: "gpt-4o-mini"}, {Name: "nonexistent"}},
		STT:          config.ProviderEntry{Name: "console"},
		TTS:          config.ProviderEntry{Name: "console", Options: map[string]any{"pace": "10ms"}},
	}}
	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if ps.LLM == nil || ps.LLM.Name() != "gemini" {
		t.Errorf("llm: got %v", ps.LLM)
	}
	if len(ps.LLMFallbacks) != 1 || ps.LLMFallbacks[0].Name() != "openai" {
		t.Errorf("fallbacks: got %d", len(ps.LLMFallbacks))
	}
	if ps.STT == nil || ps.TTS == nil {
		t.Error("console devices not created")
	}
}

func TestBuildProviders_UnknownPrimary(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	cfg := &config.Config{Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "nonexistent"}}}
	if _, err := buildProviders(cfg, reg); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("want ErrProviderNotRegistered, got %v", err)
	}
}

func TestRunQuiz(t *testing.T) {
	t.Parallel()
	gen := &llmmock.Generator{Replies: []string{
		"Gravity pulls masses together.",
		"What does gravity do?",
		"Yes, that is right.",
		"Who described gravity first?",
	}}
	cfg := &config.Config{Conversation: config.ConversationConfig{Persona: "companion-en"}}
	a, err := app.New(context.Background(), cfg, &app.Providers{LLM: gen}, app.WithMessageStore(memory.NewMemStore()))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	var out bytes.Buffer
	in := strings.NewReader("\nit pulls things together\nexit\n")
	if err := runQuiz(context.Background(), a, "gravity", in, &out); err != nil {
		t.Fatalf("runQuiz: %v", err)
	}
	for _, want := range []string{"Gravity pulls masses together.", "What does gravity do?", "Yes, that is right.", "Who described gravity first?"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	if got := gen.CallCount(); got != 4 {
		t.Errorf("generate calls: want 4, got %d", got)
	}
}

func TestRunQuiz_EmptyTopic(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Conversation: config.ConversationConfig{Persona: "companion-en"}}
	a, err := app.New(context.Background(), cfg, &app.Providers{LLM: &llmmock.Generator{}}, app.WithMessageStore(memory.NewMemStore()))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	var out bytes.Buffer
	if err := runQuiz(context.Background(), a, " ", strings.NewReader(""), &out); err == nil {
		t.Fatal("want error for empty topic")
	}
}
