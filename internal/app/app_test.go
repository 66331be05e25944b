package app_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/saathi/internal/app"
	"github.com/MrWong99/saathi/internal/config"
	memorymock "github.com/MrWong99/saathi/pkg/memory/mock"
	"github.com/MrWong99/saathi/pkg/provider/llm"
	llmmock "github.com/MrWong99/saathi/pkg/provider/llm/mock"
	sttconsole "github.com/MrWong99/saathi/pkg/provider/stt/console"
	ttsconsole "github.com/MrWong99/saathi/pkg/provider/tts/console"
	ttsmock "github.com/MrWong99/saathi/pkg/provider/tts/mock"
	"github.com/MrWong99/saathi/pkg/types"
)

// testConfig returns a minimal config with an English companion.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":0",
			LogLevel:   config.LogInfo,
		},
		Conversation: testConversation(),
	}
}

func testProviders() *app.Providers {
	return &app.Providers{
		LLM: &llmmock.Generator{GeneratorName: "primary", Replies: []string{"Nice to meet you."}},
		TTS: &ttsmock.Synthesizer{},
	}
}

func newTestApp(t *testing.T, providers *app.Providers) (*app.App, *memorymock.MessageStore) {
	t.Helper()
	store := &memorymock.MessageStore{}
	a, err := app.New(context.Background(), testConfig(), providers, app.WithMessageStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, store
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()

	a, store := newTestApp(t, testProviders())
	if a.Store() != store {
		t.Error("Store: injected store not used")
	}
	if got := a.Generator().Name(); got != "primary" {
		t.Errorf("Generator name: want primary, got %q", got)
	}
	if got := a.Locale(); got != "en-US" {
		t.Errorf("Locale: want en-US, got %q", got)
	}

	var names []string
	for _, c := range a.Checkers() {
		names = append(names, c.Name)
	}
	if strings.Join(names, ",") != "generator,message_store" {
		t.Errorf("checkers: got %v", names)
	}
}

func TestNew_NoGenerator(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), testConfig(), &app.Providers{})
	if !errors.Is(err, app.ErrNoGenerator) {
		t.Fatalf("New: want ErrNoGenerator, got %v", err)
	}
}

func TestNew_InMemoryStoreByDefault(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())
	if a.Store() == nil {
		t.Fatal("Store: want in-memory store")
	}
}

func TestApp_GeneratorFallsBack(t *testing.T) {
	t.Parallel()

	providers := testProviders()
	providers.LLM = &llmmock.Generator{GeneratorName: "primary", Err: errors.New("boom")}
	providers.LLMFallbacks = []llm.Generator{&llmmock.Generator{GeneratorName: "backup", Replies: []string{"from backup"}}}
	a, _ := newTestApp(t, providers)

	reply, err := a.Generator().Generate(context.Background(), llm.GenerationRequest{
		UserTurn: types.Turn{Role: types.RoleUser, Text: "hi", Sequence: 1},
		Locale:   "en-US",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply.Text != "from backup" {
		t.Errorf("reply: want %q, got %q", "from backup", reply.Text)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, testProviders())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run: unexpected error %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return within 5s after cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestApp_Chat(t *testing.T) {
	t.Parallel()

	a, store := newTestApp(t, testProviders())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx) }()

	var out bytes.Buffer
	src := sttconsole.New(strings.NewReader("hello there\n"))
	synth := ttsconsole.New(&out)

	done := make(chan error, 1)
	go func() { done <- a.Chat(ctx, src, synth, &out) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Chat did not return after input ended")
	}

	if !strings.Contains(out.String(), "saathi> Nice to meet you.") {
		t.Errorf("output: got %q", out.String())
	}
	waitUntil(t, "recorded messages", func() bool { return len(store.Appended()) == 2 })
	if n := len(a.Sessions().List()); n != 0 {
		t.Errorf("sessions after chat: want 0, got %d", n)
	}
}
