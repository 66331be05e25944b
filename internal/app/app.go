// Package app wires the Saathi subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the background workers, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithMessageStore, WithMetrics). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/saathi/internal/config"
	"github.com/MrWong99/saathi/internal/device"
	"github.com/MrWong99/saathi/internal/health"
	"github.com/MrWong99/saathi/internal/observe"
	"github.com/MrWong99/saathi/internal/quiz"
	"github.com/MrWong99/saathi/internal/resilience"
	"github.com/MrWong99/saathi/pkg/memory"
	"github.com/MrWong99/saathi/pkg/memory/postgres"
	"github.com/MrWong99/saathi/pkg/provider/llm"
	"github.com/MrWong99/saathi/pkg/provider/stt"
	"github.com/MrWong99/saathi/pkg/provider/tts"
	"github.com/MrWong99/saathi/pkg/types"
)

// ErrNoGenerator is returned by New when no response generator is configured.
var ErrNoGenerator = errors.New("app: no response generator configured")

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM          llm.Generator
	LLMFallbacks []llm.Generator

	// STT and TTS back console conversations. Browser sessions bring their
	// own through the websocket bridge.
	STT stt.Source
	TTS tts.Synthesizer
}

// App owns every long-lived subsystem.
type App struct {
	cfg       *config.Config
	providers *Providers

	gen      *resilience.GeneratorFallback
	store    memory.MessageStore
	recorder *memory.Recorder
	devices  *device.Registry
	metrics  *observe.Metrics
	sessions *SessionManager
	tutor    *quiz.Tutor

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*App)

// WithMessageStore overrides the message store created from the config.
func WithMessageStore(s memory.MessageStore) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App from cfg and providers.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, ErrNoGenerator
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// 1. Generator with circuit breakers and fallbacks.
	a.gen = resilience.NewGeneratorFallback(providers.LLM, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: cfg.Resilience.ResetTimeout,
		},
	})
	for _, g := range providers.LLMFallbacks {
		a.gen.AddFallback(g)
	}

	// 2. Message log.
	if a.store == nil {
		if err := a.initStore(ctx); err != nil {
			return nil, err
		}
	}
	a.recorder = memory.NewRecorder(a.store, memory.WithDropCounter(a.metrics.DroppedRecords))

	// 3. Devices and sessions.
	a.devices = device.NewRegistry(device.WithMetrics(a.metrics))
	a.sessions = NewSessionManager(SessionManagerConfig{
		Generator:    a.gen,
		Recorder:     a.recorder,
		Devices:      a.devices,
		Metrics:      a.metrics,
		Conversation: cfg.Conversation,
	})

	// 4. Quiz tutor, one per process.
	a.tutor = quiz.NewTutor(a.gen, quiz.WithMetrics(a.metrics))

	slog.Info("app initialised",
		"generator", a.gen.Name(),
		"fallbacks", len(providers.LLMFallbacks),
		"persona", cfg.Conversation.Persona,
		"locale", cfg.Conversation.Locale,
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.cfg.Memory.PostgresDSN == "" {
		slog.Info("message log kept in memory")
		a.store = memory.NewMemStore()
		return nil
	}
	store, err := postgres.NewStore(ctx, a.cfg.Memory.PostgresDSN)
	if err != nil {
		return fmt.Errorf("app: connect message store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	slog.Info("message log stored in postgres")
	return nil
}

// Run starts the background workers and blocks until ctx is cancelled.
// Running sessions are closed before Run returns.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.recorder.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		a.sessions.CloseAll()
		return nil
	})
	return g.Wait()
}

// Shutdown closes every session and releases resources in reverse order of
// creation. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			a.sessions.CloseAll()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("app: close sessions: %w", ctx.Err()))
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Generator returns the fallback-wrapped response generator.
func (a *App) Generator() llm.Generator { return a.gen }

// Store returns the message store.
func (a *App) Store() memory.MessageStore { return a.store }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Tutor returns the shared quiz tutor.
func (a *App) Tutor() *quiz.Tutor { return a.tutor }

// Metrics returns the metrics the app records on.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// Locale returns the configured conversation locale.
func (a *App) Locale() types.Locale {
	return types.Locale(a.sessions.Conversation().Locale)
}

// Checkers returns the readiness probes for the app's dependencies.
func (a *App) Checkers() []health.Checker {
	checks := []health.Checker{health.GeneratorChecker(a.gen)}
	if p, ok := a.store.(memory.Pinger); ok {
		checks = append(checks, health.StoreChecker(p))
	}
	return checks
}

// SetConversation applies reloaded conversation settings to sessions
// opened from now on.
func (a *App) SetConversation(conv config.ConversationConfig) {
	a.sessions.SetConversation(conv)
}
