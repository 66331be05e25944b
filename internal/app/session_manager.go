package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/saathi/internal/checklist"
	"github.com/MrWong99/saathi/internal/config"
	"github.com/MrWong99/saathi/internal/controller"
	"github.com/MrWong99/saathi/internal/device"
	"github.com/MrWong99/saathi/internal/observe"
	"github.com/MrWong99/saathi/internal/prompt"
	"github.com/MrWong99/saathi/pkg/memory"
	"github.com/MrWong99/saathi/pkg/provider/llm"
	"github.com/MrWong99/saathi/pkg/provider/stt"
	"github.com/MrWong99/saathi/pkg/provider/tts"
	"github.com/MrWong99/saathi/pkg/types"
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("app: session not found")

// Session is one running conversation.
type Session struct {
	// ID is a random UUID.
	ID string

	Controller *controller.Controller
	Checklist  *checklist.Checklist

	StartedAt time.Time
	cancel    context.CancelFunc
}

// Start begins a turn.
func (s *Session) Start(ctx context.Context) error { return s.Controller.Start(ctx) }

// Cancel abandons the current turn.
func (s *Session) Cancel(ctx context.Context) error { return s.Controller.Cancel(ctx) }

// Reset clears the conversation and the checklist progress.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.Controller.Reset(ctx); err != nil {
		return err
	}
	s.Checklist.Reset()
	return nil
}

// SessionInfo summarises a session for the API.
type SessionInfo struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Turns     int       `json:"turns"`
	Checklist struct {
		Answered  int      `json:"answered"`
		Total     int      `json:"total"`
		Remaining []string `json:"remaining"`
	} `json:"checklist"`
}

// Info returns the current summary of s.
func (s *Session) Info() SessionInfo {
	var info SessionInfo
	info.ID = s.ID
	info.State = s.Controller.State().String()
	info.StartedAt = s.StartedAt
	info.Turns = len(s.Controller.History())
	info.Checklist.Answered, info.Checklist.Total = s.Checklist.Progress()
	info.Checklist.Remaining = s.Checklist.Remaining()
	return info
}

// OpenOptions customises [SessionManager.Open].
type OpenOptions struct {
	// InputDevice and OutputDevice are leased from the device registry
	// while listening and speaking. Empty names skip leasing.
	InputDevice  string
	OutputDevice string

	// Notify receives every controller event after the session's own
	// observers. It runs on the controller goroutine.
	Notify func(*Session, controller.Event)
}

// SessionManagerConfig holds the dependencies of a [SessionManager].
type SessionManagerConfig struct {
	Generator    llm.Generator
	Recorder     *memory.Recorder
	Devices      *device.Registry
	Metrics      *observe.Metrics
	Conversation config.ConversationConfig
}

// SessionManager runs independent conversations side by side. All exported
// methods are safe for concurrent use.
type SessionManager struct {
	gen      llm.Generator
	recorder *memory.Recorder
	devices  *device.Registry
	metrics  *observe.Metrics

	mu       sync.Mutex
	conv     config.ConversationConfig
	sessions map[string]*Session
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Devices == nil {
		cfg.Devices = device.NewRegistry(device.WithMetrics(cfg.Metrics))
	}
	return &SessionManager{
		gen:      cfg.Generator,
		recorder: cfg.Recorder,
		devices:  cfg.Devices,
		metrics:  cfg.Metrics,
		conv:     cfg.Conversation,
		sessions: make(map[string]*Session),
	}
}

// SetConversation replaces the settings used for sessions opened from now
// on. Running sessions keep theirs.
func (sm *SessionManager) SetConversation(conv config.ConversationConfig) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.conv = conv
}

// Conversation returns the settings used for new sessions.
func (sm *SessionManager) Conversation() config.ConversationConfig {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.conv
}

// Open creates a session over src and synth and starts its controller. The
// session stops when ctx is cancelled or Close is called.
func (sm *SessionManager) Open(ctx context.Context, src stt.Source, synth tts.Synthesizer, opts OpenOptions) (*Session, error) {
	sm.mu.Lock()
	conv := sm.conv
	sm.mu.Unlock()

	ccfg, err := ControllerConfig(conv)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:        uuid.NewString(),
		Checklist: checklist.New(conv.Checklist),
		StartedAt: time.Now(),
	}
	ccfg.Owner = s.ID
	ccfg.InputDevice = opts.InputDevice
	ccfg.OutputDevice = opts.OutputDevice

	ctrlOpts := []controller.Option{
		controller.WithDevices(sm.devices),
		controller.WithObserver(func(ev controller.Event) {
			if ev.Type == controller.EventTurnAppended {
				s.Checklist.Observe(ev.Turn)
				if sm.recorder != nil {
					sm.recorder.Turn(s.ID, ev.Turn)
				}
			}
		}),
	}
	if sm.metrics != nil {
		ctrlOpts = append(ctrlOpts, controller.WithMetrics(sm.metrics))
	}
	if opts.Notify != nil {
		ctrlOpts = append(ctrlOpts, controller.WithObserver(func(ev controller.Event) { opts.Notify(s, ev) }))
	}
	s.Controller = controller.New(src, sm.gen, synth, ccfg, ctrlOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go func() {
		_ = s.Controller.Run(runCtx)
		sm.remove(s.ID)
	}()

	sm.mu.Lock()
	sm.sessions[s.ID] = s
	sm.mu.Unlock()

	slog.Info("session opened", "session", s.ID, "locale", ccfg.Locale, "continuous", ccfg.Continuous)
	return s, nil
}

// Get returns the session with id.
func (sm *SessionManager) Get(id string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns a summary of every running session, oldest first.
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.Lock()
	sessions := slices.Collect(maps.Values(sm.sessions))
	sm.mu.Unlock()

	slices.SortFunc(sessions, func(a, b *Session) int { return a.StartedAt.Compare(b.StartedAt) })
	out := make([]SessionInfo, len(sessions))
	for i, s := range sessions {
		out[i] = s.Info()
	}
	return out
}

// Close stops the session with id and waits for its controller to finish.
func (sm *SessionManager) Close(id string) error {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	sm.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.cancel()
	<-s.Controller.Done()
	sm.remove(id)
	return nil
}

// CloseAll stops every session.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	ids := slices.Collect(maps.Keys(sm.sessions))
	sm.mu.Unlock()
	for _, id := range ids {
		_ = sm.Close(id)
	}
}

func (sm *SessionManager) remove(id string) {
	sm.mu.Lock()
	_, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if ok {
		slog.Info("session closed", "session", id)
	}
}

// ControllerConfig turns the conversation settings into a controller
// configuration, resolving the persona.
func ControllerConfig(conv config.ConversationConfig) (controller.Config, error) {
	persona, err := prompt.Resolve(conv.Persona, conv.PersonaPrompt, types.Locale(conv.Locale))
	if err != nil {
		return controller.Config{}, fmt.Errorf("app: %w", err)
	}
	placeholder := conv.EmptyReply.Placeholder
	if placeholder == "" {
		placeholder = persona.Placeholder
	}
	return controller.Config{
		Locale:  persona.Locale,
		Persona: persona.Prefix,
		Prosody: types.Prosody{
			Rate:   conv.Voice.Rate,
			Pitch:  conv.Voice.Pitch,
			Volume: conv.Voice.Volume,
		},
		Continuous:        conv.Continuous,
		GenerationTimeout: conv.GenerationTimeout,
		MaxRearms:         conv.MaxRearms,
		EmptyReply:        llm.EmptyReplyPolicy(conv.EmptyReply.Policy),
		Placeholder:       placeholder,
	}, nil
}
