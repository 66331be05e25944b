// Package controller implements the turn-taking state machine that drives a
// spoken conversation: listen for one utterance, ask the response generator
// for a reply, speak it, then either listen again (continuous mode) or go
// idle.
//
// A [Controller] owns exactly one conversation. All state transitions happen
// on the goroutine running [Controller.Run]; the public methods post commands
// to that goroutine and wait for its answer. Collaborator results arrive on
// channels that the loop selects over, so no lock guards the state machine
// itself.
//
// Usage:
//
//	c := controller.New(source, generator, synthesizer, controller.Config{Locale: "hi-IN"})
//	go c.Run(ctx)
//	if err := c.Start(ctx); err != nil { ... }
package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/saathi/internal/conversation"
	"github.com/MrWong99/saathi/internal/device"
	"github.com/MrWong99/saathi/internal/observe"
	"github.com/MrWong99/saathi/pkg/provider/llm"
	"github.com/MrWong99/saathi/pkg/provider/stt"
	"github.com/MrWong99/saathi/pkg/provider/tts"
	"github.com/MrWong99/saathi/pkg/types"
)

// Defaults applied by [New] to zero Config fields.
const (
	DefaultGenerationTimeout = 30 * time.Second
	DefaultMaxRearms         = 3
)

var (
	// ErrBusy is returned by Start when the controller is not Idle.
	ErrBusy = errors.New("controller: conversation already in progress")

	// ErrErrored is returned by Start while the controller is Errored.
	ErrErrored = errors.New("controller: errored, reset required")

	// ErrNotIdle is returned by Reset outside the Idle and Errored states.
	ErrNotIdle = errors.New("controller: reset requires idle or errored state")

	// ErrClosed is returned by commands after Run has returned.
	ErrClosed = errors.New("controller: not running")

	// ErrAlreadyRunning is returned by every Run call after the first.
	ErrAlreadyRunning = errors.New("controller: already running")

	errEmptyUtterance = errors.New("empty utterance")
)

// Config holds the per-conversation parameters.
type Config struct {
	// Locale tags recognition, generation and speech. Default: hi-IN.
	Locale types.Locale

	// Persona is the instruction prefix sent with every generation request.
	Persona string

	// Prosody is applied to every spoken reply.
	Prosody types.Prosody

	// Continuous resumes listening after each spoken reply.
	Continuous bool

	// GenerationTimeout bounds each generation call. Expiry is reported as
	// a transport error. Zero means [DefaultGenerationTimeout].
	GenerationTimeout time.Duration

	// MaxRearms bounds consecutive re-activations after empty utterances.
	// Zero means [DefaultMaxRearms]; negative disables re-arming.
	MaxRearms int

	// EmptyReply and Placeholder configure [llm.WithEmptyReplyPolicy].
	EmptyReply  llm.EmptyReplyPolicy
	Placeholder string

	// Owner identifies this conversation to the device registry. Default: a
	// random UUID.
	Owner string

	// InputDevice and OutputDevice name the devices leased while listening
	// and speaking. Empty names skip leasing. Conversations naming the same
	// device share its source or synthesizer; a controller whose lease was
	// taken over never deactivates or cancels the collaborator again.
	InputDevice  string
	OutputDevice string
}

// Controller is the turn-taking state machine for one conversation.
type Controller struct {
	src   stt.Source
	gen   llm.Generator
	synth tts.Synthesizer
	cfg   Config

	history   *conversation.History
	devices   *device.Registry
	metrics   *observe.Metrics
	observers []func(Event)
	log       *slog.Logger

	cmds    chan command
	genCh   chan genResult
	done    chan struct{}
	running atomic.Bool

	// mu guards the copies of state and lastErr read by State and LastError.
	mu      sync.Mutex
	state   State
	lastErr error

	// Loop-owned fields below; only the Run goroutine touches them.
	runCtx         context.Context
	token          uint64
	recCh          <-chan stt.Event
	speechCh       <-chan tts.Event
	genOutstanding bool
	genCancel      context.CancelFunc
	parked         *llm.GenerationRequest
	rearms         int
	inLease        *device.Lease
	outLease       *device.Lease
	turnStart      time.Time
	speechStart    time.Time
}

// Option is a functional option for [New].
type Option func(*Controller)

// WithObserver registers fn to receive every [Event]. Observers run
// synchronously on the controller goroutine, so they must return quickly and
// must not call the controller's blocking methods.
func WithObserver(fn func(Event)) Option {
	return func(c *Controller) { c.observers = append(c.observers, fn) }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithDevices leases the configured devices from reg.
func WithDevices(reg *device.Registry) Option {
	return func(c *Controller) { c.devices = reg }
}

// WithHistory uses h instead of a fresh history.
func WithHistory(h *conversation.History) Option {
	return func(c *Controller) { c.history = h }
}

// New creates a Controller in the Idle state. gen is wrapped with the
// configured empty-reply policy. Call Run before issuing commands.
func New(src stt.Source, gen llm.Generator, synth tts.Synthesizer, cfg Config, opts ...Option) *Controller {
	if cfg.Locale == "" {
		cfg.Locale = types.DefaultLocale
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	if cfg.MaxRearms == 0 {
		cfg.MaxRearms = DefaultMaxRearms
	}
	if cfg.Owner == "" {
		cfg.Owner = uuid.NewString()
	}

	c := &Controller{
		src:   src,
		gen:   llm.WithEmptyReplyPolicy(gen, cfg.EmptyReply, cfg.Placeholder),
		synth: synth,
		cfg:   cfg,
		cmds:  make(chan command),
		genCh: make(chan genResult, 1),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.history == nil {
		c.history = conversation.NewHistory()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.log = slog.With("conversation", cfg.Owner)
	return c
}

// Owner returns the conversation's device-owner identifier.
func (c *Controller) Owner() string { return c.cfg.Owner }

// Start begins a turn: it activates the transcript source and moves from
// Idle to Listening. It returns [ErrBusy] outside Idle and [ErrErrored] while
// Errored. An activation failure is returned as well as surfaced to
// observers.
func (c *Controller) Start(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdStart})
}

// Cancel stops whatever is outstanding and moves to Idle from any state. A
// generation call in flight is abandoned; its result is discarded when it
// arrives.
func (c *Controller) Cancel(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdCancel})
}

// Reset clears the conversation history and the last error. It is valid in
// Idle and Errored only and always ends in Idle.
func (c *Controller) Reset(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdReset})
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recently surfaced error, or nil.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// History returns a snapshot of the conversation.
func (c *Controller) History() []types.Turn {
	return c.history.Snapshot()
}

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} { return c.done }

// do posts cmd to the loop and waits for its answer.
func (c *Controller) do(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// preemptFunc returns the device-registry callback for the current
// activation. It never blocks the caller.
func (c *Controller) preemptFunc(device string, token uint64) func() {
	return func() {
		go func() {
			_ = c.do(context.Background(), command{kind: cmdPreempt, token: token, device: device})
		}()
	}
}
