package controller

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/saathi/internal/device"
	"github.com/MrWong99/saathi/internal/observe"
	"github.com/MrWong99/saathi/pkg/provider/llm"
	"github.com/MrWong99/saathi/pkg/provider/stt"
	"github.com/MrWong99/saathi/pkg/provider/tts"
	"github.com/MrWong99/saathi/pkg/types"
)

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdCancel
	cmdReset
	cmdPreempt
)

type command struct {
	kind   cmdKind
	token  uint64
	device string
	reply  chan error
}

type genResult struct {
	token   uint64
	reply   *llm.GenerationReply
	err     error
	elapsed time.Duration
}

// Run drives the state machine until ctx is cancelled. On return every
// outstanding collaborator call has been cancelled and the state is Idle
// (or Errored). Run returns ctx.Err(), or [ErrAlreadyRunning] when Run has
// been called before. A Controller runs at most once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)

	c.runCtx = ctx
	c.metrics.ActiveConversations.Add(ctx, 1)
	defer c.metrics.ActiveConversations.Add(context.WithoutCancel(ctx), -1)
	c.log.Debug("controller started", "locale", c.cfg.Locale, "continuous", c.cfg.Continuous)

	for {
		select {
		case <-ctx.Done():
			c.abort()
			if c.State() != Errored {
				c.setState(Idle)
			}
			c.log.Debug("controller stopped")
			return ctx.Err()

		case cmd := <-c.cmds:
			cmd.reply <- c.handle(cmd)

		case ev, ok := <-c.recCh:
			c.onRecognition(ev, ok)

		case res := <-c.genCh:
			c.onGeneration(res)

		case ev, ok := <-c.speechCh:
			c.onSpeech(ev, ok)
		}
	}
}

func (c *Controller) handle(cmd command) error {
	switch cmd.kind {
	case cmdStart:
		switch c.State() {
		case Idle:
		case Errored:
			return ErrErrored
		default:
			return ErrBusy
		}
		c.token++
		c.rearms = 0
		return c.listen()

	case cmdCancel:
		c.token++
		c.abort()
		c.setState(Idle)
		return nil

	case cmdReset:
		if s := c.State(); s != Idle && s != Errored {
			return ErrNotIdle
		}
		c.history.Reset()
		c.mu.Lock()
		c.lastErr = nil
		c.mu.Unlock()
		c.setState(Idle)
		return nil

	case cmdPreempt:
		if cmd.token != c.token {
			return nil
		}
		if s := c.State(); s == Idle || s == Errored {
			return nil
		}
		c.preempted(cmd.device)
		return nil
	}
	return nil
}

// preempted ends the turn after another owner took device. Collaborators
// whose lease was superseded are left alone: they now serve the new owner.
func (c *Controller) preempted(device string) {
	c.log.Info("conversation preempted by device contention", "device", device)
	c.notify(Event{Type: EventPreempted, Device: device})
	c.token++
	c.abort()
	c.setState(Idle)
}

// superseded reports whether l was taken over by another owner.
func superseded(l *device.Lease) bool {
	return l != nil && !l.Held()
}

// listen activates the transcript source. A failure to activate is
// surfaced and returned.
func (c *Controller) listen() error {
	if c.devices != nil && c.cfg.InputDevice != "" {
		c.inLease = c.devices.Acquire(c.cfg.InputDevice, c.cfg.Owner, c.preemptFunc(c.cfg.InputDevice, c.token))
	}
	ch, err := c.src.Activate(c.runCtx, c.cfg.Locale)
	if err != nil {
		c.inLease.Release()
		c.inLease = nil
		if types.KindOf(err) == types.KindUnknown {
			err = types.NewError(types.KindRecognitionFailed, "controller: activate", err)
		}
		c.fail(err)
		return err
	}
	c.recCh = ch
	c.setState(Listening)
	return nil
}

// stopListening ends the current activation, if any. It does not change
// the state.
func (c *Controller) stopListening() {
	if c.recCh == nil {
		return
	}
	if !superseded(c.inLease) {
		c.src.Deactivate()
	}
	c.recCh = nil
	c.inLease.Release()
	c.inLease = nil
}

// stopSpeaking cancels the playing utterance, if any.
func (c *Controller) stopSpeaking() {
	if c.speechCh == nil {
		return
	}
	if !superseded(c.outLease) {
		c.synth.CancelAll()
	}
	c.speechCh = nil
	c.outLease.Release()
	c.outLease = nil
}

// abort releases every collaborator. An in-flight generation is cancelled
// but still counted as outstanding until its result drains.
func (c *Controller) abort() {
	c.stopListening()
	c.stopSpeaking()
	if c.genCancel != nil {
		c.genCancel()
	}
	c.parked = nil
}

func (c *Controller) onRecognition(ev stt.Event, ok bool) {
	if superseded(c.inLease) {
		// The new owner's activation replaced ours.
		c.stopListening()
		c.preempted(c.cfg.InputDevice)
		return
	}
	if !ok || ev.Type == stt.EventEnd {
		// Ended without a result.
		c.stopListening()
		c.emptyUtterance()
		return
	}

	switch ev.Type {
	case stt.EventStart:
		c.log.Debug("recognition started")

	case stt.EventResult:
		c.stopListening()
		text := ev.Top()
		c.notify(Event{Type: EventRecognized, Transcript: text})
		if text == "" {
			c.emptyUtterance()
			return
		}
		c.rearms = 0
		c.userTurn(text)

	case stt.EventError:
		c.stopListening()
		err := ev.Err
		if types.KindOf(err) == types.KindUnknown {
			err = types.NewError(types.KindRecognitionFailed, "controller: recognize", err)
		}
		c.fail(err)
	}
}

// emptyUtterance re-arms the source when possible and otherwise returns to
// Idle with a recoverable error.
func (c *Controller) emptyUtterance() {
	if r, ok := c.src.(stt.Rearmable); ok && r.CanRearm() && c.rearms < c.cfg.MaxRearms {
		c.rearms++
		c.log.Debug("empty utterance, re-arming", "attempt", c.rearms)
		_ = c.listen()
		return
	}
	c.fail(types.NewError(types.KindRecognitionFailed, "controller: listen", errEmptyUtterance))
}

func (c *Controller) userTurn(text string) {
	history := c.history.Snapshot()
	turn, err := c.history.Add(types.RoleUser, text)
	if err != nil {
		c.fail(types.NewError(types.KindRecognitionFailed, "controller: append user turn", err))
		return
	}
	c.appended(turn)
	c.turnStart = time.Now()
	c.setState(AwaitingReply)

	c.requestGeneration(llm.GenerationRequest{
		History:  history,
		UserTurn: turn,
		Persona:  c.cfg.Persona,
		Locale:   c.cfg.Locale,
	})
}

// requestGeneration launches req, or parks it while a cancelled call is
// still outstanding.
func (c *Controller) requestGeneration(req llm.GenerationRequest) {
	if c.genOutstanding {
		c.log.Debug("generation parked behind a cancelled call")
		c.parked = &req
		return
	}
	c.launch(req)
}

func (c *Controller) launch(req llm.GenerationRequest) {
	ctx, cancel := context.WithTimeout(c.runCtx, c.cfg.GenerationTimeout)
	c.genCancel = cancel
	c.genOutstanding = true
	token := c.token

	go func() {
		ctx, span := observe.StartGenerationSpan(ctx, c.gen.Name(), string(req.Locale), len(req.History))
		defer span.End()

		start := time.Now()
		reply, err := c.gen.Generate(ctx, req)
		if err == nil && reply == nil {
			err = types.NewError(types.KindEmptyReply, "controller: generate", nil)
		}
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && types.KindOf(err) != types.KindTransport {
			err = types.NewError(types.KindTransport, "controller: generate", err)
		}
		if err != nil {
			span.RecordError(err)
		}
		c.genCh <- genResult{token: token, reply: reply, err: err, elapsed: time.Since(start)}
	}()
}

func (c *Controller) onGeneration(res genResult) {
	c.genOutstanding = false
	if c.genCancel != nil {
		c.genCancel()
		c.genCancel = nil
	}
	c.metrics.RecordGeneration(c.runCtx, c.gen.Name(), res.elapsed.Seconds(), res.err)

	if res.token != c.token || c.State() != AwaitingReply {
		c.metrics.RecordStaleReply(c.runCtx)
		c.log.Debug("discarding stale generation result", "token", res.token, "current", c.token)
		if c.parked != nil {
			req := *c.parked
			c.parked = nil
			c.launch(req)
		}
		return
	}

	if res.err != nil {
		c.fail(res.err)
		return
	}

	turn, err := c.history.Add(types.RoleAssistant, res.reply.Text)
	if err != nil {
		c.fail(types.NewError(types.KindEmptyReply, "controller: append assistant turn", err))
		return
	}
	if res.reply.Placeholder {
		c.log.Info("generator returned no text, using placeholder", "placeholder", res.reply.Text)
	}
	c.appended(turn)
	c.speak(turn.Text)
}

func (c *Controller) speak(text string) {
	// Last reply wins.
	c.stopSpeaking()

	if c.devices != nil && c.cfg.OutputDevice != "" {
		c.outLease = c.devices.Acquire(c.cfg.OutputDevice, c.cfg.Owner, c.preemptFunc(c.cfg.OutputDevice, c.token))
	}
	ch, err := c.synth.Speak(c.runCtx, tts.Utterance{Text: text, Locale: c.cfg.Locale, Prosody: c.cfg.Prosody})
	if err != nil {
		c.outLease.Release()
		c.outLease = nil
		c.fail(synthesisError(err))
		return
	}
	c.speechCh = ch
	c.speechStart = time.Now()
	c.setState(Speaking)
}

func (c *Controller) onSpeech(ev tts.Event, ok bool) {
	if superseded(c.outLease) {
		c.stopSpeaking()
		c.preempted(c.cfg.OutputDevice)
		return
	}
	c.speechCh = nil
	c.outLease.Release()
	c.outLease = nil
	c.metrics.SpeechDuration.Record(c.runCtx, time.Since(c.speechStart).Seconds())

	if !ok {
		ev = tts.Event{Type: tts.EventEnd}
	}
	switch ev.Type {
	case tts.EventEnd:
		c.metrics.TurnDuration.Record(c.runCtx, time.Since(c.turnStart).Seconds())
		if c.cfg.Continuous {
			c.rearms = 0
			_ = c.listen()
			return
		}
		c.setState(Idle)

	case tts.EventCancelled:
		c.log.Debug("speech cancelled by synthesizer")
		c.setState(Idle)

	case tts.EventError:
		c.fail(synthesisError(ev.Err))
	}
}

func synthesisError(err error) error {
	if k := types.KindOf(err); k == types.KindSynthesisFailed || k == types.KindUnsupportedPlatform {
		return err
	}
	return types.NewError(types.KindSynthesisFailed, "controller: speak", err)
}

// fail surfaces err and moves to Errored for terminal kinds, Idle otherwise.
func (c *Controller) fail(err error) {
	kind := types.KindOf(err)
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	c.metrics.RecordControllerError(c.runCtx, kind.String())
	c.log.Warn("turn failed", "kind", kind.String(), "err", err)
	c.notify(Event{Type: EventError, Err: err})

	if kind.Terminal() {
		c.setState(Errored)
		return
	}
	c.setState(Idle)
}

func (c *Controller) appended(t types.Turn) {
	c.metrics.RecordTurn(c.runCtx, string(t.Role))
	c.notify(Event{Type: EventTurnAppended, Turn: t})
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev == s {
		return
	}
	c.log.Debug("state changed", "from", prev.String(), "to", s.String())
	c.notify(Event{Type: EventStateChanged, State: s, Previous: prev})
}

func (c *Controller) notify(ev Event) {
	for _, fn := range c.observers {
		fn(ev)
	}
}
