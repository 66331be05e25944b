// Package bridge carries one conversation's device traffic over a websocket.
//
// The browser owns the microphone and the speaker: it runs Web Speech
// recognition and speechSynthesis and reports their events back. On the
// server side a [Conn] is both the [stt.Source] and the [tts.Synthesizer] of
// one controller, and it also forwards state, turn and error notifications
// plus the client's start, cancel and reset commands.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/saathi/pkg/provider/stt"
	"github.com/MrWong99/saathi/pkg/provider/tts"
	"github.com/MrWong99/saathi/pkg/types"
)

const (
	writeTimeout = 5 * time.Second
	outBuffer    = 64
	cmdBuffer    = 8
)

// ErrClosed is returned once the socket is gone.
var ErrClosed = errors.New("bridge: connection closed")

var (
	_ stt.Source      = (*Conn)(nil)
	_ stt.Rearmable   = (*Conn)(nil)
	_ tts.Synthesizer = (*Conn)(nil)
)

// Conn is the server end of one browser socket.
type Conn struct {
	ws       *websocket.Conn
	out      chan Frame
	commands chan Command
	stopped  chan struct{}
	done     chan struct{}
	log      *slog.Logger

	mu     sync.Mutex
	closed bool
	act    *activation
	utt    *utterance
}

// activation and utterance close done when they finish, which releases
// the goroutine watching their context.
type activation struct {
	id   string
	ch   chan stt.Event
	done chan struct{}
}

func newActivation() *activation {
	// Start, Result, Error and End fit without blocking the reader.
	return &activation{id: uuid.NewString(), ch: make(chan stt.Event, 4), done: make(chan struct{})}
}

func (a *activation) finish() {
	close(a.ch)
	close(a.done)
}

type utterance struct {
	id   string
	ch   chan tts.Event
	done chan struct{}
}

func newUtterance() *utterance {
	return &utterance{id: uuid.NewString(), ch: make(chan tts.Event, 1), done: make(chan struct{})}
}

func (u *utterance) finish(ev tts.Event) {
	u.ch <- ev
	close(u.ch)
	close(u.done)
}

// New wraps an accepted websocket. Call Run to start exchanging frames.
func New(ws *websocket.Conn) *Conn {
	return &Conn{
		ws:       ws,
		out:      make(chan Frame, outBuffer),
		commands: make(chan Command, cmdBuffer),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
		log:      slog.Default(),
	}
}

// WithLogger sets the logger used for protocol warnings.
func (c *Conn) WithLogger(l *slog.Logger) *Conn {
	c.log = l
	return c
}

// Commands delivers client commands. It is closed when Run returns.
func (c *Conn) Commands() <-chan Command { return c.commands }

// Done is closed when Run returns.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Run reads and writes frames until the socket fails or ctx is cancelled.
// On return any outstanding activation ends with an UnsupportedPlatform
// error and any playing utterance with a SynthesisFailed error.
func (c *Conn) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error { return c.writeLoop(gctx) })
	err := g.Wait()

	c.shutdown()
	_ = c.ws.Close(websocket.StatusNormalClosure, "session closed")
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Conn) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return err
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Debug("bridge: skipping malformed frame", "err", err)
			continue
		}
		c.dispatch(f)
	}
}

func (c *Conn) writeLoop(ctx context.Context) error {
	defer close(c.stopped)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-c.out:
			data, err := json.Marshal(f)
			if err != nil {
				return fmt.Errorf("bridge: marshal %s: %w", f.Type, err)
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return fmt.Errorf("bridge: write %s: %w", f.Type, err)
			}
		}
	}
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if a := c.act; a != nil {
		c.act = nil
		for _, ev := range []stt.Event{
			{Type: stt.EventError, Err: types.NewError(types.KindUnsupportedPlatform, "bridge: recognize", ErrClosed)},
			{Type: stt.EventEnd},
		} {
			select {
			case a.ch <- ev:
			default:
			}
		}
		a.finish()
	}
	if u := c.utt; u != nil {
		c.utt = nil
		u.finish(tts.Event{Type: tts.EventError, Err: types.NewError(types.KindSynthesisFailed, "bridge: speak", ErrClosed)})
	}
	close(c.commands)
	close(c.done)
}

// send queues f for the writer. It drops f once the writer has stopped.
// Callers may hold c.mu.
func (c *Conn) send(f Frame) {
	select {
	case c.out <- f:
	case <-c.stopped:
	}
}

func (c *Conn) dispatch(f Frame) {
	switch f.Type {
	case TypeRecognitionStart:
		c.recognition(f.ID, stt.Event{Type: stt.EventStart}, false)
	case TypeRecognitionResult:
		c.recognition(f.ID, stt.Event{Type: stt.EventResult, Alternatives: toAlternatives(f.Alternatives)}, false)
	case TypeRecognitionError:
		if err := RecognitionError(f.Error); err != nil {
			c.recognition(f.ID, stt.Event{Type: stt.EventError, Err: err}, false)
		}
	case TypeRecognitionEnd:
		c.recognition(f.ID, stt.Event{Type: stt.EventEnd}, true)
	case TypeSpeechEnd:
		c.speech(f.ID, tts.Event{Type: tts.EventEnd})
	case TypeSpeechError:
		c.speech(f.ID, SpeechOutcome(f.Error))
	case TypeStart, TypeCancel, TypeReset:
		select {
		case c.commands <- Command(f.Type):
		default:
			c.log.Warn("bridge: command queue full, dropping", "command", f.Type)
		}
	default:
		c.log.Debug("bridge: unknown frame type", "type", f.Type)
	}
}

// recognition delivers ev to the current activation. Extra events beyond
// the channel capacity are dropped.
func (c *Conn) recognition(id string, ev stt.Event, last bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.act
	if a == nil || (id != "" && id != a.id) {
		return
	}
	select {
	case a.ch <- ev:
	default:
		c.log.Debug("bridge: dropping surplus recognition event", "type", ev.Type.String())
	}
	if last {
		c.act = nil
		a.finish()
	}
}

func (c *Conn) speech(id string, ev tts.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.utt
	if u == nil || id != u.id {
		return
	}
	c.utt = nil
	u.finish(ev)
}

// Activate implements [stt.Source]: it asks the client to listen once.
func (c *Conn) Activate(ctx context.Context, locale types.Locale) (<-chan stt.Event, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, types.NewError(types.KindUnsupportedPlatform, "bridge: activate", ErrClosed)
	}
	c.deactivateLocked()
	a := newActivation()
	c.act = a
	c.send(Frame{Type: TypeListen, ID: a.id, Locale: string(locale)})
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if c.act == a {
				c.deactivateLocked()
			}
			c.mu.Unlock()
		case <-a.done:
		case <-c.done:
		}
	}()
	return a.ch, nil
}

// Deactivate implements [stt.Source].
func (c *Conn) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deactivateLocked()
}

func (c *Conn) deactivateLocked() {
	a := c.act
	if a == nil {
		return
	}
	c.act = nil
	a.finish()
	c.send(Frame{Type: TypeStopListening, ID: a.id})
}

// CanRearm implements [stt.Rearmable]. A connected browser can always
// listen again.
func (c *Conn) CanRearm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Speak implements [tts.Synthesizer]: it asks the client to speak u.
func (c *Conn) Speak(ctx context.Context, u tts.Utterance) (<-chan tts.Event, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, types.NewError(types.KindSynthesisFailed, "bridge: speak", ErrClosed)
	}
	c.cancelLocked()
	utt := newUtterance()
	c.utt = utt
	c.send(Frame{
		Type:   TypeSpeak,
		ID:     utt.id,
		Text:   u.Text,
		Locale: string(u.Locale),
		Rate:   u.Rate,
		Pitch:  u.Pitch,
		Volume: u.Volume,
	})
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if c.utt == utt {
				c.cancelLocked()
			}
			c.mu.Unlock()
		case <-utt.done:
		case <-c.done:
		}
	}()
	return utt.ch, nil
}

// CancelAll implements [tts.Synthesizer].
func (c *Conn) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

func (c *Conn) cancelLocked() {
	u := c.utt
	if u == nil {
		return
	}
	c.utt = nil
	u.finish(tts.Event{Type: tts.EventCancelled})
	c.send(Frame{Type: TypeCancelSpeech, ID: u.id})
}

// SendState notifies the client of a controller state change.
func (c *Conn) SendState(state string) {
	c.send(Frame{Type: TypeState, State: state})
}

// SendTurn notifies the client of an appended turn.
func (c *Conn) SendTurn(t types.Turn) {
	c.send(Frame{Type: TypeTurn, Role: string(t.Role), Text: t.Text, Sequence: t.Sequence})
}

// SendError notifies the client of a surfaced error.
func (c *Conn) SendError(err error) {
	c.send(Frame{Type: TypeError, Kind: types.KindOf(err).String(), Message: err.Error()})
}
