// Package console provides an stt.Source that reads typed utterances from a
// terminal, one line per activation.
//
// The source is meant for the `saathi chat` command and for local testing
// without a browser. A blank line is an empty utterance; the source can
// always re-arm, so the controller simply asks for another line.
package console

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/MrWong99/saathi/pkg/provider/stt"
	"github.com/MrWong99/saathi/pkg/types"
)

var (
	_ stt.Source    = (*Source)(nil)
	_ stt.Rearmable = (*Source)(nil)
)

// Source reads one line per activation from an io.Reader.
type Source struct {
	in     io.Reader
	out    io.Writer
	prompt string

	startOnce sync.Once
	eof       chan struct{}

	mu    sync.Mutex
	ready *sync.Cond
	cur   *activation
	ended bool
}

// activation is one Activate call. It is finished exactly once, under mu.
type activation struct {
	ch   chan stt.Event
	done chan struct{}
}

func (a *activation) finish(evs ...stt.Event) {
	for _, ev := range evs {
		a.ch <- ev
	}
	close(a.ch)
	close(a.done)
}

// Option is a functional option for [New].
type Option func(*Source)

// WithPrompt writes prompt to out at the start of every activation.
func WithPrompt(out io.Writer, prompt string) Option {
	return func(s *Source) {
		s.out = out
		s.prompt = prompt
	}
}

// New creates a Source reading from in. Reading starts with the first
// activation.
func New(in io.Reader, opts ...Option) *Source {
	s := &Source{
		in:  in,
		eof: make(chan struct{}),
	}
	s.ready = sync.NewCond(&s.mu)
	for _, o := range opts {
		o(s)
	}
	return s
}

// Done is closed once the input reaches EOF or fails.
func (s *Source) Done() <-chan struct{} { return s.eof }

// CanRearm implements stt.Rearmable. A terminal can always be asked again
// until its input closes.
func (s *Source) CanRearm() bool {
	select {
	case <-s.eof:
		return false
	default:
		return true
	}
}

// Activate implements stt.Source. The activation emits Start, then either a
// Result carrying the next line or, once the input is exhausted, an
// UnsupportedPlatform error, and finally End. A newer activation or
// Deactivate closes it after Start; no typed line is lost that way.
func (s *Source) Activate(ctx context.Context, locale types.Locale) (<-chan stt.Event, error) {
	s.startOnce.Do(func() { go s.readLoop() })

	// Start, Result or Error, End.
	a := &activation{ch: make(chan stt.Event, 3), done: make(chan struct{})}
	a.ch <- stt.Event{Type: stt.EventStart}
	if s.out != nil && s.prompt != "" {
		_, _ = io.WriteString(s.out, s.prompt)
	}

	s.mu.Lock()
	s.stopLocked()
	if s.ended {
		a.finish(eofError(), stt.Event{Type: stt.EventEnd})
		s.mu.Unlock()
		return a.ch, nil
	}
	s.cur = a
	s.ready.Signal()
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.cur == a {
				s.stopLocked()
			}
			s.mu.Unlock()
		case <-a.done:
		}
	}()
	return a.ch, nil
}

// Deactivate implements stt.Source.
func (s *Source) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Source) stopLocked() {
	if s.cur != nil {
		s.cur.finish()
		s.cur = nil
	}
}

// readLoop holds at most one line until an activation is waiting for it.
func (s *Source) readLoop() {
	sc := bufio.NewScanner(s.in)
	for sc.Scan() {
		line := sc.Text()
		s.mu.Lock()
		for s.cur == nil {
			s.ready.Wait()
		}
		s.cur.finish(
			stt.Event{Type: stt.EventResult, Alternatives: []stt.Alternative{{Transcript: line, Confidence: 1}}},
			stt.Event{Type: stt.EventEnd},
		)
		s.cur = nil
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	close(s.eof)
	if s.cur != nil {
		s.cur.finish(eofError(), stt.Event{Type: stt.EventEnd})
		s.cur = nil
	}
}

func eofError() stt.Event {
	return stt.Event{Type: stt.EventError, Err: types.NewError(types.KindUnsupportedPlatform, "console: listen", io.EOF)}
}
