// Package console provides a tts.Synthesizer that prints utterances to a
// terminal instead of speaking them.
//
// By default an utterance completes as soon as it is printed. [WithPace]
// makes each utterance take time proportional to its length and speaking
// rate, which gives cancellation something to interrupt.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/saathi/pkg/provider/tts"
	"github.com/MrWong99/saathi/pkg/types"
)

var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesizer writes one line per utterance to an io.Writer.
type Synthesizer struct {
	prefix string
	pace   time.Duration

	mu   sync.Mutex
	out  io.Writer
	stop chan struct{}
}

// Option is a functional option for [New].
type Option func(*Synthesizer)

// WithPrefix sets the text printed before every utterance. Default: "saathi> ".
func WithPrefix(p string) Option {
	return func(s *Synthesizer) { s.prefix = p }
}

// WithPace makes each word take d to "speak" at rate 1.
func WithPace(d time.Duration) Option {
	return func(s *Synthesizer) { s.pace = d }
}

// New creates a Synthesizer printing to out.
func New(out io.Writer, opts ...Option) *Synthesizer {
	s := &Synthesizer{out: out, prefix: "saathi> "}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak implements tts.Synthesizer.
func (s *Synthesizer) Speak(ctx context.Context, u tts.Utterance) (<-chan tts.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()

	if _, err := fmt.Fprintf(s.out, "%s%s\n", s.prefix, u.Text); err != nil {
		return nil, types.NewError(types.KindSynthesisFailed, "console: speak", err)
	}

	ch := make(chan tts.Event, 1)
	d := s.duration(u)
	if d <= 0 {
		ch <- tts.Event{Type: tts.EventEnd}
		close(ch)
		return ch, nil
	}

	stop := make(chan struct{})
	s.stop = stop
	go func() {
		defer close(ch)
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			ch <- tts.Event{Type: tts.EventEnd}
		case <-stop:
			ch <- tts.Event{Type: tts.EventCancelled}
		case <-ctx.Done():
			ch <- tts.Event{Type: tts.EventCancelled}
		}
		s.mu.Lock()
		if s.stop == stop {
			s.stop = nil
		}
		s.mu.Unlock()
	}()
	return ch, nil
}

// CancelAll implements tts.Synthesizer.
func (s *Synthesizer) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// cancelLocked must be called with s.mu held.
func (s *Synthesizer) cancelLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Synthesizer) duration(u tts.Utterance) time.Duration {
	if s.pace <= 0 {
		return 0
	}
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	words := len(strings.Fields(u.Text))
	return time.Duration(float64(s.pace) * float64(words) / rate)
}
