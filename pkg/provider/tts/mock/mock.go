// Package mock provides a test double for the tts.Synthesizer interface.
//
// By default every utterance completes immediately. Set Hold to keep
// utterances "playing" until Finish or CancelAll is called, which lets tests
// observe the Speaking state and exercise cancellation.
//
// Example:
//
//	s := &mock.Synthesizer{}
//	ch, _ := s.Speak(ctx, tts.Utterance{Text: "hi there"})
//	ev := <-ch // tts.EventEnd
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/saathi/pkg/provider/tts"
)

// SpeakCall records a single invocation of Speak.
type SpeakCall struct {
	Ctx       context.Context
	Utterance tts.Utterance
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// --- Configurable behaviour ---

	// SpeakErr, if non-nil, is returned by every Speak call.
	SpeakErr error

	// Hold keeps utterances open until Finish or CancelAll.
	Hold bool

	// FailWith, if non-nil, makes each non-held utterance end with an
	// EventError carrying this error instead of EventEnd.
	FailWith error

	// --- Call records ---

	// SpeakCalls records every invocation of Speak in order.
	SpeakCalls []SpeakCall

	// CancelAllCount is the number of times CancelAll was called.
	CancelAllCount int

	// MaxOutstanding is the highest number of utterances observed playing at
	// once. A well-behaved caller keeps this at most 1.
	MaxOutstanding int

	playing []chan tts.Event
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// Speak records the call and either completes the utterance immediately or
// holds it, depending on Hold.
func (s *Synthesizer) Speak(ctx context.Context, u tts.Utterance) (<-chan tts.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SpeakCalls = append(s.SpeakCalls, SpeakCall{Ctx: ctx, Utterance: u})
	if s.SpeakErr != nil {
		return nil, s.SpeakErr
	}

	ch := make(chan tts.Event, 1)
	if s.Hold {
		s.playing = append(s.playing, ch)
		if len(s.playing) > s.MaxOutstanding {
			s.MaxOutstanding = len(s.playing)
		}
		return ch, nil
	}

	if s.MaxOutstanding == 0 {
		s.MaxOutstanding = 1
	}
	if s.FailWith != nil {
		ch <- tts.Event{Type: tts.EventError, Err: s.FailWith}
	} else {
		ch <- tts.Event{Type: tts.EventEnd}
	}
	close(ch)
	return ch, nil
}

// CancelAll records the call and delivers EventCancelled to every held
// utterance.
func (s *Synthesizer) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CancelAllCount++
	s.terminate(tts.Event{Type: tts.EventCancelled})
}

// Finish completes every held utterance with EventEnd. It reports whether any
// utterance was playing.
func (s *Synthesizer) Finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.playing)
	s.terminate(tts.Event{Type: tts.EventEnd})
	return n > 0
}

// terminate must be called with s.mu held.
func (s *Synthesizer) terminate(ev tts.Event) {
	for _, ch := range s.playing {
		ch <- ev
		close(ch)
	}
	s.playing = nil
}

// Playing returns the number of held utterances. Thread-safe.
func (s *Synthesizer) Playing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.playing)
}

// Spoken returns the texts passed to Speak, in order. Thread-safe.
func (s *Synthesizer) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.SpeakCalls))
	for i, c := range s.SpeakCalls {
		out[i] = c.Utterance.Text
	}
	return out
}

// Stats returns CancelAllCount and MaxOutstanding under the lock.
func (s *Synthesizer) Stats() (cancelAll, maxOutstanding int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CancelAllCount, s.MaxOutstanding
}

// LastUtterance returns the most recent utterance, or false when Speak was
// never called. Thread-safe.
func (s *Synthesizer) LastUtterance() (tts.Utterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.SpeakCalls) == 0 {
		return tts.Utterance{}, false
	}
	return s.SpeakCalls[len(s.SpeakCalls)-1].Utterance, true
}
