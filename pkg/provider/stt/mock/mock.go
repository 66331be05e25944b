// Package mock provides a test double for the stt.Source interface.
//
// Source replays scripted activations in order and records every call. It
// also tracks how many activations are outstanding at once so tests can
// assert that a caller never overlaps activations.
//
// Example:
//
//	src := &mock.Source{Script: []mock.Activation{mock.Say("hello")}}
//	ch, _ := src.Activate(ctx, "hi-IN")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/saathi/pkg/provider/stt"
	"github.com/MrWong99/saathi/pkg/types"
)

// Activation scripts the events of one Activate call.
type Activation struct {
	// Events are delivered on the activation channel in order.
	Events []stt.Event

	// Hold keeps the channel open after Events have been delivered, until
	// Deactivate is called or Emit pushes an End event. Use it to simulate a
	// user who has not finished speaking.
	Hold bool
}

// Say returns an Activation that recognizes text and ends.
func Say(text string) Activation {
	return Activation{Events: []stt.Event{
		{Type: stt.EventStart},
		{Type: stt.EventResult, Alternatives: []stt.Alternative{{Transcript: text, Confidence: 0.9}}},
		{Type: stt.EventEnd},
	}}
}

// Fail returns an Activation that reports an error of kind and ends.
func Fail(kind types.Kind) Activation {
	return Activation{Events: []stt.Event{
		{Type: stt.EventStart},
		{Type: stt.EventError, Err: types.NewError(kind, "mock: recognize", nil)},
		{Type: stt.EventEnd},
	}}
}

// Silence returns an Activation that ends without a result.
func Silence() Activation {
	return Activation{Events: []stt.Event{{Type: stt.EventStart}, {Type: stt.EventEnd}}}
}

// ActivateCall records a single invocation of Activate.
type ActivateCall struct {
	Ctx    context.Context
	Locale types.Locale
}

// Source is a mock implementation of stt.Source.
// When Script is exhausted, Activate returns a held activation with no events.
type Source struct {
	mu sync.Mutex

	// Script is consumed one Activation per Activate call.
	Script []Activation

	// ActivateErr, if non-nil, is returned by every Activate call.
	ActivateErr error

	// Rearm is returned by CanRearm.
	Rearm bool

	// --- Call records ---

	// ActivateCalls records every invocation of Activate in order.
	ActivateCalls []ActivateCall

	// DeactivateCount is the number of times Deactivate was called.
	DeactivateCount int

	// MaxOutstanding is the highest number of simultaneously outstanding
	// activations observed. A well-behaved caller keeps this at most 1.
	MaxOutstanding int

	next        int
	outstanding int
	current     chan stt.Event
}

var (
	_ stt.Source    = (*Source)(nil)
	_ stt.Rearmable = (*Source)(nil)
)

// Activate records the call and replays the next scripted activation.
func (s *Source) Activate(ctx context.Context, locale types.Locale) (<-chan stt.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ActivateCalls = append(s.ActivateCalls, ActivateCall{Ctx: ctx, Locale: locale})
	if s.ActivateErr != nil {
		return nil, s.ActivateErr
	}

	act := Activation{Hold: true}
	if s.next < len(s.Script) {
		act = s.Script[s.next]
		s.next++
	}

	s.outstanding++
	if s.outstanding > s.MaxOutstanding {
		s.MaxOutstanding = s.outstanding
	}

	ch := make(chan stt.Event, len(act.Events)+16)
	for _, ev := range act.Events {
		ch <- ev
	}
	if act.Hold {
		s.current = ch
	} else {
		close(ch)
		s.current = nil
	}
	return ch, nil
}

// Deactivate records the call and closes the held activation, if any.
func (s *Source) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeactivateCount++
	if s.outstanding > 0 {
		s.outstanding--
	}
	if s.current != nil {
		close(s.current)
		s.current = nil
	}
}

// Emit delivers ev on the currently held activation. It reports false when no
// activation is held. An EventEnd closes the activation.
func (s *Source) Emit(ev stt.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	s.current <- ev
	if ev.Type == stt.EventEnd {
		close(s.current)
		s.current = nil
	}
	return true
}

// CanRearm implements stt.Rearmable.
func (s *Source) CanRearm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Rearm
}

// ActivateCount returns the number of Activate calls. Thread-safe.
func (s *Source) ActivateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ActivateCalls)
}

// Held reports whether an activation is currently held open. Thread-safe.
func (s *Source) Held() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Stats returns DeactivateCount and MaxOutstanding under the lock.
func (s *Source) Stats() (deactivations, maxOutstanding int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DeactivateCount, s.MaxOutstanding
}
