// Package conversation holds the append-only turn log that a turn-taking
// controller replays to the response generator as context.
package conversation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/saathi/pkg/types"
)

var (
	// ErrOutOfOrder is returned when an appended turn's sequence is not
	// exactly one past the last appended turn.
	ErrOutOfOrder = errors.New("conversation: turn sequence out of order")

	// ErrEmptyText is returned when an appended turn has no text.
	ErrEmptyText = errors.New("conversation: turn text is empty")

	// ErrInvalidRole is returned when an appended turn has an unknown role.
	ErrInvalidRole = errors.New("conversation: invalid turn role")
)

// History is an ordered, append-only log of [types.Turn] values.
//
// Sequence numbers start at 1 and grow by exactly one per appended turn.
// Snapshots are independent copies, so callers may hand them to another
// goroutine while the history keeps growing.
//
// All methods are safe for concurrent use.
type History struct {
	mu    sync.Mutex
	turns []types.Turn
}

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{turns: make([]types.Turn, 0, 16)}
}

// Append validates t and adds it to the end of the log. t.Sequence must be
// one past the last appended sequence (1 for an empty history) and t.Text
// must contain more than whitespace.
func (h *History) Append(t types.Turn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.appendLocked(t)
}

// Add appends a turn with the next free sequence number and returns it.
func (h *History) Add(role types.Role, text string) (types.Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := types.Turn{Role: role, Text: text, Sequence: len(h.turns) + 1}
	if err := h.appendLocked(t); err != nil {
		return types.Turn{}, err
	}
	return t, nil
}

// appendLocked must be called with h.mu held.
func (h *History) appendLocked(t types.Turn) error {
	if !t.Role.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, t.Role)
	}
	if strings.TrimSpace(t.Text) == "" {
		return ErrEmptyText
	}
	if want := len(h.turns) + 1; t.Sequence != want {
		return fmt.Errorf("%w: want %d, got %d", ErrOutOfOrder, want, t.Sequence)
	}
	h.turns = append(h.turns, t)
	return nil
}

// Snapshot returns a copy of the turns in order.
func (h *History) Snapshot() []types.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of appended turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// NextSequence returns the sequence number the next appended turn must carry.
func (h *History) NextSequence() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns) + 1
}

// Reset clears the log. The next appended turn starts again at sequence 1.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = h.turns[:0]
}
