// Package checklist tracks a fixed list of stock questions through a
// conversation.
//
// A question counts as asked when an assistant turn contains a sentence that
// is similar enough to it, and as answered when the next user turn arrives.
// Similarity is Jaro-Winkler on normalised text, so small wording changes by
// the generator ("What is your name?" vs "What is your full name?") still
// match.
package checklist

import (
	"strings"
	"sync"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/saathi/pkg/types"
)

const defaultThreshold = 0.90

// Item is the progress of one stock question.
type Item struct {
	Question string
	Asked    bool
	Answered bool

	// Answer is the first user turn that followed the question.
	Answer string
}

// Option is a functional option for [New].
type Option func(*Checklist)

// WithThreshold sets the minimum similarity for a sentence to count as the
// question. Default: 0.90.
func WithThreshold(th float64) Option {
	return func(c *Checklist) { c.threshold = th }
}

// Checklist is safe for concurrent use.
type Checklist struct {
	threshold float64

	mu      sync.Mutex
	items   []Item
	pending []int
}

// New returns a Checklist over questions. Empty questions are skipped.
func New(questions []string, opts ...Option) *Checklist {
	c := &Checklist{threshold: defaultThreshold}
	for _, o := range opts {
		o(c)
	}
	for _, q := range questions {
		if strings.TrimSpace(q) == "" {
			continue
		}
		c.items = append(c.items, Item{Question: q})
	}
	return c
}

// Observe updates progress with a finalized turn.
func (c *Checklist) Observe(t types.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch t.Role {
	case types.RoleAssistant:
		c.pending = c.pending[:0]
		for i := range c.items {
			if c.items[i].Answered {
				continue
			}
			if Contains(t.Text, c.items[i].Question, c.threshold) {
				c.items[i].Asked = true
				c.pending = append(c.pending, i)
			}
		}
	case types.RoleUser:
		if strings.TrimSpace(t.Text) == "" {
			return
		}
		for _, i := range c.pending {
			c.items[i].Answered = true
			c.items[i].Answer = t.Text
		}
		c.pending = c.pending[:0]
	}
}

// Remaining returns the questions not yet answered, in order.
func (c *Checklist) Remaining() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, it := range c.items {
		if !it.Answered {
			out = append(out, it.Question)
		}
	}
	return out
}

// Complete reports whether every question has been answered.
func (c *Checklist) Complete() bool {
	answered, total := c.Progress()
	return answered == total
}

// Progress returns the number of answered questions and the total.
func (c *Checklist) Progress() (answered, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.items {
		if it.Answered {
			answered++
		}
	}
	return answered, len(c.items)
}

// Items returns a copy of the per-question progress.
func (c *Checklist) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Reset clears all progress.
func (c *Checklist) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		c.items[i] = Item{Question: c.items[i].Question}
	}
	c.pending = c.pending[:0]
}

// Similarity returns the Jaro-Winkler similarity of a and b after
// normalisation, in [0, 1].
func Similarity(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return matchr.JaroWinkler(na, nb, false)
}

// Contains reports whether text contains question: either verbatim after
// normalisation or as a sentence scoring at least threshold.
func Contains(text, question string, threshold float64) bool {
	nq := normalize(question)
	if nq == "" {
		return false
	}
	if strings.Contains(normalize(text), nq) {
		return true
	}
	for _, s := range sentences(text) {
		if Similarity(s, question) >= threshold {
			return true
		}
	}
	return false
}

// sentences splits on Latin and Devanagari sentence terminators.
func sentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', '?', '!', '।', '\n':
			return true
		}
		return false
	})
}

// normalize lower-cases s, drops punctuation and collapses whitespace.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}
