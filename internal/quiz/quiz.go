// Package quiz implements the one-shot generation features: explaining the
// meaning of a name and the topic quiz (definition, interview question,
// answer check).
//
// Each [Tutor] call is a single request to the response generator with no
// conversation history; the tutor keeps its own record of the topic, the
// questions already asked and the exchange so far.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/saathi/internal/checklist"
	"github.com/MrWong99/saathi/internal/conversation"
	"github.com/MrWong99/saathi/internal/observe"
	"github.com/MrWong99/saathi/internal/prompt"
	"github.com/MrWong99/saathi/pkg/provider/llm"
	"github.com/MrWong99/saathi/pkg/provider/tts"
	"github.com/MrWong99/saathi/pkg/types"
)

// Placeholders returned when the generator has nothing to say.
const (
	PlaceholderDefinition = "Definition not found."
	PlaceholderQuestion   = "No question available."
	PlaceholderEvaluation = "Could not validate answer."
)

const (
	defaultRepeatThreshold = 0.92
	defaultMaxRegenerate   = 2
)

var (
	// ErrEmptyInput is returned when a name, topic or answer is blank.
	ErrEmptyInput = errors.New("quiz: input is empty")

	// ErrNoDefinition is returned by NextQuestion and CheckAnswer before a
	// definition has been fetched.
	ErrNoDefinition = errors.New("quiz: no topic defined yet")
)

// NameMeaning asks gen what name means. An empty reply is an error.
func NameMeaning(ctx context.Context, gen llm.Generator, name string, locale types.Locale) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("quiz: name meaning: %w", ErrEmptyInput)
	}
	g := llm.WithEmptyReplyPolicy(gen, llm.EmptyReplyFail, "")
	reply, err := ask(ctx, g, prompt.NameMeaning(name), locale, observe.DefaultMetrics())
	if err != nil {
		return "", fmt.Errorf("quiz: name meaning: %w", err)
	}
	return reply.Text, nil
}

// Evaluation is the outcome of [Tutor.CheckAnswer].
type Evaluation struct {
	Text    string
	Correct bool
}

// Snapshot is a copy of a tutor's progress.
type Snapshot struct {
	Topic          string
	Definition     string
	Questions      []string
	ShowDefinition bool
	History        []types.Turn
}

// Option is a functional option for [NewTutor].
type Option func(*Tutor)

// WithSynthesizer speaks every result through s.
func WithSynthesizer(s tts.Synthesizer) Option {
	return func(t *Tutor) { t.synth = s }
}

// WithLocale sets the request and speech locale. Default: en-US.
func WithLocale(l types.Locale) Option {
	return func(t *Tutor) { t.locale = l }
}

// WithProsody sets the speech prosody. Default: [types.DefaultProsody].
func WithProsody(p types.Prosody) Option {
	return func(t *Tutor) { t.prosody = p }
}

// WithRepeatThreshold sets the similarity above which a generated question
// counts as a repeat. Default: 0.92.
func WithRepeatThreshold(th float64) Option {
	return func(t *Tutor) { t.threshold = th }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Tutor) { t.metrics = m }
}

// Tutor runs a topic quiz. Calls are serialised; it is safe for concurrent
// use.
type Tutor struct {
	gen       llm.Generator
	synth     tts.Synthesizer
	locale    types.Locale
	prosody   types.Prosody
	threshold float64
	metrics   *observe.Metrics

	mu             sync.Mutex
	topic          string
	definition     string
	questions      []string
	showDefinition bool
	history        *conversation.History
}

// NewTutor creates a Tutor backed by gen.
func NewTutor(gen llm.Generator, opts ...Option) *Tutor {
	t := &Tutor{
		gen:       gen,
		locale:    "en-US",
		prosody:   types.DefaultProsody,
		threshold: defaultRepeatThreshold,
		history:   conversation.NewHistory(),
	}
	for _, o := range opts {
		o(t)
	}
	if t.metrics == nil {
		t.metrics = observe.DefaultMetrics()
	}
	return t
}

// Definition fetches a detailed definition of topic and starts a new quiz:
// earlier questions and history are discarded.
func (t *Tutor) Definition(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("quiz: definition: %w", ErrEmptyInput)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	g := llm.WithEmptyReplyPolicy(t.gen, llm.EmptyReplyPlaceholder, PlaceholderDefinition)
	reply, err := ask(ctx, g, prompt.Definition(topic), t.locale, t.metrics)
	if err != nil {
		return "", fmt.Errorf("quiz: definition: %w", err)
	}

	t.topic = topic
	t.definition = reply.Text
	t.questions = nil
	t.showDefinition = true
	t.history.Reset()
	t.say(ctx, reply.Text)
	return reply.Text, nil
}

// NextQuestion generates an interview question about the current topic that
// differs from every earlier one. A question too similar to an earlier one
// is regenerated a bounded number of times. Asking a question hides the
// definition.
func (t *Tutor) NextQuestion(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.definition == "" {
		return "", ErrNoDefinition
	}

	g := llm.WithEmptyReplyPolicy(t.gen, llm.EmptyReplyPlaceholder, PlaceholderQuestion)
	var q string
	for attempt := 0; ; attempt++ {
		reply, err := ask(ctx, g, prompt.Question(t.definition, t.questions), t.locale, t.metrics)
		if err != nil {
			return "", fmt.Errorf("quiz: question: %w", err)
		}
		q = reply.Text
		if reply.Placeholder || !t.isRepeat(q) || attempt >= defaultMaxRegenerate {
			break
		}
		slog.Debug("quiz: generated question repeats an earlier one, regenerating", "question", q, "attempt", attempt+1)
	}

	if q != PlaceholderQuestion {
		t.questions = append(t.questions, q)
	}
	t.showDefinition = false
	t.record(types.RoleAssistant, q)
	t.say(ctx, q)
	return q, nil
}

// CheckAnswer evaluates answer against the definition. An incorrect answer
// shows the definition again.
func (t *Tutor) CheckAnswer(ctx context.Context, answer string) (Evaluation, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Evaluation{}, fmt.Errorf("quiz: answer: %w", ErrEmptyInput)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.definition == "" {
		return Evaluation{}, ErrNoDefinition
	}

	var last string
	if n := len(t.questions); n > 0 {
		last = t.questions[n-1]
	}
	g := llm.WithEmptyReplyPolicy(t.gen, llm.EmptyReplyPlaceholder, PlaceholderEvaluation)
	reply, err := ask(ctx, g, prompt.Evaluate(t.definition, last, answer), t.locale, t.metrics)
	if err != nil {
		return Evaluation{}, fmt.Errorf("quiz: answer: %w", err)
	}

	ev := Evaluation{Text: reply.Text, Correct: !reply.Placeholder && !prompt.IsIncorrect(reply.Text)}
	if !ev.Correct && !reply.Placeholder {
		t.showDefinition = true
	}
	t.record(types.RoleUser, answer)
	t.record(types.RoleAssistant, reply.Text)
	t.say(ctx, reply.Text)
	return ev, nil
}

// Snapshot returns a copy of the tutor's progress.
func (t *Tutor) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Topic:          t.topic,
		Definition:     t.definition,
		Questions:      append([]string(nil), t.questions...),
		ShowDefinition: t.showDefinition,
		History:        t.history.Snapshot(),
	}
}

// isRepeat must be called with t.mu held.
func (t *Tutor) isRepeat(q string) bool {
	for _, prev := range t.questions {
		if checklist.Similarity(q, prev) >= t.threshold {
			return true
		}
	}
	return false
}

// record must be called with t.mu held.
func (t *Tutor) record(role types.Role, text string) {
	if _, err := t.history.Add(role, text); err != nil {
		slog.Warn("quiz: failed to record turn", "role", role, "err", err)
	}
}

// say speaks text, interrupting anything still playing. It does not wait
// for the utterance to finish.
func (t *Tutor) say(ctx context.Context, text string) {
	if t.synth == nil {
		return
	}
	t.synth.CancelAll()
	if _, err := t.synth.Speak(context.WithoutCancel(ctx), tts.Utterance{Text: text, Locale: t.locale, Prosody: t.prosody}); err != nil {
		slog.Warn("quiz: failed to speak", "err", err)
	}
}

func ask(ctx context.Context, gen llm.Generator, text string, locale types.Locale, m *observe.Metrics) (*llm.GenerationReply, error) {
	ctx, span := observe.StartGenerationSpan(ctx, gen.Name(), string(locale), 0)
	defer span.End()

	start := time.Now()
	reply, err := gen.Generate(ctx, llm.GenerationRequest{
		UserTurn: types.Turn{Role: types.RoleUser, Text: text, Sequence: 1},
		Locale:   locale,
	})
	m.RecordGeneration(ctx, gen.Name(), time.Since(start).Seconds(), err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return reply, nil
}
