// Package prompt holds the built-in personas and the prompt builders used by
// the conversation, name-meaning and quiz features.
//
// The builders are pure: they perform no I/O, have no side effects, and are
// safe for concurrent use.
package prompt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/saathi/pkg/types"
)

// DefaultPersona is used when no persona is configured.
const DefaultPersona = "companion-hi"

// IncorrectMarker is the phrase an answer evaluation contains when the
// answer was judged wrong.
const IncorrectMarker = "It is not correct"

// Persona is a named instruction prefix sent with every generation request.
type Persona struct {
	Name string

	// Prefix is the instruction text passed as the request persona.
	Prefix string

	// Locale is the persona's natural conversation locale.
	Locale types.Locale

	// Placeholder is spoken when the generator returns no text. Empty means
	// the locale default.
	Placeholder string
}

var personas = map[string]Persona{
	"companion-hi": {
		Name:        "companion-hi",
		Prefix:      "तुम एक सहायक AI हो। हमेशा हिंदी में उत्तर दो।",
		Locale:      "hi-IN",
		Placeholder: "मुझे समझ नहीं आया।",
	},
	"companion-en": {
		Name:   "companion-en",
		Prefix: "You are a friendly, helpful companion. Keep replies short enough to be spoken aloud.",
		Locale: "en-US",
	},
	"tutor-en": {
		Name:   "tutor-en",
		Prefix: "You are a patient tutor. Answer clearly and briefly, and ask a follow-up question when it helps.",
		Locale: "en-US",
	},
}

// Lookup returns the built-in persona called name.
func Lookup(name string) (Persona, bool) {
	p, ok := personas[name]
	return p, ok
}

// Names returns the built-in persona names, sorted.
func Names() []string {
	names := make([]string, 0, len(personas))
	for n := range personas {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Resolve returns the persona for name, with custom replacing the prefix
// when non-empty. An unknown name with a custom prefix yields an ad-hoc
// persona for locale.
func Resolve(name, custom string, locale types.Locale) (Persona, error) {
	p, ok := Lookup(name)
	custom = strings.TrimSpace(custom)
	switch {
	case ok && custom != "":
		p.Prefix = custom
	case !ok && custom != "":
		p = Persona{Name: name, Prefix: custom}
	case !ok:
		return Persona{}, fmt.Errorf("prompt: unknown persona %q", name)
	}
	if locale != "" {
		if p.Locale != "" && p.Locale.Language() != locale.Language() {
			p.Placeholder = ""
		}
		p.Locale = locale
	}
	if p.Locale == "" {
		p.Locale = types.DefaultLocale
	}
	return p, nil
}

// NameMeaning asks for the meaning of a personal name.
func NameMeaning(name string) string {
	return fmt.Sprintf("What is the meaning of the name: %q?", strings.TrimSpace(name))
}

// Definition asks for a thorough definition of topic.
func Definition(topic string) string {
	return fmt.Sprintf("Provide a detailed definition of '%s', covering all key aspects, subtopics, and related concepts for a comprehensive understanding.", strings.TrimSpace(topic))
}

// Question asks for a new short interview question about definition that
// differs from every entry in asked.
func Question(definition string, asked []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a basic, short and common interview question based on '%s' that has not been asked before.", definition)
	sb.WriteString("\n\nHere is the full history of previous questions:\n")
	for _, q := range asked {
		sb.WriteString("- ")
		sb.WriteString(q)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Evaluate asks whether answer is correct with respect to definition. The
// reply contains [IncorrectMarker] when it is not.
func Evaluate(definition, question, answer string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Evaluate the following: Definition - %s", definition)
	if question != "" {
		fmt.Fprintf(&sb, ", Question - %s", question)
	}
	fmt.Fprintf(&sb, ", User's Answer - %s. ", answer)
	sb.WriteString("If the answer is correct or closely related, respond with 'It is correct.' ")
	fmt.Fprintf(&sb, "If it is incorrect, say '%s' and provide the correct answer.", IncorrectMarker)
	return sb.String()
}

// IsIncorrect reports whether an evaluation reply judged the answer wrong.
func IsIncorrect(evaluation string) bool {
	return strings.Contains(evaluation, IncorrectMarker)
}
