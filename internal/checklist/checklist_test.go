package checklist

import (
	"reflect"
	"testing"

	"github.com/MrWong99/saathi/pkg/types"
)

func assistant(text string) types.Turn { return types.Turn{Role: types.RoleAssistant, Text: text} }
func user(text string) types.Turn      { return types.Turn{Role: types.RoleUser, Text: text} }

func TestObserve_AskedThenAnswered(t *testing.T) {
	t.Parallel()
	c := New([]string{"What is your name?", "Where do you live?", ""})

	if _, total := c.Progress(); total != 2 {
		t.Fatalf("total: want 2 (empty skipped), got %d", total)
	}

	c.Observe(assistant("Hello there! What is your name?"))
	items := c.Items()
	if !items[0].Asked || items[0].Answered {
		t.Fatalf("after question: got %+v", items[0])
	}

	c.Observe(user("Meera"))
	if answered, _ := c.Progress(); answered != 1 {
		t.Errorf("answered: want 1, got %d", answered)
	}
	if got := c.Items()[0].Answer; got != "Meera" {
		t.Errorf("answer: want Meera, got %q", got)
	}
	if got := c.Remaining(); !reflect.DeepEqual(got, []string{"Where do you live?"}) {
		t.Errorf("remaining: got %v", got)
	}
	if c.Complete() {
		t.Error("Complete: want false")
	}

	c.Observe(assistant("Nice to meet you, Meera. Where do you live now?"))
	c.Observe(user("Pune"))
	if !c.Complete() {
		t.Errorf("Complete: want true, items %+v", c.Items())
	}
}

func TestObserve_UserTurnWithoutQuestion(t *testing.T) {
	t.Parallel()
	c := New([]string{"What is your name?"})

	c.Observe(user("hello"))
	c.Observe(assistant("How are you today?"))
	c.Observe(user("fine"))

	if answered, _ := c.Progress(); answered != 0 {
		t.Errorf("answered: want 0, got %d", answered)
	}
	if c.Items()[0].Asked {
		t.Error("unrelated question marked as asked")
	}
}

func TestObserve_Devanagari(t *testing.T) {
	t.Parallel()
	c := New([]string{"आपका नाम क्या है?"})

	c.Observe(assistant("नमस्ते! आपका नाम क्या है?"))
	c.Observe(user("मीरा"))
	if !c.Complete() {
		t.Errorf("Complete: want true, items %+v", c.Items())
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	c := New([]string{"What is your name?"})
	c.Observe(assistant("What is your name?"))
	c.Observe(user("Meera"))
	c.Reset()

	if answered, total := c.Progress(); answered != 0 || total != 1 {
		t.Errorf("progress after reset: got %d/%d", answered, total)
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()
	if got := Similarity("What is your name?", "what is your NAME"); got != 1 {
		t.Errorf("normalised equal: want 1, got %v", got)
	}
	if got := Similarity("", "x"); got != 0 {
		t.Errorf("empty: want 0, got %v", got)
	}
	near := Similarity("What is recursion in programming?", "What is recursion in programing?")
	far := Similarity("What is recursion in programming?", "Name three sorting algorithms.")
	if near < 0.9 || far >= near {
		t.Errorf("similarity ordering: near %v, far %v", near, far)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"  Hello,   World! ": "hello world",
		"आपका नाम क्या है?":  "आपका नाम क्या है",
		"...":                "",
	}
	for in, want := range tests {
		if got := normalize(in); got != want {
			t.Errorf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
