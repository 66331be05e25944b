package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/saathi/pkg/provider/llm"
	"github.com/MrWong99/saathi/pkg/types"
)

// TestConvertTurn_User checks that user turns become user messages.
func TestConvertTurn_User(t *testing.T) {
	param := convertTurn(types.Turn{Role: types.RoleUser, Text: "Hello!"})
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

// TestConvertTurn_Assistant checks that assistant turns become assistant messages.
func TestConvertTurn_Assistant(t *testing.T) {
	param := convertTurn(types.Turn{Role: types.RoleAssistant, Text: "Hi there!"})
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
	if !param.OfAssistant.Content.OfString.Valid() || param.OfAssistant.Content.OfString.Value != "Hi there!" {
		t.Errorf("assistant content: want %q", "Hi there!")
	}
}

// TestBuildParams_PersonaAndOrder checks message ordering with a persona.
func TestBuildParams_PersonaAndOrder(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.GenerationRequest{
		History: []types.Turn{
			{Role: types.RoleUser, Text: "a", Sequence: 1},
			{Role: types.RoleAssistant, Text: "b", Sequence: 2},
		},
		UserTurn: types.Turn{Role: types.RoleUser, Text: "c", Sequence: 3},
		Persona:  "Be brief.",
	})
	if len(params.Messages) != 4 {
		t.Fatalf("messages: want 4, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("messages[0]: want system")
	}
	if params.Messages[1].OfUser == nil || params.Messages[2].OfAssistant == nil || params.Messages[3].OfUser == nil {
		t.Error("messages[1:]: want user, assistant, user")
	}
	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model: want gpt-4o-mini, got %s", params.Model)
	}
}

// TestNew_Validation checks constructor argument validation.
func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

// TestGenerate_AgainstFakeServer exercises the HTTP round trip.
func TestGenerate_AgainstFakeServer(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","created":0,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":" hi there "}}]}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	reply, err := p.Generate(context.Background(), llm.GenerationRequest{
		UserTurn: types.Turn{Role: types.RoleUser, Text: "hello", Sequence: 1},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply.Text != "hi there" {
		t.Errorf("text: want %q, got %q", "hi there", reply.Text)
	}
	if !strings.HasSuffix(gotPath, "/chat/completions") {
		t.Errorf("path: got %q", gotPath)
	}
}

// TestGenerate_ServiceError checks that API errors become service errors.
func TestGenerate_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Generate(context.Background(), llm.GenerationRequest{
		UserTurn: types.Turn{Role: types.RoleUser, Text: "hello", Sequence: 1},
	})
	if !errors.Is(err, types.ErrService) {
		t.Fatalf("want ErrService, got %v", err)
	}
	var te *types.Error
	if errors.As(err, &te) && te.StatusCode != http.StatusUnauthorized {
		t.Errorf("status: want 401, got %d", te.StatusCode)
	}
}
