package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/saathi/pkg/provider/llm"
	llmmock "github.com/MrWong99/saathi/pkg/provider/llm/mock"
	"github.com/MrWong99/saathi/pkg/types"
)

func genReq() llm.GenerationRequest {
	return llm.GenerationRequest{
		UserTurn: types.Turn{Role: types.RoleUser, Text: "namaste", Sequence: 1},
		Locale:   "hi-IN",
	}
}

func TestGeneratorFallback_PrimarySuccess(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Generator{GeneratorName: "gemini", Reply: &llm.GenerationReply{Text: "from gemini"}}
	secondary := &llmmock.Generator{GeneratorName: "openai", Reply: &llm.GenerationReply{Text: "from openai"}}

	fb := NewGeneratorFallback(primary, FallbackConfig{})
	fb.AddFallback(secondary)

	reply, err := fb.Generate(context.Background(), genReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "from gemini" {
		t.Errorf("text: want from gemini, got %q", reply.Text)
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary calls: want 0, got %d", secondary.CallCount())
	}
	if fb.Name() != "gemini" {
		t.Errorf("Name: want gemini, got %q", fb.Name())
	}
}

func TestGeneratorFallback_FailoverForwardsRequest(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Generator{GeneratorName: "gemini", Err: types.NewError(types.KindTransport, "gemini: generate", nil)}
	secondary := &llmmock.Generator{GeneratorName: "openai", Reply: &llm.GenerationReply{Text: "from openai"}}

	fb := NewGeneratorFallback(primary, FallbackConfig{})
	fb.AddFallback(secondary)

	reply, err := fb.Generate(context.Background(), genReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "from openai" {
		t.Errorf("text: want from openai, got %q", reply.Text)
	}
	got, ok := secondary.LastRequest()
	if !ok || got.UserTurn.Text != "namaste" {
		t.Errorf("secondary request: got %+v", got)
	}
}

func TestGeneratorFallback_KeepsLastErrorKind(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Generator{GeneratorName: "gemini", Err: types.NewError(types.KindTransport, "gemini: generate", nil)}
	secondary := &llmmock.Generator{GeneratorName: "openai", Err: &types.Error{Kind: types.KindService, Op: "openai: generate", StatusCode: 500}}

	fb := NewGeneratorFallback(primary, FallbackConfig{})
	fb.AddFallback(secondary)

	_, err := fb.Generate(context.Background(), genReq())
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("want ErrAllFailed, got %v", err)
	}
	if types.KindOf(err) != types.KindService {
		t.Errorf("kind: want service_error, got %v", types.KindOf(err))
	}
}

func TestGeneratorFallback_AllOpenIsServiceError(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Generator{GeneratorName: "gemini", Err: errors.New("boom")}
	fb := NewGeneratorFallback(primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})

	_, _ = fb.Generate(context.Background(), genReq())
	_, err := fb.Generate(context.Background(), genReq())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("want ErrCircuitOpen, got %v", err)
	}
	if types.KindOf(err) != types.KindService {
		t.Errorf("kind: want service_error, got %v", types.KindOf(err))
	}
	if primary.CallCount() != 1 {
		t.Errorf("primary calls: want 1, got %d", primary.CallCount())
	}
	if s := fb.States(); s[0].State != StateOpen {
		t.Errorf("state: want open, got %v", s[0].State)
	}
}
