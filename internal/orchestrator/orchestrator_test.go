package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valpere/moraleval/internal/translator"
)

type mockService struct {
	nameVal       string
	translateFunc func(ctx context.Context, cfg translator.ServiceConfig, req translator.TranslateRequest) (*translator.ServiceResult, error)
	callCount     atomic.Int32
}

func (m *mockService) Name() string { return m.nameVal }

func (m *mockService) Translate(ctx context.Context, cfg translator.ServiceConfig, req translator.TranslateRequest) (*translator.ServiceResult, error) {
	m.callCount.Add(1)
	if m.translateFunc != nil {
		return m.translateFunc(ctx, cfg, req)
	}
	return &translator.ServiceResult{ServiceName: m.nameVal, TranslatedText: "mock result"}, nil
}

func (m *mockService) IsAvailable(ctx context.Context) error { return nil }

func (m *mockService) SupportedLanguages(ctx context.Context) ([]string, error) {
	return []string{"en", "es"}, nil
}

// stubValidator accepts text only when it equals want.
type stubValidator struct {
	want string
}

func (v stubValidator) IsValid(text, lang string) (bool, error) {
	if text != v.want {
		return false, fmt.Errorf("expected %s text", lang)
	}
	return true, nil
}

var spanishReq = translator.TranslateRequest{
	Text:       "Is it wrong to lie?",
	SourceLang: "en",
	TargetLang: "es",
}

func newTestOrchestrator(services ...translator.TranslationService) *Orchestrator {
	return New(services, OrchestratorConfig{
		Timeout:        5 * time.Second,
		MaxAttempts:    1,
		RetryDelay:     time.Millisecond,
		SkipValidation: true,
	})
}

func TestOrchestrator_New(t *testing.T) {
	o := New([]translator.TranslationService{&mockService{nameVal: "mock1"}}, OrchestratorConfig{
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  100 * time.Millisecond,
		Languages:   []string{"en", "es"},
	})

	if o.validator == nil {
		t.Error("expected validator to be created by default")
	}
	if names := o.Services(); len(names) != 1 || names[0] != "mock1" {
		t.Errorf("unexpected services %v", names)
	}
}

func TestOrchestrator_New_SkipValidation(t *testing.T) {
	o := New([]translator.TranslationService{&mockService{nameVal: "mock1"}}, OrchestratorConfig{SkipValidation: true})

	if o.validator != nil {
		t.Error("expected nil validator when SkipValidation is true")
	}
}

func TestOrchestrator_New_Defaults(t *testing.T) {
	o := New(nil, OrchestratorConfig{SkipValidation: true})

	if o.config.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %d", o.config.MaxAttempts)
	}
	if o.config.RetryDelay <= 0 || o.config.Timeout <= 0 {
		t.Error("expected positive RetryDelay and Timeout")
	}
}

func TestOrchestrator_Execute_FirstServiceWins(t *testing.T) {
	svc1 := &mockService{nameVal: "google"}
	svc2 := &mockService{nameVal: "mymemory"}
	o := newTestOrchestrator(svc1, svc2)

	result := o.Execute(context.Background(), translator.ServiceConfig{}, spanishReq)

	if result.Winner == nil || result.Winner.ServiceName != "google" {
		t.Fatalf("expected google to win, got %+v", result.Winner)
	}
	if result.Succeeded != 1 || result.Failed != 0 {
		t.Errorf("expected 1 succeeded and 0 failed, got %d/%d", result.Succeeded, result.Failed)
	}
	if svc2.callCount.Load() != 0 {
		t.Error("fallback service should not be called after a success")
	}
}

func TestOrchestrator_Execute_FallsBack(t *testing.T) {
	svc1 := &mockService{
		nameVal: "google",
		translateFunc: func(ctx context.Context, cfg translator.ServiceConfig, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			return nil, errors.New("quota exceeded")
		},
	}
	svc2 := &mockService{nameVal: "mymemory"}
	o := newTestOrchestrator(svc1, svc2)

	result := o.Execute(context.Background(), translator.ServiceConfig{}, spanishReq)

	if result.Winner == nil || result.Winner.ServiceName != "mymemory" {
		t.Fatalf("expected mymemory to win, got %+v", result.Winner)
	}
	if result.Failed != 1 || len(result.Errors) != 1 {
		t.Errorf("expected one recorded failure, got %d (%v)", result.Failed, result.Errors)
	}
}

func TestOrchestrator_Execute_WithRetry(t *testing.T) {
	callCount := atomic.Int32{}
	svc := &mockService{
		nameVal: "retryable",
		translateFunc: func(ctx context.Context, cfg translator.ServiceConfig, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			if callCount.Add(1) < 3 {
				return &translator.ServiceResult{ServiceName: "retryable", Error: "temporary failure"}, nil
			}
			return &translator.ServiceResult{ServiceName: "retryable", TranslatedText: "success on 3rd attempt"}, nil
		},
	}

	o := New([]translator.TranslationService{svc}, OrchestratorConfig{
		Timeout:        5 * time.Second,
		MaxAttempts:    3,
		RetryDelay:     time.Millisecond,
		SkipValidation: true,
	})

	result := o.Execute(context.Background(), translator.ServiceConfig{}, spanishReq)

	if result.Succeeded != 1 {
		t.Errorf("expected 1 succeeded after retry, got %d", result.Succeeded)
	}
	if svc.callCount.Load() != 3 {
		t.Errorf("expected 3 calls (1 initial + 2 retries), got %d", svc.callCount.Load())
	}
}

func TestOrchestrator_Execute_EmptyTextIsFailure(t *testing.T) {
	svc := &mockService{
		nameVal: "blank",
		translateFunc: func(ctx context.Context, cfg translator.ServiceConfig, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			return &translator.ServiceResult{ServiceName: "blank"}, nil
		},
	}
	o := newTestOrchestrator(svc)

	result := o.Execute(context.Background(), translator.ServiceConfig{}, spanishReq)

	if result.Winner != nil {
		t.Error("empty text must not win")
	}
}

func TestOrchestrator_Execute_Timeout(t *testing.T) {
	svc := &mockService{
		nameVal: "slow",
		translateFunc: func(ctx context.Context, cfg translator.ServiceConfig, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	o := New([]translator.TranslationService{svc}, OrchestratorConfig{
		Timeout:        20 * time.Millisecond,
		MaxAttempts:    1,
		SkipValidation: true,
	})

	result := o.Execute(context.Background(), translator.ServiceConfig{}, spanishReq)

	if result.Winner != nil || len(result.Errors) != 1 {
		t.Fatalf("expected a single timeout error, got %+v", result)
	}
	if !errors.Is(result.Errors[0], context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", result.Errors[0])
	}
}

func TestOrchestrator_Execute_Cancelled(t *testing.T) {
	svc := &mockService{nameVal: "never"}
	o := newTestOrchestrator(svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := o.Execute(ctx, translator.ServiceConfig{}, spanishReq)

	if result.Winner != nil {
		t.Error("expected no winner on a cancelled context")
	}
	if svc.callCount.Load() != 0 {
		t.Error("service should not be called after cancellation")
	}
}

func TestOrchestrator_Execute_ValidationFailureFallsBack(t *testing.T) {
	bad := &mockService{
		nameVal: "bad-translator",
		translateFunc: func(ctx context.Context, cfg translator.ServiceConfig, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			return &translator.ServiceResult{ServiceName: "bad-translator", TranslatedText: "Is it wrong to lie?"}, nil
		},
	}
	good := &mockService{
		nameVal: "good-translator",
		translateFunc: func(ctx context.Context, cfg translator.ServiceConfig, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			return &translator.ServiceResult{ServiceName: "good-translator", TranslatedText: "¿Está mal mentir?"}, nil
		},
	}

	o := newTestOrchestrator(bad, good)
	o.config.MaxAttempts = 2
	o.validator = stubValidator{want: "¿Está mal mentir?"}

	result := o.Execute(context.Background(), translator.ServiceConfig{}, spanishReq)

	if result.Winner == nil || result.Winner.ServiceName != "good-translator" {
		t.Fatalf("expected good-translator to win, got %+v", result.Winner)
	}
	if bad.callCount.Load() != 1 {
		t.Errorf("a translation that fails validation must not be retried, got %d calls", bad.callCount.Load())
	}
	if good.callCount.Load() != 1 {
		t.Errorf("expected one call to the next service, got %d", good.callCount.Load())
	}
	if len(result.Results) != 2 || len(result.Errors) != 1 {
		t.Errorf("expected both texts kept and one validation error, got %d results %v", len(result.Results), result.Errors)
	}
}

func TestOrchestrator_ExecuteWithFallback(t *testing.T) {
	o := newTestOrchestrator(&mockService{nameVal: "mock"})

	result, err := o.ExecuteWithFallback(context.Background(), translator.ServiceConfig{}, spanishReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ServiceName != "mock" {
		t.Errorf("expected mock service name, got %s", result.ServiceName)
	}
}

func TestOrchestrator_ExecuteWithFallback_AllFailed(t *testing.T) {
	svc := &mockService{
		nameVal: "failing",
		translateFunc: func(ctx context.Context, cfg translator.ServiceConfig, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			return nil, errors.New("always fails")
		},
	}
	o := newTestOrchestrator(svc)

	result, err := o.ExecuteWithFallback(context.Background(), translator.ServiceConfig{}, spanishReq)
	if result != nil || err == nil {
		t.Errorf("expected nil result and an error, got %v, %v", result, err)
	}

	if _, err := newTestOrchestrator().ExecuteWithFallback(context.Background(), translator.ServiceConfig{}, spanishReq); err == nil {
		t.Error("expected error with no services")
	}
}
