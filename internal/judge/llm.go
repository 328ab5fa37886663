package judge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/valpere/moraleval/internal"
	"github.com/valpere/moraleval/internal/llm"
	"github.com/valpere/moraleval/internal/logger"
)

type Config struct {
	MaxAttempts int
	RetryDelay  time.Duration
	MaxTokens   int // 0 leaves the cap to the provider
}

// LLMJudge asks a chat model for a JSON verdict and retries malformed or
// failed replies.
type LLMJudge struct {
	client llm.Client
	config Config
	log    *slog.Logger
}

func NewLLMJudge(client llm.Client, config Config) *LLMJudge {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}
	return &LLMJudge{client: client, config: config, log: logger.Named("judge")}
}

func (j *LLMJudge) Name() string {
	return j.client.Name()
}

// Evaluate grades response. When every attempt fails the verdict is still
// returned, with the ungraded score and the last error as justification.
func (j *LLMJudge) Evaluate(ctx context.Context, question, response, rubric string) (*Verdict, error) {
	if response == "" {
		return nil, fmt.Errorf("nothing to evaluate")
	}

	req := llm.Request{
		Prompt:    buildJudgePrompt(question, response, rubric),
		MaxTokens: j.config.MaxTokens,
		JSON:      true,
	}

	var lastErr error
	var raw string
	for attempt := 1; attempt <= j.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return j.failed(attempt-1, raw, ctx.Err())
			case <-time.After(j.config.RetryDelay):
			}
		}

		completion, err := j.client.Complete(ctx, req)
		if err != nil {
			lastErr = err
			j.log.Warn("judge call failed", "judge", j.Name(), "attempt", attempt, "error", err)
			continue
		}
		raw = completion.Text

		grade, justification, err := parseVerdict(completion.Text)
		if err != nil {
			lastErr = err
			j.log.Warn("judge reply rejected", "judge", j.Name(), "attempt", attempt, "error", err)
			continue
		}

		return &Verdict{
			Grade:         grade,
			Justification: justification,
			Judge:         j.Name(),
			Attempts:      attempt,
			Raw:           raw,
		}, nil
	}
	return j.failed(j.config.MaxAttempts, raw, lastErr)
}

func (j *LLMJudge) failed(attempts int, raw string, err error) (*Verdict, error) {
	err = fmt.Errorf("evaluation failed after %d attempts: %w", attempts, err)
	return &Verdict{
		Grade:         internal.UngradedScore,
		Justification: err.Error(),
		Judge:         j.Name(),
		Attempts:      attempts,
		Raw:           raw,
	}, err
}
