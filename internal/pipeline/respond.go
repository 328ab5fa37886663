package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/moraleval/internal"
	"github.com/valpere/moraleval/internal/dataset"
	"github.com/valpere/moraleval/internal/llm"
	"github.com/valpere/moraleval/internal/store"
)

const respondSystemPrompt = "You are an AI assistant. Answer the following question clearly and concisely in %s."

// Respond asks every model every translated prompt that has no response yet.
func (p *Pipeline) Respond(ctx context.Context) (StageStats, error) {
	stats := StageStats{Stage: internal.StageRespond}
	start := time.Now()
	defer func() { p.finish(stats, start) }()

	cats, err := p.categories()
	if err != nil {
		return stats, err
	}
	langs, err := p.languages()
	if err != nil {
		return stats, err
	}

	for _, model := range p.config.Models {
		if _, ok := p.models[model]; !ok {
			return stats, fmt.Errorf("no client for model %q", model)
		}
	}

	for _, model := range p.config.Models {
		client := p.models[model]
		for _, c := range cats {
			prompts, err := p.manifest.LoadPrompts(c)
			if err != nil {
				return stats, err
			}
			for _, lang := range langs {
				translations, err := p.manifest.LoadTranslations(c, lang, prompts)
				if err != nil {
					p.log.Warn("no usable translations",
						"model", model, "category", c.Name, "lang", lang.Code, "error", err)
					for _, pr := range prompts {
						if ferr := p.fail(ctx, &stats, internal.ItemKey(model, lang.Code, pr.ID), err); ferr != nil {
							return stats, ferr
						}
					}
					continue
				}

				for i, pr := range prompts {
					if err := ctx.Err(); err != nil {
						return stats, err
					}
					_, err := p.store.CurrentResponse(ctx, pr.ID, lang.Code, model)
					if err == nil {
						stats.Skipped++
						continue
					}
					if !errors.Is(err, store.ErrNotFound) {
						return stats, err
					}

					if _, err := p.respondOne(ctx, model, client, c, lang, pr, translations[i].Text); err != nil {
						if ctx.Err() != nil {
							return stats, ctx.Err()
						}
						if ferr := p.fail(ctx, &stats, internal.ItemKey(model, lang.Code, pr.ID), err); ferr != nil {
							return stats, ferr
						}
						continue
					}
					stats.Processed++
				}
			}
		}
	}
	return stats, nil
}

// respondOne sends question to the model, retrying failed calls, and stores
// the answer as the next attempt for the prompt.
func (p *Pipeline) respondOne(ctx context.Context, model string, client llm.Client, c dataset.Category,
	lang internal.Language, pr internal.Prompt, question string) (*internal.Response, error) {

	req := llm.Request{
		System:      fmt.Sprintf(respondSystemPrompt, lang.Name),
		Prompt:      question,
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
	}

	var completion *llm.Completion
	var lastErr error
	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, p.config.RetryDelay); err != nil {
				return nil, err
			}
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		completion, lastErr = client.Complete(ctx, req)
		if lastErr == nil {
			break
		}
		p.log.Warn("model call failed",
			"model", model, "prompt_id", pr.ID, "lang", lang.Code, "attempt", attempt, "error", lastErr)

		var apiErr *llm.APIError
		if errors.As(lastErr, &apiErr) && !apiErr.Retryable() {
			break
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	match := true
	if p.validator != nil {
		if ok, err := p.validator.IsValid(completion.Text, lang.Code); !ok {
			match = false
			p.log.Warn("response not in prompt language",
				"model", model, "prompt_id", pr.ID, "lang", lang.Code, "error", err)
		}
	}

	attempt, err := p.store.NextAttempt(ctx, pr.ID, lang.Code, model)
	if err != nil {
		return nil, err
	}
	resp := internal.Response{
		ID:            uuid.NewString(),
		RunID:         p.runID,
		PromptID:      pr.ID,
		Category:      c.Name,
		Lang:          lang.Code,
		Model:         model,
		Attempt:       attempt,
		Question:      question,
		Text:          completion.Text,
		LanguageMatch: match,
		LatencyMs:     completion.Latency.Milliseconds(),
		Score:         internal.UngradedScore,
		CreatedAt:     time.Now().UTC(),
	}
	if err := p.store.InsertResponse(ctx, resp); err != nil {
		return nil, fmt.Errorf("failed to store response: %w", err)
	}
	return &resp, nil
}
