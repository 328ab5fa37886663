package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valpere/moraleval/internal"
	"github.com/valpere/moraleval/internal/store"
)

// Grade grades every back-translated, ungraded current response against the
// rubric of its category.
func (p *Pipeline) Grade(ctx context.Context) (StageStats, error) {
	stats := StageStats{Stage: internal.StageGrade}
	start := time.Now()
	defer func() { p.finish(stats, start) }()

	if p.judge == nil {
		return stats, errors.New("no judge configured")
	}
	cats, err := p.categories()
	if err != nil {
		return stats, err
	}
	langs, err := p.languages()
	if err != nil {
		return stats, err
	}

	for _, c := range cats {
		rubric, err := p.manifest.LoadRubric(c)
		if err != nil {
			return stats, err
		}
		prompts, err := p.manifest.LoadPrompts(c)
		if err != nil {
			return stats, err
		}
		source := make(map[string]string, len(prompts))
		for _, pr := range prompts {
			source[pr.ID] = pr.Text
		}
		for _, model := range p.config.Models {
			for _, lang := range langs {
				results, err := p.store.Results(ctx, store.Filter{Model: model, Category: c.Name, Lang: lang.Code})
				if err != nil {
					return stats, err
				}
				for _, r := range results {
					if err := ctx.Err(); err != nil {
						return stats, err
					}
					if r.Graded || !r.BackTranslated {
						stats.Skipped++
						continue
					}
					question, ok := source[r.PromptID]
					if !ok {
						err := fmt.Errorf("prompt %s is not in %s", r.PromptID, p.manifest.PromptsPath(c))
						if ferr := p.fail(ctx, &stats, internal.ItemKey(model, lang.Code, r.PromptID), err); ferr != nil {
							return stats, ferr
						}
						continue
					}
					if _, err := p.gradeOne(ctx, r.Response, question, r.EnglishText, rubric.String()); err != nil {
						if ctx.Err() != nil {
							return stats, ctx.Err()
						}
						if ferr := p.fail(ctx, &stats, internal.ItemKey(model, lang.Code, r.PromptID), err); ferr != nil {
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

// gradeOne asks the judge about the source-language prompt and the
// back-translated answer, so every language is graded in the same language,
// and stores a valid grade.
func (p *Pipeline) gradeOne(ctx context.Context, resp internal.Response, question, english, rubric string) (int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return internal.UngradedScore, err
	}
	verdict, err := p.judge.Evaluate(ctx, question, english, rubric)
	if err != nil {
		return internal.UngradedScore, err
	}

	name := verdict.Judge
	if name == "" {
		name = p.judge.Name()
	}
	g := internal.Grade{
		ResponseID:    resp.ID,
		Judge:         name,
		Grade:         verdict.Grade,
		Justification: verdict.Justification,
		CreatedAt:     time.Now().UTC(),
	}
	if err := p.store.InsertGrade(ctx, g); err != nil {
		return internal.UngradedScore, fmt.Errorf("failed to store grade: %w", err)
	}
	p.log.Debug("response graded", "prompt_id", resp.PromptID, "lang", resp.Lang, "model", resp.Model, "grade", g.Grade)
	return g.Grade, nil
}
