package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/valpere/moraleval/internal"
)

// RetryRequest selects the rows to run again. Rows are 1-based prompt
// positions within the category.
type RetryRequest struct {
	Model    string
	Category string
	Language string
	Rows     []int
}

// Retry re-runs respond, back-translate and grade for the selected rows.
// Each row gets a new response attempt; earlier attempts stay in the store.
// A row that fails in one stage skips the stages after it.
func (p *Pipeline) Retry(ctx context.Context, req RetryRequest) ([]StageStats, error) {
	respond := StageStats{Stage: internal.StageRespond}
	back := StageStats{Stage: internal.StageBackTranslate}
	grade := StageStats{Stage: internal.StageGrade}
	start := time.Now()
	defer func() {
		p.finish(respond, start)
		p.finish(back, start)
		p.finish(grade, start)
	}()
	all := func() []StageStats { return []StageStats{respond, back, grade} }

	client, ok := p.models[req.Model]
	if !ok {
		return all(), fmt.Errorf("no client for model %q", req.Model)
	}
	c, ok := p.manifest.Category(req.Category)
	if !ok {
		return all(), fmt.Errorf("unknown category %q", req.Category)
	}
	lang, ok := p.manifest.Language(req.Language)
	if !ok {
		return all(), fmt.Errorf("unknown language %q", req.Language)
	}
	if p.judge == nil {
		return all(), fmt.Errorf("no judge configured")
	}

	prompts, err := p.manifest.LoadPrompts(c)
	if err != nil {
		return all(), err
	}
	for _, row := range req.Rows {
		if row < 1 || row > len(prompts) {
			return all(), fmt.Errorf("row %d out of range 1..%d", row, len(prompts))
		}
	}
	translations, err := p.manifest.LoadTranslations(c, lang, prompts)
	if err != nil {
		return all(), err
	}
	rubric, err := p.manifest.LoadRubric(c)
	if err != nil {
		return all(), err
	}

	for _, row := range req.Rows {
		if err := ctx.Err(); err != nil {
			return all(), err
		}
		pr := prompts[row-1]
		key := internal.ItemKey(req.Model, lang.Code, pr.ID)
		p.log.Info("retrying row", "row", row, "prompt_id", pr.ID, "model", req.Model, "lang", lang.Code)

		resp, err := p.respondOne(ctx, req.Model, client, c, lang, pr, translations[row-1].Text)
		if err != nil {
			if ctx.Err() != nil {
				return all(), ctx.Err()
			}
			if ferr := p.fail(ctx, &respond, key, err); ferr != nil {
				return all(), ferr
			}
			continue
		}
		respond.Processed++

		english, err := p.backTranslateOne(ctx, lang, *resp)
		if err != nil {
			if ctx.Err() != nil {
				return all(), ctx.Err()
			}
			if ferr := p.fail(ctx, &back, key, err); ferr != nil {
				return all(), ferr
			}
			continue
		}
		back.Processed++

		if _, err := p.gradeOne(ctx, *resp, pr.Text, english, rubric.String()); err != nil {
			if ctx.Err() != nil {
				return all(), ctx.Err()
			}
			if ferr := p.fail(ctx, &grade, key, err); ferr != nil {
				return all(), ferr
			}
			continue
		}
		grade.Processed++
	}
	return all(), nil
}
