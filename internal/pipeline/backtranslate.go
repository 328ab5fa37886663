package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valpere/moraleval/internal"
	"github.com/valpere/moraleval/internal/markdown"
	"github.com/valpere/moraleval/internal/postprocess"
	"github.com/valpere/moraleval/internal/store"
)

const copyService = "copy"

// BackTranslate translates every current response without a back
// translation into the source language.
func (p *Pipeline) BackTranslate(ctx context.Context) (StageStats, error) {
	stats := StageStats{Stage: internal.StageBackTranslate}
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
		for _, c := range cats {
			for _, lang := range langs {
				results, err := p.store.Results(ctx, store.Filter{Model: model, Category: c.Name, Lang: lang.Code})
				if err != nil {
					return stats, err
				}
				for _, r := range results {
					if err := ctx.Err(); err != nil {
						return stats, err
					}
					if r.BackTranslated {
						stats.Skipped++
						continue
					}
					if _, err := p.backTranslateOne(ctx, lang, r.Response); err != nil {
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

// backTranslateOne stores and returns the source-language text of resp,
// without any reasoning block. Responses in the source language are copied.
func (p *Pipeline) backTranslateOne(ctx context.Context, lang internal.Language, resp internal.Response) (string, error) {
	bt := internal.BackTranslation{ResponseID: resp.ID, CreatedAt: time.Now().UTC()}

	answer := postprocess.StripReasoning(resp.Text)
	if p.manifest.IsSource(lang) {
		bt.Text, bt.Service = answer, copyService
	} else {
		plain := markdown.ToPlainText(answer)
		if plain == "" {
			return "", errors.New("response has no text to translate")
		}
		text, service, err := p.translateText(ctx, plain, lang.Code, p.manifest.SourceLanguage.Code, false)
		if err != nil {
			return "", err
		}
		bt.Text, bt.Service = text, service
	}

	if err := p.store.InsertBackTranslation(ctx, bt); err != nil {
		return "", fmt.Errorf("failed to store back translation: %w", err)
	}
	return bt.Text, nil
}
