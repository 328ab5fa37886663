package pipeline

import (
	"context"
	"time"

	"github.com/valpere/moraleval/internal"
	"github.com/valpere/moraleval/internal/scoring"
)

// RoundTrip translates every existing translation back into the source
// language and compares it with the original prompt. Missing translation
// files are skipped; the integrity check reports them.
func (p *Pipeline) RoundTrip(ctx context.Context) ([]internal.RoundTrip, StageStats, error) {
	stats := StageStats{Stage: internal.StageRoundTrip}
	start := time.Now()
	defer func() { p.finish(stats, start) }()

	cats, err := p.categories()
	if err != nil {
		return nil, stats, err
	}
	langs, err := p.targetLanguages()
	if err != nil {
		return nil, stats, err
	}
	source := p.manifest.SourceLanguage

	var rows []internal.RoundTrip
	for _, c := range cats {
		prompts, err := p.manifest.LoadPrompts(c)
		if err != nil {
			return rows, stats, err
		}
		for _, lang := range langs {
			translations, err := p.manifest.LoadTranslations(c, lang, prompts)
			if err != nil {
				p.log.Warn("skipping round trip", "category", c.Name, "lang", lang.Code, "error", err)
				stats.Skipped += len(prompts)
				continue
			}

			for i, t := range translations {
				if err := ctx.Err(); err != nil {
					return rows, stats, err
				}
				back, _, err := p.translateText(ctx, t.Text, lang.Code, source.Code, false)
				if err != nil {
					if ctx.Err() != nil {
						return rows, stats, ctx.Err()
					}
					if ferr := p.fail(ctx, &stats, internal.ItemKey("", lang.Code, t.PromptID), err); ferr != nil {
						return rows, stats, ferr
					}
					continue
				}

				sim := scoring.Similarity(prompts[i].Text, back)
				rows = append(rows, internal.RoundTrip{
					PromptID:   t.PromptID,
					Lang:       lang.Code,
					Original:   prompts[i].Text,
					Translated: t.Text,
					Back:       back,
					Similarity: sim,
					Passed:     sim >= p.config.RoundTripThreshold,
				})
				stats.Processed++
			}
		}
	}
	return rows, stats, nil
}
