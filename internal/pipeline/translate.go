package pipeline

import (
	"context"
	"time"

	"github.com/valpere/moraleval/internal"
)

// Translate creates every missing translation file. A file is written only
// when all of its prompts translated; translated prompts are kept in the
// translation memory, so a re-run only repeats the failed ones.
func (p *Pipeline) Translate(ctx context.Context) (StageStats, error) {
	stats := StageStats{Stage: internal.StageTranslate}
	start := time.Now()
	defer func() { p.finish(stats, start) }()

	cats, err := p.categories()
	if err != nil {
		return stats, err
	}
	langs, err := p.targetLanguages()
	if err != nil {
		return stats, err
	}
	source := p.manifest.SourceLanguage

	for _, c := range cats {
		prompts, err := p.manifest.LoadPrompts(c)
		if err != nil {
			return stats, err
		}

		for _, lang := range langs {
			if p.manifest.HasTranslations(c, lang, prompts) {
				stats.Skipped += len(prompts)
				continue
			}

			p.log.Info("translating", "category", c.Name, "lang", lang.Code, "prompts", len(prompts))
			translations := make([]internal.Translation, 0, len(prompts))
			complete := true
			for _, pr := range prompts {
				if err := ctx.Err(); err != nil {
					return stats, err
				}
				text, service, err := p.translateText(ctx, pr.Text, source.Code, lang.Code, true)
				if err != nil {
					complete = false
					if ferr := p.fail(ctx, &stats, internal.ItemKey("", lang.Code, pr.ID), err); ferr != nil {
						return stats, ferr
					}
					continue
				}
				p.log.Debug("prompt translated", "prompt_id", pr.ID, "lang", lang.Code, "service", service)
				translations = append(translations, internal.Translation{PromptID: pr.ID, Lang: lang.Code, Text: text})
			}

			if !complete {
				p.log.Warn("translation file not written, some prompts failed",
					"category", c.Name, "lang", lang.Code)
				continue
			}
			if err := p.manifest.WriteTranslations(c, lang, prompts, translations); err != nil {
				return stats, err
			}
			stats.Processed += len(translations)
		}
	}
	return stats, nil
}
