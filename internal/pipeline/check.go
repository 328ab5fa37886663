package pipeline

import (
	"context"
	"errors"
	"io/fs"

	"github.com/valpere/moraleval/internal"
	"github.com/valpere/moraleval/internal/dataset"
	"github.com/valpere/moraleval/internal/integrity"
	"github.com/valpere/moraleval/internal/store"
)

// Check runs the integrity checks over the prompts, the translation files
// as they are on disk and every stored response attempt.
func (p *Pipeline) Check(ctx context.Context) (*integrity.Report, error) {
	cats, err := p.categories()
	if err != nil {
		return nil, err
	}
	langs, err := p.targetLanguages()
	if err != nil {
		return nil, err
	}

	var prompts []internal.Prompt
	var translations []internal.Translation
	for _, c := range cats {
		ps, err := p.manifest.LoadPrompts(c)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, ps...)

		for _, lang := range langs {
			rows, err := dataset.ReadTranslationFile(p.manifest.TranslationPath(c, lang), lang)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			translations = append(translations, dataset.MapTranslations(c.Name, rows, lang)...)
		}
	}

	var responses []internal.Response
	for _, c := range cats {
		rs, err := p.store.Responses(ctx, store.Filter{Category: c.Name})
		if err != nil {
			return nil, err
		}
		responses = append(responses, rs...)
	}
	// responses filed under a category that is not in the manifest
	if len(p.config.Categories) == 0 {
		known := make(map[string]bool, len(cats))
		for _, c := range cats {
			known[c.Name] = true
		}
		all, err := p.store.Responses(ctx, store.Filter{})
		if err != nil {
			return nil, err
		}
		for _, r := range all {
			if !known[r.Category] {
				responses = append(responses, r)
			}
		}
	}

	codes := make([]string, len(langs))
	for i, l := range langs {
		codes[i] = l.Code
	}
	report := integrity.Check(prompts, translations, responses, codes)
	p.log.Info("integrity check finished",
		"prompts", report.Prompts,
		"translations", report.Translations,
		"responses", report.Responses,
		"issues", len(report.Issues))
	return report, nil
}
