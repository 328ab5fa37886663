// Package integrity verifies the benchmark data: one translation per prompt
// and target language, and responses that point at real prompts.
package integrity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valpere/moraleval/internal"
)

type Kind string

const (
	MissingTranslation   Kind = "missing_translation"
	DuplicateTranslation Kind = "duplicate_translation"
	OrphanTranslation    Kind = "translation_unknown_prompt"
	EmptyTranslation     Kind = "empty_translation"
	SourceMismatch       Kind = "translation_source_mismatch"
	OrphanResponse       Kind = "response_unknown_prompt"
	DuplicateResponse    Kind = "duplicate_response"
)

type Issue struct {
	Kind     Kind   `json:"kind"`
	PromptID string `json:"prompt_id"`
	Lang     string `json:"lang,omitempty"`
	Model    string `json:"model,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func (i Issue) String() string {
	parts := []string{string(i.Kind), i.PromptID}
	if i.Lang != "" {
		parts = append(parts, i.Lang)
	}
	if i.Model != "" {
		parts = append(parts, i.Model)
	}
	s := strings.Join(parts, " ")
	if i.Detail != "" {
		s += ": " + i.Detail
	}
	return s
}

type Report struct {
	Prompts      int     `json:"prompts"`
	Translations int     `json:"translations"`
	Responses    int     `json:"responses"`
	Issues       []Issue `json:"issues"`
}

func (r *Report) OK() bool {
	return len(r.Issues) == 0
}

// Counts returns the number of issues of each kind.
func (r *Report) Counts() map[Kind]int {
	counts := make(map[Kind]int)
	for _, i := range r.Issues {
		counts[i.Kind]++
	}
	return counts
}

func (r *Report) add(i Issue) {
	r.Issues = append(r.Issues, i)
}

// Check runs every integrity rule. targetLangs are the languages each prompt
// must be translated into.
func Check(prompts []internal.Prompt, translations []internal.Translation, responses []internal.Response, targetLangs []string) *Report {
	r := &Report{Prompts: len(prompts), Translations: len(translations), Responses: len(responses)}

	known := make(map[string]bool, len(prompts))
	text := make(map[string]string, len(prompts))
	for _, p := range prompts {
		known[p.ID] = true
		text[p.ID] = p.Text
	}

	type tk struct{ prompt, lang string }
	seen := make(map[tk]int)
	for _, t := range translations {
		if !known[t.PromptID] {
			r.add(Issue{Kind: OrphanTranslation, PromptID: t.PromptID, Lang: t.Lang})
			continue
		}
		k := tk{t.PromptID, t.Lang}
		seen[k]++
		if seen[k] == 2 {
			r.add(Issue{Kind: DuplicateTranslation, PromptID: t.PromptID, Lang: t.Lang})
		}
		if strings.TrimSpace(t.Text) == "" {
			r.add(Issue{Kind: EmptyTranslation, PromptID: t.PromptID, Lang: t.Lang})
		}
		// rows are matched to prompts by position, so a source column that
		// disagrees means the file is out of order or stale
		if t.Source != "" && t.Source != text[t.PromptID] {
			r.add(Issue{Kind: SourceMismatch, PromptID: t.PromptID, Lang: t.Lang, Detail: fmt.Sprintf("source %q", t.Source)})
		}
	}
	for _, p := range prompts {
		for _, lang := range targetLangs {
			if seen[tk{p.ID, lang}] == 0 {
				r.add(Issue{Kind: MissingTranslation, PromptID: p.ID, Lang: lang})
			}
		}
	}

	type rk struct {
		prompt, lang, model string
		attempt             int
	}
	attempts := make(map[rk]int)
	for _, resp := range responses {
		if !known[resp.PromptID] {
			r.add(Issue{Kind: OrphanResponse, PromptID: resp.PromptID, Lang: resp.Lang, Model: resp.Model})
			continue
		}
		k := rk{resp.PromptID, resp.Lang, resp.Model, resp.Attempt}
		attempts[k]++
		if attempts[k] == 2 {
			r.add(Issue{
				Kind:     DuplicateResponse,
				PromptID: resp.PromptID,
				Lang:     resp.Lang,
				Model:    resp.Model,
				Detail:   fmt.Sprintf("attempt %d", resp.Attempt),
			})
		}
	}

	sort.SliceStable(r.Issues, func(i, j int) bool {
		a, b := r.Issues[i], r.Issues[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.PromptID != b.PromptID {
			return a.PromptID < b.PromptID
		}
		return a.Lang < b.Lang
	})
	return r
}
