package dataset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/moraleval/internal"
)

var (
	ErrIncomplete = errors.New("translation file is incomplete")
	ErrMismatch   = errors.New("translation file does not match the prompts")
)

// PromptID is <category>-<NNN> with a 1-based position.
func PromptID(category string, position int) string {
	return fmt.Sprintf("%s-%03d", category, position)
}

// LoadPrompts reads the source-language prompts of one category. The column
// named after the source language is used, or the first column when there is
// no such header. Blank rows are skipped without consuming a position.
func (m *Manifest) LoadPrompts(c Category) ([]internal.Prompt, error) {
	path := m.PromptsPath(c)
	records, err := ReadCSV(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts for %s: %w", c.Name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("prompts file %s is empty", path)
	}

	col := columnIndex(records[0], m.SourceLanguage.Name, 0)

	var prompts []internal.Prompt
	for _, rec := range records[1:] {
		if col >= len(rec) {
			continue
		}
		text := strings.TrimSpace(rec[col])
		if text == "" {
			continue
		}
		pos := len(prompts) + 1
		prompts = append(prompts, internal.Prompt{
			ID:         PromptID(c.Name, pos),
			Text:       text,
			Category:   c.Name,
			SourceLang: m.SourceLanguage.Code,
			Position:   pos,
		})
	}

	if len(prompts) == 0 {
		return nil, fmt.Errorf("prompts file %s has no prompts", path)
	}
	return prompts, nil
}

// LoadAllPrompts loads every category of the manifest, keyed by category name.
func (m *Manifest) LoadAllPrompts() (map[string][]internal.Prompt, error) {
	out := make(map[string][]internal.Prompt, len(m.Categories))
	for _, c := range m.Categories {
		prompts, err := m.LoadPrompts(c)
		if err != nil {
			return nil, err
		}
		out[c.Name] = prompts
	}
	return out, nil
}

func columnIndex(header []string, name string, fallback int) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return fallback
}
