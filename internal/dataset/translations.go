package dataset

import (
	"fmt"
	"os"
	"strings"

	"github.com/valpere/moraleval/internal"
)

// TranslationRow is one row of a translation file as stored on disk.
type TranslationRow struct {
	Source string
	Text   string
}

// ReadTranslationFile returns the raw rows of a translation file. The
// translated column is the one named after lang, or the second column.
func ReadTranslationFile(path string, lang internal.Language) ([]TranslationRow, error) {
	records, err := ReadCSV(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	srcCol := 0
	textCol := columnIndex(records[0], lang.Name, 1)

	rows := make([]TranslationRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		var row TranslationRow
		if srcCol < len(rec) {
			row.Source = strings.TrimSpace(rec[srcCol])
		}
		if textCol < len(rec) {
			row.Text = strings.TrimSpace(rec[textCol])
		}
		if row.Source == "" && row.Text == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// MapTranslations assigns rows to prompt ids by position. Rows past the end
// of prompts get ids that match no prompt.
func MapTranslations(category string, rows []TranslationRow, lang internal.Language) []internal.Translation {
	out := make([]internal.Translation, len(rows))
	for i, r := range rows {
		out[i] = internal.Translation{
			PromptID: PromptID(category, i+1),
			Lang:     lang.Code,
			Text:     r.Text,
			Source:   r.Source,
		}
	}
	return out
}

// LoadTranslations returns exactly one translation per prompt. For the source
// language the prompts are their own translations. A file that is missing
// rows, has blank cells or whose source column disagrees with the prompts is
// rejected.
func (m *Manifest) LoadTranslations(c Category, lang internal.Language, prompts []internal.Prompt) ([]internal.Translation, error) {
	if m.IsSource(lang) {
		out := make([]internal.Translation, len(prompts))
		for i, p := range prompts {
			out[i] = internal.Translation{PromptID: p.ID, Lang: lang.Code, Text: p.Text}
		}
		return out, nil
	}

	path := m.TranslationPath(c, lang)
	rows, err := ReadTranslationFile(path, lang)
	if err != nil {
		return nil, err
	}
	if len(rows) != len(prompts) {
		return nil, fmt.Errorf("%s: %w: %d rows for %d prompts", path, ErrIncomplete, len(rows), len(prompts))
	}
	for i, r := range rows {
		if r.Text == "" {
			return nil, fmt.Errorf("%s: %w: row %d is blank", path, ErrIncomplete, i+1)
		}
		if r.Source != "" && r.Source != prompts[i].Text {
			return nil, fmt.Errorf("%s: %w: row %d", path, ErrMismatch, i+1)
		}
	}
	return MapTranslations(c.Name, rows, lang), nil
}

// HasTranslations reports whether a complete translation file exists.
func (m *Manifest) HasTranslations(c Category, lang internal.Language, prompts []internal.Prompt) bool {
	if m.IsSource(lang) {
		return true
	}
	if _, err := os.Stat(m.TranslationPath(c, lang)); err != nil {
		return false
	}
	_, err := m.LoadTranslations(c, lang, prompts)
	return err == nil
}

// WriteTranslations writes a translation file with the header
// <source language>,<language>.
func (m *Manifest) WriteTranslations(c Category, lang internal.Language, prompts []internal.Prompt, translations []internal.Translation) error {
	if len(prompts) != len(translations) {
		return fmt.Errorf("%d translations for %d prompts", len(translations), len(prompts))
	}
	records := make([][]string, 0, len(prompts)+1)
	records = append(records, []string{m.SourceLanguage.Name, lang.Name})
	for i, p := range prompts {
		if translations[i].PromptID != p.ID {
			return fmt.Errorf("translation %d is for %s, expected %s", i+1, translations[i].PromptID, p.ID)
		}
		records = append(records, []string{p.Text, translations[i].Text})
	}
	return WriteCSV(m.TranslationPath(c, lang), records)
}
