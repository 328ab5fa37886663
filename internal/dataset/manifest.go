// Package dataset reads the benchmark layout: prompts per moral category,
// their translations per language and the grading rubrics.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/valpere/moraleval/internal"
)

type Category struct {
	Name   string `yaml:"name" json:"name"`
	Dir    string `yaml:"dir" json:"dir"`
	Rubric string `yaml:"rubric" json:"rubric"`
}

// Manifest describes where prompts, translations and rubrics live. Relative
// paths are resolved against Root, the directory holding the manifest file.
type Manifest struct {
	Root            string              `yaml:"-"`
	SourceLanguage  internal.Language   `yaml:"source_language"`
	PromptsDir      string              `yaml:"prompts_dir"`
	TranslationsDir string              `yaml:"translations_dir"`
	Languages       []internal.Language `yaml:"languages"`
	Categories      []Category          `yaml:"categories"`
}

// DefaultManifest returns the layout of the original benchmark data.
func DefaultManifest() *Manifest {
	return &Manifest{
		Root:            ".",
		SourceLanguage:  internal.Language{Name: "English", Code: "en"},
		PromptsDir:      "questions",
		TranslationsDir: "q_translations",
		Languages: []internal.Language{
			{Name: "Arabic", Code: "ar"},
			{Name: "Chinese", Code: "zh-cn"},
			{Name: "English", Code: "en"},
			{Name: "Hindi", Code: "hi"},
			{Name: "Spanish", Code: "es"},
			{Name: "Swahili", Code: "sw"},
		},
		Categories: []Category{
			{Name: "Biases_Stereotypes", Dir: "Biases_Stereotypes", Rubric: "rubrics/Biases-Rubric.csv"},
			{Name: "Consent_Autonomy", Dir: "Consent_Autonomy", Rubric: "rubrics/Consent-Rubric.csv"},
			{Name: "Harm_Prev", Dir: "Harm_Prevention", Rubric: "rubrics/Safety-Rubric.csv"},
			{Name: "Legality", Dir: "Legality", Rubric: "rubrics/Legality-Rubric.csv"},
			{Name: "Moral_Judgment", Dir: "Moral_Judgment", Rubric: "rubrics/Moral_Judgement-Rubric.csv"},
		},
	}
}

// LoadManifest reads a YAML manifest. Missing fields fall back to
// DefaultManifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	def := DefaultManifest()
	m.Root = filepath.Dir(path)
	if m.SourceLanguage.Code == "" {
		m.SourceLanguage = def.SourceLanguage
	}
	if m.PromptsDir == "" {
		m.PromptsDir = def.PromptsDir
	}
	if m.TranslationsDir == "" {
		m.TranslationsDir = def.TranslationsDir
	}
	if len(m.Languages) == 0 {
		m.Languages = def.Languages
	}
	if len(m.Categories) == 0 {
		m.Categories = def.Categories
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) Validate() error {
	if m.SourceLanguage.Name == "" || m.SourceLanguage.Code == "" {
		return fmt.Errorf("manifest: source language needs a name and a code")
	}

	seen := make(map[string]bool)
	for _, l := range m.Languages {
		if l.Name == "" || l.Code == "" {
			return fmt.Errorf("manifest: language %q needs a name and a code", l.Name+l.Code)
		}
		key := strings.ToLower(l.Code)
		if seen[key] {
			return fmt.Errorf("manifest: duplicate language code %q", l.Code)
		}
		seen[key] = true
	}

	cats := make(map[string]bool)
	for _, c := range m.Categories {
		if c.Name == "" {
			return fmt.Errorf("manifest: category without a name")
		}
		if cats[c.Name] {
			return fmt.Errorf("manifest: duplicate category %q", c.Name)
		}
		cats[c.Name] = true
		if c.Rubric == "" {
			return fmt.Errorf("manifest: category %q has no rubric", c.Name)
		}
	}
	return nil
}

// IsSource reports whether lang is the language prompts are written in.
func (m *Manifest) IsSource(lang internal.Language) bool {
	return strings.EqualFold(lang.Code, m.SourceLanguage.Code)
}

// TargetLanguages returns the languages prompts must be translated into.
func (m *Manifest) TargetLanguages() []internal.Language {
	var out []internal.Language
	for _, l := range m.Languages {
		if !m.IsSource(l) {
			out = append(out, l)
		}
	}
	return out
}

// Language finds a language by name or code, case-insensitively.
func (m *Manifest) Language(nameOrCode string) (internal.Language, bool) {
	for _, l := range m.Languages {
		if strings.EqualFold(l.Name, nameOrCode) || strings.EqualFold(l.Code, nameOrCode) {
			return l, true
		}
	}
	if strings.EqualFold(m.SourceLanguage.Name, nameOrCode) || strings.EqualFold(m.SourceLanguage.Code, nameOrCode) {
		return m.SourceLanguage, true
	}
	return internal.Language{}, false
}

func (m *Manifest) Category(name string) (Category, bool) {
	for _, c := range m.Categories {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Category{}, false
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Root, p)
}

// PromptsPath is <prompts_dir>/<Category>.csv.
func (m *Manifest) PromptsPath(c Category) string {
	return m.resolve(filepath.Join(m.PromptsDir, c.Name+".csv"))
}

// TranslationPath is <translations_dir>/<dir>/<Language>-<Category>.csv.
func (m *Manifest) TranslationPath(c Category, lang internal.Language) string {
	dir := c.Dir
	if dir == "" {
		dir = c.Name
	}
	return m.resolve(filepath.Join(m.TranslationsDir, dir, fmt.Sprintf("%s-%s.csv", lang.Name, c.Name)))
}

func (m *Manifest) RubricPath(c Category) string {
	return m.resolve(c.Rubric)
}
