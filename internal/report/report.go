// Package report renders stored benchmark results as flat files: one
// evaluation CSV per model, category and language plus the aggregate
// summary, accuracy, consistency and round-trip tables.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/valpere/moraleval/internal"
	"github.com/valpere/moraleval/internal/dataset"
	"github.com/valpere/moraleval/internal/logger"
	"github.com/valpere/moraleval/internal/scoring"
	"github.com/valpere/moraleval/internal/store"
)

const (
	SummaryFile     = "evaluation_summary.csv"
	AccuracyFile    = "accuracy.csv"
	ConsistencyFile = "consistency.csv"
	ResultsFile     = "results.json"
	RoundTripFile   = "roundtrip.csv"
)

// EvalsHeader is the column layout of every evaluation file.
var EvalsHeader = []string{
	"File Name", "Original Question", "Question Sent to Model", "Model Response",
	"English Translation", "Grade", "Justification",
}

// Source is the part of the store a report reads.
type Source interface {
	Results(ctx context.Context, f store.Filter) ([]store.Result, error)
	LatestFailures(ctx context.Context, stage string) (map[string]internal.Failure, error)
}

// Options controls one report.
type Options struct {
	Dir       string
	Models    []string
	RoundTrip []internal.RoundTrip
}

// Summary is the content of results.json.
type Summary struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	Files       []scoring.FileSummary       `json:"files"`
	Accuracy    []scoring.AccuracyRow       `json:"accuracy"`
	Consistency []scoring.PromptConsistency `json:"consistency"`
	Models      []scoring.ModelConsistency  `json:"models"`
	RoundTrip   []internal.RoundTrip        `json:"round_trip,omitempty"`
}

type Generator struct {
	source   Source
	manifest *dataset.Manifest
	log      *slog.Logger
}

func New(source Source, manifest *dataset.Manifest) *Generator {
	return &Generator{
		source:   source,
		manifest: manifest,
		log:      logger.Named("report"),
	}
}

// ModelDir turns a provider:model spec into a directory name.
func ModelDir(model string) string {
	return strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(model)
}

// EvalsPath is <dir>/<model>/<category dir>/<Language>-<Category>-Evals.csv.
func EvalsPath(dir, model string, c dataset.Category, lang internal.Language) string {
	catDir := c.Dir
	if catDir == "" {
		catDir = c.Name
	}
	return filepath.Join(dir, ModelDir(model), catDir, fmt.Sprintf("%s-%s-Evals.csv", lang.Name, c.Name))
}

// failureLog holds the latest failure per item for the stages a results
// row can show.
type failureLog struct {
	respond, back, grade map[string]internal.Failure
}

func (g *Generator) loadFailures(ctx context.Context) (*failureLog, error) {
	var fl failureLog
	var err error
	if fl.respond, err = g.source.LatestFailures(ctx, internal.StageRespond); err != nil {
		return nil, err
	}
	if fl.back, err = g.source.LatestFailures(ctx, internal.StageBackTranslate); err != nil {
		return nil, err
	}
	if fl.grade, err = g.source.LatestFailures(ctx, internal.StageGrade); err != nil {
		return nil, err
	}
	return &fl, nil
}

// Generate writes every output file under opts.Dir and returns what went
// into results.json.
func (g *Generator) Generate(ctx context.Context, opts Options) (*Summary, error) {
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results dir: %w", err)
	}

	failures, err := g.loadFailures(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load failures: %w", err)
	}

	summary := &Summary{GeneratedAt: time.Now().UTC(), RoundTrip: opts.RoundTrip}
	var responses []internal.Response

	for _, c := range g.manifest.Categories {
		prompts, err := g.manifest.LoadPrompts(c)
		if err != nil {
			return nil, err
		}
		for _, model := range opts.Models {
			for _, lang := range g.manifest.Languages {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				fs, rs, err := g.writeEvals(ctx, opts.Dir, model, c, lang, prompts, failures)
				if err != nil {
					return nil, err
				}
				if fs != nil {
					summary.Files = append(summary.Files, *fs)
				}
				responses = append(responses, rs...)
			}
		}
	}

	summary.Accuracy = scoring.Accuracy(responses)
	summary.Consistency, summary.Models = scoring.Consistency(responses)

	if err := writeSummary(filepath.Join(opts.Dir, SummaryFile), summary.Files); err != nil {
		return nil, err
	}
	if err := writeAccuracy(filepath.Join(opts.Dir, AccuracyFile), summary.Accuracy); err != nil {
		return nil, err
	}
	if err := writeConsistency(filepath.Join(opts.Dir, ConsistencyFile), g.languageOrder(summary.Consistency), summary.Consistency); err != nil {
		return nil, err
	}
	if len(opts.RoundTrip) > 0 {
		if err := WriteRoundTrip(filepath.Join(opts.Dir, RoundTripFile), opts.RoundTrip); err != nil {
			return nil, err
		}
	}
	if err := writeJSON(filepath.Join(opts.Dir, ResultsFile), summary); err != nil {
		return nil, err
	}

	g.log.Info("report written",
		"dir", opts.Dir,
		"files", len(summary.Files),
		"responses", len(responses))
	return summary, nil
}

// writeEvals writes one evaluation file. Rows with neither a response nor
// a logged failure are still pending and left out; a file with no rows is
// not written.
func (g *Generator) writeEvals(ctx context.Context, dir, model string, c dataset.Category, lang internal.Language,
	prompts []internal.Prompt, failures *failureLog) (*scoring.FileSummary, []internal.Response, error) {

	results, err := g.source.Results(ctx, store.Filter{Model: model, Category: c.Name, Lang: lang.Code})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load results for %s/%s/%s: %w", model, c.Name, lang.Code, err)
	}
	byPrompt := make(map[string]store.Result, len(results))
	for _, r := range results {
		byPrompt[r.PromptID] = r
	}

	questions := make(map[string]string, len(prompts))
	if translations, err := g.manifest.LoadTranslations(c, lang, prompts); err == nil {
		for _, t := range translations {
			questions[t.PromptID] = t.Text
		}
	}

	fileName := fmt.Sprintf("%s-%s.csv", lang.Name, c.Name)
	records := [][]string{EvalsHeader}
	var scores []int
	var responses []internal.Response

	for _, p := range prompts {
		key := internal.ItemKey(model, lang.Code, p.ID)
		r, ok := byPrompt[p.ID]
		if !ok {
			f, failed := failures.respond[key]
			if !failed {
				continue
			}
			records = append(records, []string{
				fileName, p.Text, questions[p.ID],
				"[API_ERROR: " + f.Message + "]", "",
				strconv.Itoa(internal.UngradedScore), "Error: " + f.Message,
			})
			scores = append(scores, internal.UngradedScore)
			continue
		}

		question := r.Question
		if question == "" {
			question = questions[p.ID]
		}

		english := r.EnglishText
		if !r.BackTranslated {
			if f, failed := failedSince(failures.back, key, r.CreatedAt); failed {
				english = "[Translation Error: " + f.Message + "]"
			}
		}

		grade, justification := "", ""
		if r.Graded {
			grade, justification = strconv.Itoa(r.Score), r.Justification
		} else if f, failed := failedSince(failures.grade, key, r.CreatedAt); failed {
			grade, justification = strconv.Itoa(internal.UngradedScore), "Error: "+f.Message
		}

		records = append(records, []string{
			fileName, p.Text, question, r.Text, english, grade, justification,
		})
		scores = append(scores, r.Score)
		responses = append(responses, r.Response)
	}

	if len(records) == 1 {
		return nil, nil, nil
	}

	path := EvalsPath(dir, model, c, lang)
	if err := dataset.WriteCSV(path, records); err != nil {
		return nil, nil, fmt.Errorf("failed to write %s: %w", path, err)
	}

	rel, err := filepath.Rel(dir, path)
	if err != nil {
		rel = path
	}
	fs := scoring.SummarizeFile(filepath.ToSlash(rel), c.Name, scores)
	return &fs, responses, nil
}

// failedSince returns the failure logged for key, unless it predates the
// response it would be shown against.
func failedSince(failures map[string]internal.Failure, key string, since time.Time) (internal.Failure, bool) {
	f, ok := failures[key]
	if !ok || f.CreatedAt.Before(since) {
		return internal.Failure{}, false
	}
	return f, true
}

func writeSummary(path string, files []scoring.FileSummary) error {
	records := [][]string{{
		"filename", "section", "total_rows", "evaluated_rows", "error_rows",
		"average_grade", "has_errors", "error",
	}}
	for _, f := range files {
		records = append(records, []string{
			f.FileName, f.Category,
			strconv.Itoa(f.TotalRows), strconv.Itoa(f.EvaluatedRows), strconv.Itoa(f.ErrorRows),
			formatFloat(f.AverageGrade), strconv.FormatBool(f.HasErrors), f.Error,
		})
	}
	return dataset.WriteCSV(path, records)
}

func writeAccuracy(path string, rows []scoring.AccuracyRow) error {
	records := [][]string{{
		"model", "category", "lang", "count", "graded", "mean_grade", "pass_rate", "normalized",
	}}
	for _, r := range rows {
		records = append(records, []string{
			r.Model, r.Category, r.Lang,
			strconv.Itoa(r.Count), strconv.Itoa(r.Graded),
			formatFloat(r.Mean), formatFloat(r.PassRate), formatFloat(r.Normalized),
		})
	}
	return dataset.WriteCSV(path, records)
}

// languageOrder lists the language codes graded in rows, manifest languages
// first in manifest order.
func (g *Generator) languageOrder(rows []scoring.PromptConsistency) []string {
	seen := make(map[string]bool)
	for _, r := range rows {
		for lang := range r.Grades {
			seen[lang] = true
		}
	}
	var langs []string
	for _, l := range g.manifest.Languages {
		if seen[l.Code] {
			langs = append(langs, l.Code)
			delete(seen, l.Code)
		}
	}
	return append(langs, slices.Sorted(maps.Keys(seen))...)
}

// writeConsistency writes one row per (model, prompt) with a grade column
// per language.
func writeConsistency(path string, langs []string, rows []scoring.PromptConsistency) error {
	header := append([]string{"model", "prompt_id"}, langs...)
	header = append(header, "spread", "agreement")
	records := [][]string{header}
	for _, r := range rows {
		rec := []string{r.Model, r.PromptID}
		for _, lang := range langs {
			if g, ok := r.Grades[lang]; ok {
				rec = append(rec, strconv.Itoa(g))
			} else {
				rec = append(rec, "")
			}
		}
		rec = append(rec, strconv.Itoa(r.Spread), formatFloat(r.Agreement))
		records = append(records, rec)
	}
	return dataset.WriteCSV(path, records)
}

// WriteRoundTrip writes the round-trip check results.
func WriteRoundTrip(path string, rows []internal.RoundTrip) error {
	records := [][]string{{
		"prompt_id", "lang", "original", "translated", "back", "similarity", "passed",
	}}
	for _, r := range rows {
		records = append(records, []string{
			r.PromptID, r.Lang, r.Original, r.Translated, r.Back,
			formatFloat(r.Similarity), strconv.FormatBool(r.Passed),
		})
	}
	return dataset.WriteCSV(path, records)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
