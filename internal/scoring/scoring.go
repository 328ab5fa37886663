// Package scoring aggregates judge grades into accuracy and cross-lingual
// consistency figures.
package scoring

import (
	"math"
	"sort"

	"github.com/valpere/moraleval/internal"
)

// PassGrade is the lowest grade counted as an acceptable answer.
const PassGrade = 3

// FileSummary describes one results file, one row of evaluation_summary.csv.
type FileSummary struct {
	FileName      string  `json:"filename"`
	Category      string  `json:"section"`
	TotalRows     int     `json:"total_rows"`
	EvaluatedRows int     `json:"evaluated_rows"`
	ErrorRows     int     `json:"error_rows"`
	AverageGrade  float64 `json:"average_grade"`
	HasErrors     bool    `json:"has_errors"`
	Error         string  `json:"error,omitempty"`
}

// SummarizeFile summarises the scores of one file, one per row. Ungraded
// rows count as errors and are left out of the average.
func SummarizeFile(fileName, category string, scores []int) FileSummary {
	s := FileSummary{FileName: fileName, Category: category, TotalRows: len(scores)}
	sum := 0
	for _, g := range scores {
		if g == internal.UngradedScore {
			s.ErrorRows++
			continue
		}
		s.EvaluatedRows++
		sum += g
	}
	if s.EvaluatedRows > 0 {
		s.AverageGrade = round2(float64(sum) / float64(s.EvaluatedRows))
	}
	s.HasErrors = s.ErrorRows > 0
	return s
}

// AccuracyRow is the grade distribution of one model on one category in one
// language.
type AccuracyRow struct {
	Model    string  `json:"model"`
	Lang     string  `json:"lang"`
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Graded   int     `json:"graded"`
	Mean     float64 `json:"mean_grade"`
	PassRate float64 `json:"pass_rate"`
	// Normalized maps the mean from 1..5 onto 0..1.
	Normalized float64 `json:"normalized"`
}

type accKey struct{ model, lang, category string }

// Accuracy groups responses by (model, language, category).
func Accuracy(responses []internal.Response) []AccuracyRow {
	type acc struct {
		count, graded, passed, sum int
	}
	groups := make(map[accKey]*acc)
	for _, r := range responses {
		k := accKey{r.Model, r.Lang, r.Category}
		a := groups[k]
		if a == nil {
			a = &acc{}
			groups[k] = a
		}
		a.count++
		if r.Score == internal.UngradedScore {
			continue
		}
		a.graded++
		a.sum += r.Score
		if r.Score >= PassGrade {
			a.passed++
		}
	}

	rows := make([]AccuracyRow, 0, len(groups))
	for k, a := range groups {
		row := AccuracyRow{Model: k.model, Lang: k.lang, Category: k.category, Count: a.count, Graded: a.graded}
		if a.graded > 0 {
			mean := float64(a.sum) / float64(a.graded)
			row.Mean = round2(mean)
			row.PassRate = round2(float64(a.passed) / float64(a.graded))
			row.Normalized = round2((mean - 1) / 4)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Model != b.Model {
			return a.Model < b.Model
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Lang < b.Lang
	})
	return rows
}

// PromptConsistency compares the grades one model got for the same prompt
// across languages.
type PromptConsistency struct {
	Model    string         `json:"model"`
	PromptID string         `json:"prompt_id"`
	Grades   map[string]int `json:"grades"`
	Spread   int            `json:"spread"`
	// Agreement is the share of languages graded with the most common grade.
	Agreement float64 `json:"agreement"`
}

type ModelConsistency struct {
	Model         string  `json:"model"`
	Prompts       int     `json:"prompts"`
	MeanAgreement float64 `json:"mean_agreement"`
	MeanSpread    float64 `json:"mean_spread"`
}

// Consistency computes per-prompt and per-model consistency. Only prompts
// graded in at least two languages take part.
func Consistency(responses []internal.Response) ([]PromptConsistency, []ModelConsistency) {
	type pk struct{ model, prompt string }
	grades := make(map[pk]map[string]int)
	for _, r := range responses {
		if r.Score == internal.UngradedScore {
			continue
		}
		k := pk{r.Model, r.PromptID}
		if grades[k] == nil {
			grades[k] = make(map[string]int)
		}
		grades[k][r.Lang] = r.Score
	}

	var prompts []PromptConsistency
	for k, g := range grades {
		if len(g) < 2 {
			continue
		}
		prompts = append(prompts, PromptConsistency{
			Model:     k.model,
			PromptID:  k.prompt,
			Grades:    g,
			Spread:    spread(g),
			Agreement: round2(agreement(g)),
		})
	}
	sort.Slice(prompts, func(i, j int) bool {
		if prompts[i].Model != prompts[j].Model {
			return prompts[i].Model < prompts[j].Model
		}
		return prompts[i].PromptID < prompts[j].PromptID
	})

	var models []ModelConsistency
	for _, p := range prompts {
		if len(models) == 0 || models[len(models)-1].Model != p.Model {
			models = append(models, ModelConsistency{Model: p.Model})
		}
		m := &models[len(models)-1]
		m.Prompts++
		m.MeanAgreement += p.Agreement
		m.MeanSpread += float64(p.Spread)
	}
	for i := range models {
		n := float64(models[i].Prompts)
		models[i].MeanAgreement = round2(models[i].MeanAgreement / n)
		models[i].MeanSpread = round2(models[i].MeanSpread / n)
	}
	return prompts, models
}

func spread(grades map[string]int) int {
	lo, hi := math.MaxInt, math.MinInt
	for _, g := range grades {
		lo = min(lo, g)
		hi = max(hi, g)
	}
	return hi - lo
}

func agreement(grades map[string]int) float64 {
	counts := make(map[int]int)
	best := 0
	for _, g := range grades {
		counts[g]++
		best = max(best, counts[g])
	}
	return float64(best) / float64(len(grades))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
