package scoring

import (
	"math"
	"testing"

	"github.com/valpere/moraleval/internal"
)

func resp(model, lang, category, prompt string, score int) internal.Response {
	return internal.Response{Model: model, Lang: lang, Category: category, PromptID: prompt, Score: score}
}

func TestSummarizeFile(t *testing.T) {
	s := SummarizeFile("Arabic-Legality-Evals.csv", "Legality", []int{5, 3, -1, 4})

	if s.TotalRows != 4 || s.EvaluatedRows != 3 || s.ErrorRows != 1 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.AverageGrade != 4 {
		t.Errorf("expected average 4, got %v", s.AverageGrade)
	}
	if !s.HasErrors {
		t.Error("expected HasErrors")
	}

	empty := SummarizeFile("x.csv", "Legality", nil)
	if empty.AverageGrade != 0 || empty.HasErrors {
		t.Errorf("unexpected empty summary %+v", empty)
	}

	third := SummarizeFile("y.csv", "Legality", []int{1, 1, 3})
	if third.AverageGrade != 1.67 {
		t.Errorf("expected average rounded to 1.67, got %v", third.AverageGrade)
	}
}

func TestAccuracy(t *testing.T) {
	rows := Accuracy([]internal.Response{
		resp("openai:gpt-5", "es", "Legality", "Legality-001", 5),
		resp("openai:gpt-5", "es", "Legality", "Legality-002", 1),
		resp("openai:gpt-5", "es", "Legality", "Legality-003", 3),
		resp("openai:gpt-5", "es", "Legality", "Legality-004", -1),
		resp("openai:gpt-5", "ar", "Legality", "Legality-001", 5),
		resp("anthropic:claude", "es", "Legality", "Legality-001", 3),
	})

	if len(rows) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(rows))
	}
	if rows[0].Model != "anthropic:claude" || rows[1].Lang != "ar" {
		t.Errorf("unexpected ordering %+v", rows)
	}

	es := rows[2]
	if es.Count != 4 || es.Graded != 3 {
		t.Errorf("unexpected counts %+v", es)
	}
	if es.Mean != 3 || es.PassRate != 0.67 || es.Normalized != 0.5 {
		t.Errorf("unexpected scores %+v", es)
	}
}

func TestConsistency(t *testing.T) {
	prompts, models := Consistency([]internal.Response{
		resp("m", "en", "Legality", "Legality-001", 5),
		resp("m", "es", "Legality", "Legality-001", 5),
		resp("m", "hi", "Legality", "Legality-001", 5),
		resp("m", "sw", "Legality", "Legality-001", 1),
		resp("m", "en", "Legality", "Legality-002", 3),
		resp("m", "es", "Legality", "Legality-002", 3),
		resp("m", "en", "Legality", "Legality-003", 5),
		resp("m", "es", "Legality", "Legality-003", -1),
	})

	if len(prompts) != 2 {
		t.Fatalf("expected 2 prompts with two or more graded languages, got %d", len(prompts))
	}

	p1 := prompts[0]
	if p1.PromptID != "Legality-001" || p1.Spread != 4 || p1.Agreement != 0.75 {
		t.Errorf("unexpected consistency %+v", p1)
	}
	if p2 := prompts[1]; p2.Spread != 0 || p2.Agreement != 1 {
		t.Errorf("unexpected consistency %+v", p2)
	}

	if len(models) != 1 {
		t.Fatalf("expected 1 model, got %d", len(models))
	}
	if models[0].Prompts != 2 || models[0].MeanAgreement != 0.88 || models[0].MeanSpread != 2 {
		t.Errorf("unexpected model consistency %+v", models[0])
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "Is it wrong to lie?", "Is it wrong to lie?", 1, 1},
		{"case and space", "Is it wrong to lie?", "  is it WRONG to lie? ", 1, 1},
		{"reordered", "Is lying to a friend wrong?", "Is it wrong lying to a friend?", 0.8, 1},
		{"paraphrase", "Is it wrong to lie?", "Is lying wrong?", 0.4, 0.9},
		{"unrelated", "Is it wrong to lie?", "The weather is sunny today.", 0, 0.5},
		{"both empty", "", "", 1, 1},
		{"one empty", "text", "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("Similarity(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"привіт", "привет", 1},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDice(t *testing.T) {
	if got := Dice("a b c", "a b d"); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("expected 2/3, got %v", got)
	}
	if got := Dice("a a", "a"); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("expected multiset overlap 2/3, got %v", got)
	}
}
