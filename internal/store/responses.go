package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/valpere/moraleval/internal"
)

// Filter narrows result queries. Empty fields match everything.
type Filter struct {
	Model     string
	Category  string
	Lang      string
	PromptIDs []string
}

func (f Filter) apply(b sq.SelectBuilder, alias string) sq.SelectBuilder {
	col := func(name string) string { return alias + "." + name }
	if f.Model != "" {
		b = b.Where(sq.Eq{col("model"): f.Model})
	}
	if f.Category != "" {
		b = b.Where(sq.Eq{col("category"): f.Category})
	}
	if f.Lang != "" {
		b = b.Where(sq.Eq{col("lang"): f.Lang})
	}
	if len(f.PromptIDs) > 0 {
		b = b.Where(sq.Eq{col("prompt_id"): f.PromptIDs})
	}
	return b
}

// Result is the current response for a (prompt, language, model) together
// with its back translation and grade, when those exist.
type Result struct {
	internal.Response
	BackTranslated bool   `db:"back_translated"`
	EnglishText    string `db:"english_text"`
	BackService    string `db:"back_service"`
	Graded         bool   `db:"graded"`
	Judge          string `db:"judge"`
	Justification  string `db:"justification"`
}

var responseColumns = []string{
	"id", "run_id", "prompt_id", "category", "lang", "model", "attempt",
	"question", "text", "language_match", "latency_ms", "created_at",
}

// isCurrent keeps only the highest attempt of each (prompt, language,
// model) in a query over "responses r".
const isCurrent = `r.attempt = (SELECT MAX(r2.attempt) FROM responses r2
	WHERE r2.prompt_id = r.prompt_id AND r2.lang = r.lang AND r2.model = r.model)`

func prefixed(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return out
}

// InsertResponse stores a new response. The (prompt, language, model,
// attempt) key must be new.
func (s *Store) InsertResponse(ctx context.Context, r internal.Response) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return s.exec(ctx, s.sq.Insert("responses").
		Columns(responseColumns...).
		Values(r.ID, r.RunID, r.PromptID, r.Category, r.Lang, r.Model, r.Attempt,
			r.Question, r.Text, r.LanguageMatch, r.LatencyMs, r.CreatedAt))
}

// NextAttempt returns the attempt number a new response for the key should
// use: 1 when none exists yet.
func (s *Store) NextAttempt(ctx context.Context, promptID, lang, model string) (int, error) {
	query, args, err := s.sq.Select("COALESCE(MAX(attempt), 0)").
		From("responses").
		Where(sq.Eq{"prompt_id": promptID, "lang": lang, "model": model}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var last int
	if err := s.db.GetContext(ctx, &last, query, args...); err != nil {
		return 0, err
	}
	return last + 1, nil
}

// CurrentResponse returns the latest attempt for the key, or ErrNotFound.
func (s *Store) CurrentResponse(ctx context.Context, promptID, lang, model string) (*internal.Response, error) {
	query, args, err := s.sq.Select(append(prefixed("r", responseColumns), "COALESCE(g.grade, -1) AS score")...).
		From("responses r").
		LeftJoin("grades g ON g.response_id = r.id").
		Where(sq.Eq{"r.prompt_id": promptID, "r.lang": lang, "r.model": model}).
		OrderBy("r.attempt DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var r internal.Response
	if err := s.db.GetContext(ctx, &r, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// Results returns the current responses matching f, ordered by model,
// category, language and prompt.
func (s *Store) Results(ctx context.Context, f Filter) ([]Result, error) {
	cols := append(prefixed("r", responseColumns),
		"COALESCE(g.grade, -1) AS score",
		"bt.response_id IS NOT NULL AS back_translated",
		"COALESCE(bt.text, '') AS english_text",
		"COALESCE(bt.service, '') AS back_service",
		"g.response_id IS NOT NULL AS graded",
		"COALESCE(g.judge, '') AS judge",
		"COALESCE(g.justification, '') AS justification",
	)
	b := s.sq.Select(cols...).
		From("responses r").
		LeftJoin("back_translations bt ON bt.response_id = r.id").
		LeftJoin("grades g ON g.response_id = r.id").
		Where(isCurrent)
	b = f.apply(b, "r").OrderBy("r.model", "r.category", "r.lang", "r.prompt_id")

	var results []Result
	if err := s.selectInto(ctx, &results, b); err != nil {
		return nil, err
	}
	return results, nil
}

// Responses returns every stored attempt matching f, oldest first.
func (s *Store) Responses(ctx context.Context, f Filter) ([]internal.Response, error) {
	b := s.sq.Select(append(prefixed("r", responseColumns), "COALESCE(g.grade, -1) AS score")...).
		From("responses r").
		LeftJoin("grades g ON g.response_id = r.id")
	b = f.apply(b, "r").OrderBy("r.created_at", "r.attempt")

	var responses []internal.Response
	if err := s.selectInto(ctx, &responses, b); err != nil {
		return nil, err
	}
	return responses, nil
}

func (s *Store) InsertBackTranslation(ctx context.Context, bt internal.BackTranslation) error {
	if bt.CreatedAt.IsZero() {
		bt.CreatedAt = time.Now().UTC()
	}
	return s.exec(ctx, s.sq.Insert("back_translations").
		Columns("response_id", "text", "service", "created_at").
		Values(bt.ResponseID, bt.Text, bt.Service, bt.CreatedAt))
}

// InsertGrade stores a valid grade (1..5). Failed evaluations belong in the
// failure log, not here.
func (s *Store) InsertGrade(ctx context.Context, g internal.Grade) error {
	if g.Grade < 1 || g.Grade > 5 {
		return fmt.Errorf("grade %d out of range", g.Grade)
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	return s.exec(ctx, s.sq.Insert("grades").
		Columns("response_id", "judge", "grade", "justification", "created_at").
		Values(g.ResponseID, g.Judge, g.Grade, g.Justification, g.CreatedAt))
}
