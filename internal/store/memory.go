package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// MemoryEntry is a row from the translation_memory table.
type MemoryEntry struct {
	ID          string    `db:"id"`
	SourceText  string    `db:"source_text"`
	SourceLang  string    `db:"source_lang"`
	TargetLang  string    `db:"target_lang"`
	FinalText   string    `db:"final_text"`
	ServiceUsed string    `db:"service_used"`
	UsageCount  int       `db:"usage_count"`
	Invalidated bool      `db:"invalidated"`
	LastUsed    time.Time `db:"last_used"`
}

// CacheStats summarises translation memory usage.
type CacheStats struct {
	TotalEntries   int `db:"total_entries"`
	ActiveEntries  int `db:"active_entries"`
	InvalidEntries int `db:"invalid_entries"`
	TotalUsage     int `db:"total_usage"`
}

// GetCachedTranslation looks up a previous translation of sourceText. Hits
// bump the usage counter; invalidated entries are misses.
func (s *Store) GetCachedTranslation(ctx context.Context, sourceText, sourceLang, targetLang string) (string, bool, error) {
	key := sq.Eq{
		"source_text": normalizeText(sourceText),
		"source_lang": sourceLang,
		"target_lang": targetLang,
	}

	query, args, err := s.sq.Select("final_text", "invalidated").
		From("translation_memory").
		Where(key).
		ToSql()
	if err != nil {
		return "", false, err
	}

	var row struct {
		FinalText   string `db:"final_text"`
		Invalidated bool   `db:"invalidated"`
	}
	err = s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if row.Invalidated {
		return "", false, nil
	}

	err = s.exec(ctx, s.sq.Update("translation_memory").
		Set("usage_count", sq.Expr("usage_count + 1")).
		Set("last_used", time.Now().UTC()).
		Where(key))
	return row.FinalText, true, err
}

// SaveToMemory stores or replaces the translation of sourceText.
func (s *Store) SaveToMemory(ctx context.Context, sourceText, sourceLang, targetLang, finalText, serviceUsed string) error {
	now := time.Now().UTC()
	return s.exec(ctx, s.sq.Insert("translation_memory").
		Columns("id", "source_text", "source_lang", "target_lang", "final_text", "service_used",
			"usage_count", "invalidated", "last_used", "created_at").
		Values(uuid.NewString(), normalizeText(sourceText), sourceLang, targetLang, finalText, serviceUsed,
			1, false, now, now).
		Suffix(`ON CONFLICT(source_text, source_lang, target_lang) DO UPDATE SET
			final_text = excluded.final_text,
			service_used = excluded.service_used,
			invalidated = FALSE,
			last_used = excluded.last_used`))
}

// InvalidateMemory hides a translation memory entry from lookups. It returns
// ErrNotFound when no entry has the ID.
func (s *Store) InvalidateMemory(ctx context.Context, id string) error {
	n, err := s.execRows(ctx, s.sq.Update("translation_memory").
		Set("invalidated", true).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("memory entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteMemory permanently removes a translation memory entry by ID. It
// returns ErrNotFound when no entry has the ID.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	n, err := s.execRows(ctx, s.sq.Delete("translation_memory").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("memory entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// ClearMemory removes all translation memory entries.
func (s *Store) ClearMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translation_memory`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMemory returns translation memory entries ordered by most recently
// used. An empty targetLang lists every language.
func (s *Store) ListMemory(ctx context.Context, targetLang string) ([]MemoryEntry, error) {
	b := s.sq.Select("id", "source_text", "source_lang", "target_lang", "final_text",
		"service_used", "usage_count", "invalidated", "last_used").
		From("translation_memory")
	if targetLang != "" {
		b = b.Where(sq.Eq{"target_lang": targetLang})
	}
	b = b.OrderBy("last_used DESC")

	var entries []MemoryEntry
	err := s.selectInto(ctx, &entries, b)
	return entries, err
}

// Stats returns summary statistics for the translation memory.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}
	err := s.db.GetContext(ctx, stats, `
		SELECT
			COUNT(*) AS total_entries,
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0) AS active_entries,
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0) AS invalid_entries,
			COALESCE(SUM(usage_count), 0) AS total_usage
		FROM translation_memory`)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
