// Package store keeps the harness working state in SQLite: benchmark
// records, the failure log and the translation memory. Benchmark records are
// insert-only.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/moraleval/internal"
)

var (
	// ErrDuplicate is returned when a record with the same key exists.
	ErrDuplicate = errors.New("record already exists")
	ErrNotFound  = errors.New("record not found")
)

type Store struct {
	db *sqlx.DB
	sq sq.StatementBuilderType
}

// Open opens (creating when needed) the database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if err := migrateUp(path); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer, and the run is sequential anyway
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Store{db: db, sq: sq.StatementBuilder}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, b sq.Sqlizer) error {
	_, err := s.execRows(ctx, b)
	return err
}

// execRows runs b and reports how many rows it changed.
func (s *Store) execRows(ctx context.Context, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) selectInto(ctx context.Context, dest any, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return s.db.SelectContext(ctx, dest, query, args...)
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint failed")
}

// CreateRun records the start of a run.
func (s *Store) CreateRun(ctx context.Context, run internal.Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	return s.exec(ctx, s.sq.Insert("runs").
		Columns("id", "env", "started_at").
		Values(run.ID, run.Env, run.StartedAt))
}

// ListRuns returns runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]internal.Run, error) {
	var runs []internal.Run
	err := s.selectInto(ctx, &runs, s.sq.Select("id", "env", "started_at").
		From("runs").
		OrderBy("started_at DESC"))
	return runs, err
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
