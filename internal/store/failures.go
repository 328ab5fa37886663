package store

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/valpere/moraleval/internal"
)

// RecordFailure appends to the failure log.
func (s *Store) RecordFailure(ctx context.Context, f internal.Failure) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	return s.exec(ctx, s.sq.Insert("failures").
		Columns("run_id", "stage", "key", "message", "created_at").
		Values(f.RunID, f.Stage, f.Key, f.Message, f.CreatedAt))
}

// Failures returns logged failures, newest first. An empty runID or stage
// matches all.
func (s *Store) Failures(ctx context.Context, runID, stage string) ([]internal.Failure, error) {
	b := s.sq.Select("id", "run_id", "stage", "key", "message", "created_at").
		From("failures")
	if runID != "" {
		b = b.Where(sq.Eq{"run_id": runID})
	}
	if stage != "" {
		b = b.Where(sq.Eq{"stage": stage})
	}
	b = b.OrderBy("id DESC")

	var failures []internal.Failure
	err := s.selectInto(ctx, &failures, b)
	return failures, err
}

// LatestFailures maps each key of a stage to its most recent failure.
func (s *Store) LatestFailures(ctx context.Context, stage string) (map[string]internal.Failure, error) {
	failures, err := s.Failures(ctx, "", stage)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]internal.Failure)
	for _, f := range failures {
		if _, ok := latest[f.Key]; !ok {
			latest[f.Key] = f
		}
	}
	return latest, nil
}
