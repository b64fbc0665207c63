package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/lrsweek/internal/xapi"
)

// Run identifies one fetch from the LRS. CompletedAt is zero until the
// fetch has stored every page and profile.
type Run struct {
	ID          string
	StartedAt   time.Time
	Source      string
	CompletedAt time.Time
}

// Completed reports whether the run finished.
func (r Run) Completed() bool {
	return !r.CompletedAt.IsZero()
}

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, source)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Source,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// CompleteRun marks a run as finished. It is the last write of a fetch.
func (s *Store) CompleteRun(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET completed_at = ?
		WHERE id = ? AND completed_at IS NULL
	`, at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("complete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("complete run %s: not found or already complete", id)
	}
	return nil
}

// WriteStatements inserts a page of statements in one transaction. firstSeq
// is the stream position of stmts[0].
//
// Note: The run must exist (foreign key constraint).
func (s *Store) WriteStatements(ctx context.Context, runID string, firstSeq int64, stmts []xapi.Statement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write statements: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO statements (run_id, seq, body)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write statements: prepare: %w", err)
	}
	defer insert.Close()

	for i, stmt := range stmts {
		body, err := json.Marshal(stmt)
		if err != nil {
			return fmt.Errorf("write statements: encode %d: %w", firstSeq+int64(i), err)
		}
		if _, err := insert.ExecContext(ctx, runID, firstSeq+int64(i), string(body)); err != nil {
			return fmt.Errorf("write statements: insert %d: %w", firstSeq+int64(i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write statements: commit: %w", err)
	}
	return nil
}

// WriteAgentProfile stores the raw agent profile of a student.
func (s *Store) WriteAgentProfile(ctx context.Context, runID string, seq int64, studentID string, body []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_profiles (run_id, seq, student_id, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, student_id) DO NOTHING
	`, runID, seq, studentID, string(body))
	if err != nil {
		return fmt.Errorf("write agent profile %s: %w", studentID, err)
	}
	return nil
}

// WriteActivityProfile stores the raw activity profile of a course.
func (s *Store) WriteActivityProfile(ctx context.Context, runID string, seq int64, courseID string, body []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_profiles (run_id, seq, course_id, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, course_id) DO NOTHING
	`, runID, seq, courseID, string(body))
	if err != nil {
		return fmt.Errorf("write activity profile %s: %w", courseID, err)
	}
	return nil
}
