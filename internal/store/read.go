package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/lrsweek/internal/xapi"
)

// ErrNoRuns is returned by LatestRun when the store holds no completed run.
var ErrNoRuns = errors.New("no completed runs in store")

// IncompleteRunError is returned by ReadRun for a run whose fetch did not
// finish.
type IncompleteRunError struct {
	ID string
}

func (e *IncompleteRunError) Error() string {
	return fmt.Sprintf("run %s is incomplete: its fetch did not finish", e.ID)
}

// Profile is a stored profile document keyed by student or course id.
type Profile struct {
	Key  string
	Body []byte
}

// LatestRun returns the most recently written completed run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, source, completed_at
		FROM runs
		WHERE completed_at IS NOT NULL
		ORDER BY seq DESC
		LIMIT 1
	`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRuns
	}
	return run, err
}

// ReadRun returns a completed run by id. An unfinished run gives an
// *IncompleteRunError.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, source, completed_at
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return Run{}, err
	}
	if !run.Completed() {
		return Run{}, &IncompleteRunError{ID: id}
	}
	return run, nil
}

// ReadRuns returns all runs, complete or not, oldest first.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, source, completed_at
		FROM runs
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadStatements returns the statements of a run in stream order.
func (s *Store) ReadStatements(ctx context.Context, runID string) ([]xapi.Statement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, body
		FROM statements
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query statements: %w", err)
	}
	defer rows.Close()

	stmts := []xapi.Statement{}
	for rows.Next() {
		var seq int64
		var body string
		if err := rows.Scan(&seq, &body); err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		stmt, err := xapi.DecodeStatement([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", seq, err)
		}
		stmts = append(stmts, stmt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statements: %w", err)
	}
	return stmts, nil
}

// ReadAgentProfiles returns the agent profiles of a run in fetch order.
func (s *Store) ReadAgentProfiles(ctx context.Context, runID string) ([]Profile, error) {
	return s.readProfiles(ctx, `
		SELECT student_id, body
		FROM agent_profiles
		WHERE run_id = ?
		ORDER BY seq ASC, student_id COLLATE BINARY ASC
	`, runID)
}

// ReadActivityProfiles returns the activity profiles of a run in fetch order.
func (s *Store) ReadActivityProfiles(ctx context.Context, runID string) ([]Profile, error) {
	return s.readProfiles(ctx, `
		SELECT course_id, body
		FROM activity_profiles
		WHERE run_id = ?
		ORDER BY seq ASC, course_id COLLATE BINARY ASC
	`, runID)
}

func (s *Store) readProfiles(ctx context.Context, query, runID string) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	profiles := []Profile{}
	for rows.Next() {
		var p Profile
		var body string
		if err := rows.Scan(&p.Key, &body); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p.Body = []byte(body)
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var startedAt string
	var completedAt sql.NullString
	if err := row.Scan(&run.ID, &startedAt, &run.Source, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: started_at: %w", run.ID, err)
	}
	run.StartedAt = t
	if completedAt.Valid {
		if run.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt.String); err != nil {
			return Run{}, fmt.Errorf("run %s: completed_at: %w", run.ID, err)
		}
	}
	return run, nil
}
