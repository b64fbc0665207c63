package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/lrsweek/internal/xapi"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun writes a completed run with a fixed start time.
func createTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run := createIncompleteRun(t, s, id)
	run.CompletedAt = run.StartedAt.Add(time.Minute)
	if err := s.CompleteRun(context.Background(), id, run.CompletedAt); err != nil {
		t.Fatalf("CompleteRun() failed: %v", err)
	}
	return run
}

// createIncompleteRun writes a run whose fetch never finished.
func createIncompleteRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run := Run{
		ID:        id,
		StartedAt: time.Date(2018, 1, 15, 9, 30, 0, 0, time.UTC),
		Source:    "http://lrs.example:8080",
	}
	if err := s.WriteRun(context.Background(), run); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	return run
}

// createTestStatement builds a viewed statement for a student.
func createTestStatement(student, object string) xapi.Statement {
	return xapi.Statement{
		Actor:     xapi.Actor{Mbox: "mailto:" + student + "@lola.example"},
		Verb:      xapi.Verb{ID: "http://id.tincanapi.com/verb/viewed"},
		Object:    xapi.Object{ID: object},
		Timestamp: "2017-10-02T09:00:00Z",
	}
}
