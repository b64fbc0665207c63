package xapi

import (
	"encoding/json"
	"fmt"
)

// Log accumulates normalized records across statement pages. Events holds
// submissions and views in arrival order; Scores holds scored records.
type Log struct {
	Events   []Event
	Scores   []Scored
	Degraded int // views whose course id fell back to the object id
	Total    int
}

// Add normalizes one statement and appends it. The statement index within
// the stream is included in the error.
func (l *Log) Add(stmt Statement) error {
	rec, err := Normalize(stmt)
	if err != nil {
		return fmt.Errorf("statement %d: %w", l.Total, err)
	}
	l.Total++

	switch r := rec.(type) {
	case Scored:
		l.Scores = append(l.Scores, r)
	case Submitted:
		l.Events = append(l.Events, r.Event)
	case Viewed:
		if !r.HasContext {
			l.Degraded++
		}
		l.Events = append(l.Events, r.Event)
	default:
		panic(fmt.Sprintf("xapi: unhandled record type %T", rec))
	}
	return nil
}

// AddPage adds every statement of a page, stopping at the first failure.
func (l *Log) AddPage(stmts []Statement) error {
	for _, stmt := range stmts {
		if err := l.Add(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ActionCounts returns the number of log events per verb URI, plus scored records.
func (l *Log) ActionCounts() map[string]int {
	counts := make(map[string]int)
	for _, ev := range l.Events {
		counts[ev.Action]++
	}
	if len(l.Scores) > 0 {
		counts[VerbScored] += len(l.Scores)
	}
	return counts
}

// AgentRef identifies an agent whose profile must be fetched.
type AgentRef struct {
	StudentID string
	Actor     json.RawMessage
}

// Agents returns one reference per scored student, first occurrence wins.
func (l *Log) Agents() []AgentRef {
	seen := make(map[string]bool)
	refs := make([]AgentRef, 0)
	for _, s := range l.Scores {
		if seen[s.StudentID] {
			continue
		}
		seen[s.StudentID] = true
		refs = append(refs, AgentRef{StudentID: s.StudentID, Actor: s.Actor})
	}
	return refs
}

// Courses returns the distinct course ids of scored records in order of appearance.
func (l *Log) Courses() []string {
	seen := make(map[string]bool)
	courses := make([]string, 0)
	for _, s := range l.Scores {
		if seen[s.CourseID] {
			continue
		}
		seen[s.CourseID] = true
		courses = append(courses, s.CourseID)
	}
	return courses
}
