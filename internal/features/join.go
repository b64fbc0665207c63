// Package features turns a normalized event log and student profiles into
// weekly per-student engagement features.
//
// The pipeline is Join (event x profile, inner join on student id, both
// computed weeks resolved), Aggregate (a fold over ascending computed weeks
// carrying per-student cumulative totals) and Exporter (one CSV per week).
package features

import (
	"fmt"

	"github.com/roach88/lrsweek/internal/calendar"
	"github.com/roach88/lrsweek/internal/xapi"
)

// Row is one event joined to its student's profile. ActivityWeek is the
// computed week of the event timestamp; EnrollmentWeek is the computed week
// of the student's start date.
type Row struct {
	Event          xapi.Event
	Profile        xapi.AgentProfile
	ActivityWeek   int
	EnrollmentWeek int
}

// JoinStats reports what the join discarded.
type JoinStats struct {
	UnmatchedEvents   int // events whose student has no profile
	DuplicateProfiles int // repeated profiles for a student, ignored
}

// Join inner-joins events with profiles on student id, preserving event
// order. When a student has several profiles the first one wins.
func Join(events []xapi.Event, profiles []xapi.AgentProfile) ([]Row, JoinStats, error) {
	var stats JoinStats

	byStudent := make(map[string]xapi.AgentProfile, len(profiles))
	enrollment := make(map[string]int, len(profiles))
	for _, p := range profiles {
		if _, ok := byStudent[p.StudentID]; ok {
			stats.DuplicateProfiles++
			continue
		}
		week, err := calendar.EnrollmentWeek(p.StartDate)
		if err != nil {
			return nil, stats, fmt.Errorf("profile %s: StartDate: %w", p.StudentID, err)
		}
		byStudent[p.StudentID] = p
		enrollment[p.StudentID] = week
	}

	rows := make([]Row, 0, len(events))
	for i, ev := range events {
		p, ok := byStudent[ev.StudentID]
		if !ok {
			stats.UnmatchedEvents++
			continue
		}
		week, err := calendar.ActivityWeek(ev.Timestamp)
		if err != nil {
			return nil, stats, fmt.Errorf("event %d (student %s): %w", i, ev.StudentID, err)
		}
		rows = append(rows, Row{
			Event:          ev,
			Profile:        p,
			ActivityWeek:   week,
			EnrollmentWeek: enrollment[ev.StudentID],
		})
	}
	return rows, stats, nil
}
