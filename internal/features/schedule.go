package features

import (
	"fmt"

	"github.com/roach88/lrsweek/internal/calendar"
	"github.com/roach88/lrsweek/internal/xapi"
)

// Schedule is a course profile expressed in computed weeks.
type Schedule struct {
	CourseID  string
	StartWeek int
	EndWeek   int
	ExamWeeks map[string]int // exam id -> deadline week
}

// CourseSchedule resolves the dates of an activity profile.
func CourseSchedule(p xapi.ActivityProfile) (Schedule, error) {
	s := Schedule{CourseID: p.CourseID, ExamWeeks: make(map[string]int, len(p.Exams))}

	var err error
	if s.StartWeek, err = calendar.EnrollmentWeek(p.StartDate); err != nil {
		return Schedule{}, fmt.Errorf("course %s: StartDate: %w", p.CourseID, err)
	}
	if s.EndWeek, err = calendar.EnrollmentWeek(p.EndDate); err != nil {
		return Schedule{}, fmt.Errorf("course %s: EndDate: %w", p.CourseID, err)
	}
	for _, exam := range p.Exams {
		w, err := calendar.EnrollmentWeek(exam.Deadline)
		if err != nil {
			return Schedule{}, fmt.Errorf("course %s: exam %s: %w", p.CourseID, exam.ID, err)
		}
		s.ExamWeeks[exam.ID] = w
	}
	return s, nil
}
