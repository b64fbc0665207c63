package features

import (
	"sort"
)

// FeatureRow is the per-student, per-week feature record.
type FeatureRow struct {
	StudentID      string
	Sex            string
	Scholarship    string
	RepeatingClass string
	ClassLabel     string
	Week           int
	LogWeek        int
	CumulativeLogs int
}

// Table holds the feature rows of every processed week, weeks ascending.
type Table struct {
	Weeks []int
	Rows  map[int][]FeatureRow
}

// Week returns the rows of one week, or an empty slice.
func (t Table) Week(w int) []FeatureRow {
	if rows, ok := t.Rows[w]; ok {
		return rows
	}
	return []FeatureRow{}
}

// Len returns the total number of rows across weeks.
func (t Table) Len() int {
	n := 0
	for _, rows := range t.Rows {
		n += len(rows)
	}
	return n
}

// student is a distinct student in order of first appearance.
type student struct {
	row  Row
	week int // enrollment week
}

// Totals is the running per-student sum of log_week carried between weeks.
type Totals map[string]int

// Aggregate builds the weekly feature table from joined rows.
//
// Weeks are the distinct activity weeks of the input, processed strictly
// ascending. In week w, every student whose enrollment week is <= w gets
// one row; LogWeek counts that student's events in w (0 when none), and
// CumulativeLogs is the running total through w.
func Aggregate(rows []Row) Table {
	students := make([]student, 0)
	seen := make(map[string]bool)
	counts := make(map[int]map[string]int)

	for _, r := range rows {
		id := r.Event.StudentID
		if !seen[id] {
			seen[id] = true
			students = append(students, student{row: r, week: r.EnrollmentWeek})
		}
		if counts[r.ActivityWeek] == nil {
			counts[r.ActivityWeek] = make(map[string]int)
		}
		counts[r.ActivityWeek][id]++
	}

	weeks := make([]int, 0, len(counts))
	for w := range counts {
		weeks = append(weeks, w)
	}
	sort.Ints(weeks)

	table := Table{Weeks: weeks, Rows: make(map[int][]FeatureRow, len(weeks))}
	totals := make(Totals)
	for _, w := range weeks {
		table.Rows[w], totals = step(w, students, counts[w], totals)
	}
	return table
}

// step emits week w's rows and returns the totals carried into the next week.
func step(w int, students []student, weekCounts map[string]int, totals Totals) ([]FeatureRow, Totals) {
	out := make([]FeatureRow, 0, len(students))
	for _, s := range students {
		if s.week > w {
			continue
		}
		id := s.row.Event.StudentID
		n := weekCounts[id]
		totals[id] += n
		p := s.row.Profile
		out = append(out, FeatureRow{
			StudentID:      id,
			Sex:            p.Sex,
			Scholarship:    p.Scholarship,
			RepeatingClass: p.RepeatingClass,
			ClassLabel:     p.ClassLabel,
			Week:           w,
			LogWeek:        n,
			CumulativeLogs: totals[id],
		})
	}
	return out, totals
}
