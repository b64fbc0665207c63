package harness

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/lrsweek/internal/features"
	"github.com/roach88/lrsweek/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes the exported weeks to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Weeks    []int
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if e.Weeks != nil {
		fmt.Fprintf(&buf, "  Weeks: %v\n", e.Weeks)
	}
	return buf.String()
}

// rowFields renders a feature row under its CSV column names, plus
// student_id and week.
func rowFields(r features.FeatureRow) map[string]string {
	return map[string]string{
		"student_id":      r.StudentID,
		"week":            strconv.Itoa(r.Week),
		"classLabel":      r.ClassLabel,
		"sex":             r.Sex,
		"scholarship":     r.Scholarship,
		"repeatingClass":  r.RepeatingClass,
		"log_week":        strconv.Itoa(r.LogWeek),
		"cumulative_logs": strconv.Itoa(r.CumulativeLogs),
	}
}

func findRow(t features.Table, week int, student string) (features.FeatureRow, bool) {
	for _, r := range t.Week(week) {
		if r.StudentID == student {
			return r, true
		}
	}
	return features.FeatureRow{}, false
}

// assertWeeks checks the exported weeks, in order.
func assertWeeks(t features.Table, a Assertion) error {
	if slices.Equal(t.Weeks, a.Weeks) {
		return nil
	}
	return &AssertionError{
		Type:     AssertWeeks,
		Expected: fmt.Sprintf("weeks %v", a.Weeks),
		Actual:   fmt.Sprintf("weeks %v", t.Weeks),
	}
}

// assertRow checks the fields of one student's row (subset semantics).
func assertRow(t features.Table, a Assertion) error {
	row, ok := findRow(t, a.Week, a.Student)
	if !ok {
		return &AssertionError{
			Type:     AssertRow,
			Expected: fmt.Sprintf("row for student %s in week %d", a.Student, a.Week),
			Actual:   "row not found",
			Weeks:    t.Weeks,
		}
	}

	fields := rowFields(row)
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		actual, exists := fields[key]
		if !exists {
			return &AssertionError{
				Type:     AssertRow,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q is not a feature column", key),
			}
		}
		if want := fmt.Sprint(a.Expect[key]); want != actual {
			return &AssertionError{
				Type:     AssertRow,
				Expected: fmt.Sprintf("student %s week %d: %s = %s", a.Student, a.Week, key, want),
				Actual:   fmt.Sprintf("%s = %s", key, actual),
			}
		}
	}
	return nil
}

// assertAbsent checks that a student has no row in a week.
func assertAbsent(t features.Table, a Assertion) error {
	if _, ok := findRow(t, a.Week, a.Student); ok {
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("no row for student %s in week %d", a.Student, a.Week),
			Actual:   "row present",
			Weeks:    t.Weeks,
		}
	}
	return nil
}

// assertRowCount checks the number of rows in a week.
func assertRowCount(t features.Table, a Assertion) error {
	if n := len(t.Week(a.Week)); n != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in week %d", a.Count, a.Week),
			Actual:   fmt.Sprintf("%d rows", n),
			Weeks:    t.Weeks,
		}
	}
	return nil
}

// assertInvariants checks, for every student, that cumulative_logs is the
// running sum of log_week and that once a student appears in a week it
// appears in every later week.
func assertInvariants(t features.Table) error {
	sums := make(map[string]int)
	seen := make(map[string]int) // student -> first week

	for _, w := range t.Weeks {
		present := make(map[string]bool)
		for _, r := range t.Week(w) {
			present[r.StudentID] = true
			if r.LogWeek < 0 {
				return &AssertionError{
					Type:     AssertInvariants,
					Expected: "log_week >= 0",
					Actual:   fmt.Sprintf("student %s week %d: log_week = %d", r.StudentID, w, r.LogWeek),
				}
			}
			sums[r.StudentID] += r.LogWeek
			if r.CumulativeLogs != sums[r.StudentID] {
				return &AssertionError{
					Type:     AssertInvariants,
					Expected: fmt.Sprintf("student %s week %d: cumulative_logs = %d", r.StudentID, w, sums[r.StudentID]),
					Actual:   fmt.Sprintf("cumulative_logs = %d", r.CumulativeLogs),
				}
			}
			if _, ok := seen[r.StudentID]; !ok {
				seen[r.StudentID] = w
			}
		}
		for student, first := range seen {
			if !present[student] {
				return &AssertionError{
					Type:     AssertInvariants,
					Expected: fmt.Sprintf("student %s (first seen week %d) present in week %d", student, first, w),
					Actual:   "row missing",
					Weeks:    t.Weeks,
				}
			}
		}
	}
	return nil
}

// assertDegraded checks the number of events with a fallback course id.
func assertDegraded(result *Result, a Assertion) error {
	if result.Degraded != a.Count {
		return &AssertionError{
			Type:     AssertDegraded,
			Expected: fmt.Sprintf("%d degraded events", a.Count),
			Actual:   fmt.Sprintf("%d degraded events", result.Degraded),
		}
	}
	return nil
}

// assertStored counts the rows of a store table matching Where.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertStored(ctx context.Context, st *store.Store, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(a.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", a.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertStored,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return fmt.Errorf("scan count: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate count: %w", err)
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertStored,
			Expected: fmt.Sprintf("%d rows in %s where %s", a.Count, a.Table, formatWhereClause(a.Where)),
			Actual:   fmt.Sprintf("%d rows", count),
		}
	}
	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are
// sorted for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}
	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML scalar to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, bool, float64:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(ctx context.Context, st *store.Store, result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertWeeks:
			err = assertWeeks(result.Table, a)
		case AssertRow:
			err = assertRow(result.Table, a)
		case AssertAbsent:
			err = assertAbsent(result.Table, a)
		case AssertRowCount:
			err = assertRowCount(result.Table, a)
		case AssertInvariants:
			err = assertInvariants(result.Table)
		case AssertDegraded:
			err = assertDegraded(result, a)
		case AssertStored:
			err = assertStored(ctx, st, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}
