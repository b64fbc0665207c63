// Package calendar aligns ISO calendar weeks onto the academic "computed week"
// used by the weekly feature tables.
//
// The academic year pivots on ISO week 35: week 35 is computed week 1, week 52
// is computed week 18, and ISO weeks 1..34 of the following calendar year map
// to 19..52.
//
// Known limitation: ISO week 53 maps to 19, the same computed week as ISO
// week 1 of the next year. Years with 53 ISO weeks are not special-cased.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// PivotWeek is the ISO week that opens the academic year.
const PivotWeek = 35

// dateLayouts are the start-date encodings accepted by ParseDate, day-first
// layouts before ISO.
var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006-01-02",
}

// ComputedWeek maps an ISO week number to the course-relative computed week.
func ComputedWeek(isoWeek int) int {
	if isoWeek >= PivotWeek {
		return isoWeek - (PivotWeek - 1)
	}
	return isoWeek + 18
}

// ISOWeek returns the ISO 8601 week number of t, evaluated in UTC.
func ISOWeek(t time.Time) int {
	_, week := t.UTC().ISOWeek()
	return week
}

// timestampLayouts are the ISO 8601 timestamp encodings accepted by
// ParseTimestamp, in order. Layouts without an offset read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
}

// ParseTimestamp parses an xAPI statement timestamp into UTC. RFC 3339 is
// tried first, then the same form without an offset and with a basic
// (+hhmm) offset. Fractional seconds are optional.
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: expected ISO 8601 date and time", ts)
}

// ParseDate parses a profile date. Day-first layouts take precedence.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q: expected dd/mm/yyyy", s)
}

// ActivityWeek returns the computed week in which a statement timestamp falls.
func ActivityWeek(ts string) (int, error) {
	t, err := ParseTimestamp(ts)
	if err != nil {
		return 0, err
	}
	return ComputedWeek(ISOWeek(t)), nil
}

// EnrollmentWeek returns the computed week of a student's start date.
func EnrollmentWeek(date string) (int, error) {
	t, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	return ComputedWeek(ISOWeek(t)), nil
}
