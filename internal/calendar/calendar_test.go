package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputedWeek_Anchors(t *testing.T) {
	assert.Equal(t, 1, ComputedWeek(35))
	assert.Equal(t, 52, ComputedWeek(34))
	assert.Equal(t, 19, ComputedWeek(1))
	assert.Equal(t, 18, ComputedWeek(52))
}

func TestComputedWeek_BijectionOutsideWraparound(t *testing.T) {
	seen := make(map[int]int)
	for iso := 1; iso <= 52; iso++ {
		cw := ComputedWeek(iso)
		prev, dup := seen[cw]
		require.False(t, dup, "iso weeks %d and %d collide on %d", prev, iso, cw)
		seen[cw] = iso
	}

	// 1..52 maps onto exactly 1..52
	for cw := 1; cw <= 52; cw++ {
		_, ok := seen[cw]
		assert.True(t, ok, "computed week %d not reached", cw)
	}
}

func TestComputedWeek_Week53Collides(t *testing.T) {
	// Documented limitation: no wraparound handling.
	assert.Equal(t, ComputedWeek(1), ComputedWeek(53))
}

func TestComputedWeek_MonotonicWithinAcademicYear(t *testing.T) {
	prev := 0
	for _, iso := range append(seq(35, 52), seq(1, 34)...) {
		cw := ComputedWeek(iso)
		assert.Greater(t, cw, prev, "iso week %d", iso)
		prev = cw
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2017-09-01T10:15:00.123+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, ts.Location())
	assert.Equal(t, 8, ts.Hour())

	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yesterday")
}

func TestParseTimestamp_Layouts(t *testing.T) {
	want := time.Date(2018, 1, 10, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   string
	}{
		{"rfc3339 zulu", "2018-01-10T09:00:00Z"},
		{"rfc3339 fraction", "2018-01-10T09:00:00.000Z"},
		{"rfc3339 offset", "2018-01-10T10:00:00+01:00"},
		{"no offset reads as utc", "2018-01-10T09:00:00"},
		{"no offset fraction", "2018-01-10T09:00:00.000"},
		{"basic offset", "2018-01-10T09:00:00+0000"},
		{"basic negative offset", "2018-01-10T04:00:00-0500"},
		{"basic offset fraction", "2018-01-10T10:00:00.5+0100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.Equal(t, time.UTC, got.Location())
			assert.True(t, got.Truncate(time.Second).Equal(want), "got %v", got)
		})
	}
}

func TestActivityWeek_NoOffset(t *testing.T) {
	week, err := ActivityWeek("2018-01-10T09:00:00")
	require.NoError(t, err)
	assert.Equal(t, 20, week)
}

func TestParseDate_DayFirst(t *testing.T) {
	d, err := ParseDate("01/09/2017")
	require.NoError(t, err)
	assert.Equal(t, time.September, d.Month())
	assert.Equal(t, 1, d.Day())

	d, err = ParseDate("2017-09-01")
	require.NoError(t, err)
	assert.Equal(t, time.September, d.Month())

	_, err = ParseDate("09/31/2017")
	require.Error(t, err)
}

func TestActivityWeek(t *testing.T) {
	// 2018-01-17 is ISO week 3 -> computed week 21.
	w, err := ActivityWeek("2018-01-17T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 21, w)

	// Sunday evening at -02:00 is already Monday (ISO week 36) in UTC.
	w, err = ActivityWeek("2017-09-03T23:30:00-02:00")
	require.NoError(t, err)
	assert.Equal(t, ComputedWeek(36), w)
}

func TestEnrollmentWeek(t *testing.T) {
	// 01/09/2017 is a Friday in ISO week 35.
	w, err := EnrollmentWeek("01/09/2017")
	require.NoError(t, err)
	assert.Equal(t, 1, w)

	_, err = EnrollmentWeek("")
	require.Error(t, err)
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}
