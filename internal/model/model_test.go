package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(s string) *time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestPresencePercentage(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		unexcused int
		want      int
	}{
		{name: "fixture", total: 100, unexcused: 4, want: 96},
		{name: "no lessons", total: 0, unexcused: 0, want: 100},
		{name: "all absent", total: 7, unexcused: 7, want: 0},
		{name: "rounds half up", total: 8, unexcused: 1, want: 88},
		{name: "clamped below zero", total: 3, unexcused: 5, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PresencePercentage(tt.total, tt.unexcused))
		})
	}
}

func TestSummarizeCountsUnclassified(t *testing.T) {
	var records []AttendanceRecord
	add := func(n int, label string, c AttendanceCategory) {
		for i := 0; i < n; i++ {
			records = append(records, AttendanceRecord{Label: label, Category: c})
		}
	}
	add(4, "nieobecność", AttendanceAbsence)
	add(2, "nieobecność uspr.", AttendanceExcusedAbsence)
	add(3, "spóźnienie", AttendanceLateness)
	add(91, "obecność", AttendanceOther)

	s := Summarize(records)

	assert.Equal(t, 100, s.Total)
	assert.Equal(t, 91, s.Unclassified)
	assert.Equal(t, 96, s.PresencePercentage)
	assert.Equal(t, map[AttendanceCategory]int{
		AttendanceAbsence:        4,
		AttendanceExcusedAbsence: 2,
		AttendanceLateness:       3,
	}, s.Categories)
	assert.Equal(t, 91, s.Labels["obecność"])
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "2026-03-02", want: "2026-03-02"},
		{in: "2026-03-04", want: "2026-03-02"},
		{in: "2026-03-08", want: "2026-03-02"},
		{in: "2026-01-01", want: "2025-12-29"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWeek(tt.in)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, FormatDate(got))
		})
	}
	assert.Equal(t, "2026-03-09", FormatDate(NextWeek(WeekStart(*date("2026-03-05")))))

	_, err := ParseWeek("03/02/2026")
	assert.Error(t, err)
}

func TestSortGradesNewestFirst(t *testing.T) {
	grades := []GradeEntry{
		{Subject: "A", Value: "3", Date: date("2026-01-10")},
		{Subject: "B", Value: "4"},
		{Subject: "C", Value: "5", Date: date("2026-03-01")},
		{Subject: "D", Value: "2"},
	}
	SortGrades(grades)

	var order []string
	for _, g := range grades {
		order = append(order, g.Subject)
	}
	assert.Equal(t, []string{"C", "A", "B", "D"}, order)
}

func TestSemesterFor(t *testing.T) {
	assert.Equal(t, 1, SemesterFor(nil))
	assert.Equal(t, 1, SemesterFor(date("2025-10-15")))
	assert.Equal(t, 2, SemesterFor(date("2026-03-02")))
	assert.Equal(t, 1, SemesterFor(date("2026-01-20")))
}

func TestTimetableMergeKeepsOtherDays(t *testing.T) {
	tt := TimetableMap{"2026-03-02": {{LessonNumber: 1, Subject: "Math"}}}
	tt.Merge(TimetableMap{"2026-03-03": {{LessonNumber: 2, Subject: "Art"}}})

	assert.Len(t, tt, 2)

	clone := tt.Clone()
	clone["2026-03-02"][0].Subject = "changed"
	assert.Equal(t, "Math", tt["2026-03-02"][0].Subject)
}

func TestNormalizeOrdersLessons(t *testing.T) {
	tt := TimetableMap{
		"2026-03-02": {{LessonNumber: 3}, {LessonNumber: 1}, {LessonNumber: 2}},
		"2026-03-03": {},
	}
	tt.Normalize()

	assert.NotContains(t, tt, "2026-03-03")
	assert.Equal(t, 1, tt["2026-03-02"][0].LessonNumber)
	assert.Equal(t, 3, tt["2026-03-02"][2].LessonNumber)
}
