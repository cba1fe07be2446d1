package model

import (
	"sort"
	"time"
)

// GradeEntry is one grade as shown by the portal. Value is kept verbatim
// because the portal mixes letter, numeric and "earned/possible" forms.
type GradeEntry struct {
	Subject  string     `json:"subject"`
	Value    string     `json:"value"`
	Category string     `json:"category,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	Semester int        `json:"semester"`
}

// SemesterFor infers the semester of a dated grade: February through
// August belong to the second semester.
func SemesterFor(date *time.Time) int {
	if date == nil {
		return 1
	}
	if m := date.Month(); m >= time.February && m <= time.August {
		return 2
	}
	return 1
}

// SortGrades orders grades newest first. Undated grades keep their
// relative order and go last.
func SortGrades(grades []GradeEntry) {
	sort.SliceStable(grades, func(i, j int) bool {
		a, b := grades[i].Date, grades[j].Date
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
