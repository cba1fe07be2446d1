package model

import "math"

type AttendanceCategory string

const (
	AttendanceAbsence        AttendanceCategory = "absence"
	AttendanceExcusedAbsence AttendanceCategory = "excused_absence"
	AttendanceLateness       AttendanceCategory = "lateness"
	AttendanceOther          AttendanceCategory = "other"
)

type AttendanceRecord struct {
	Date         string             `json:"date,omitempty"`
	LessonNumber int                `json:"lesson_number,omitempty"`
	Subject      string             `json:"subject,omitempty"`
	Label        string             `json:"label"`
	Category     AttendanceCategory `json:"category"`
}

// AttendanceSummary aggregates records. Labels keeps the portal's own
// wording; Categories only counts classified records, so Unclassified
// records contribute to Total and nothing else.
type AttendanceSummary struct {
	Labels             map[string]int             `json:"labels"`
	Categories         map[AttendanceCategory]int `json:"categories"`
	Total              int                        `json:"total"`
	Unclassified       int                        `json:"unclassified"`
	PresencePercentage int                        `json:"presence_percentage"`
	ReportedPercentage *float64                   `json:"reported_percentage,omitempty"`
}

func Summarize(records []AttendanceRecord) AttendanceSummary {
	s := AttendanceSummary{
		Labels:     make(map[string]int),
		Categories: make(map[AttendanceCategory]int),
	}
	for _, r := range records {
		s.Total++
		s.Labels[r.Label]++
		if r.Category == AttendanceOther || r.Category == "" {
			s.Unclassified++
			continue
		}
		s.Categories[r.Category]++
	}
	s.PresencePercentage = PresencePercentage(s.Total, s.Categories[AttendanceAbsence])
	return s
}

// PresencePercentage is round(100*(total-unexcused)/total) clamped to
// [0,100]; no recorded lessons counts as full presence.
func PresencePercentage(total, unexcused int) int {
	if total <= 0 {
		return 100
	}
	p := int(math.Round(100 * float64(total-unexcused) / float64(total)))
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
