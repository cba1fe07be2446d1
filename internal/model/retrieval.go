package model

import "time"

type Credential struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"-"`
}

type AuthStatus string

const (
	AuthUnauthenticated AuthStatus = "unauthenticated"
	AuthAuthenticated   AuthStatus = "authenticated"
	AuthRejected        AuthStatus = "rejected"
	AuthPortalError     AuthStatus = "portal_error"
)

type Resource string

const (
	ResourceGrades     Resource = "grades"
	ResourceTimetable  Resource = "timetable"
	ResourceAttendance Resource = "attendance"
)

type ResourceStatus string

const (
	ResourceOK ResourceStatus = "ok"
	// ResourceDegraded means the portal answered but nothing could be parsed.
	ResourceDegraded ResourceStatus = "degraded"
	ResourceFailed   ResourceStatus = "failed"
)

// RetrievalResult is the partial-success envelope of one retrieval.
type RetrievalResult struct {
	Identifier        string                      `json:"identifier,omitempty"`
	AuthStatus        AuthStatus                  `json:"auth_status"`
	WeekStart         string                      `json:"week_start,omitempty"`
	Grades            []GradeEntry                `json:"grades"`
	Timetable         TimetableMap                `json:"timetable"`
	Attendance        AttendanceSummary           `json:"attendance"`
	AttendanceRecords []AttendanceRecord          `json:"attendance_records,omitempty"`
	Status            map[Resource]ResourceStatus `json:"status"`
	Errors            map[Resource]string         `json:"errors,omitempty"`
}

func NewRetrievalResult() *RetrievalResult {
	return &RetrievalResult{
		AuthStatus: AuthUnauthenticated,
		Grades:     []GradeEntry{},
		Timetable:  TimetableMap{},
		Attendance: Summarize(nil),
		Status:     make(map[Resource]ResourceStatus),
		Errors:     make(map[Resource]string),
	}
}

// Snapshot is a stored retrieval result.
type Snapshot struct {
	ID         int64                       `json:"id"`
	Identifier string                      `json:"identifier"`
	WeekStart  string                      `json:"week_start"`
	Grades     []GradeEntry                `json:"grades"`
	Timetable  TimetableMap                `json:"timetable"`
	Attendance AttendanceSummary           `json:"attendance"`
	Status     map[Resource]ResourceStatus `json:"status"`
	Errors     map[Resource]string         `json:"errors,omitempty"`
	CreatedAt  time.Time                   `json:"created_at"`
}

func NewSnapshot(identifier string, r *RetrievalResult) *Snapshot {
	return &Snapshot{
		Identifier: identifier,
		WeekStart:  r.WeekStart,
		Grades:     r.Grades,
		Timetable:  r.Timetable,
		Attendance: r.Attendance,
		Status:     r.Status,
		Errors:     r.Errors,
	}
}
