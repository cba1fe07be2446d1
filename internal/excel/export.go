package excel

import (
	"bytes"
	"fmt"
	"sort"

	"integration-school-portal/internal/model"

	"github.com/xuri/excelize/v2"
)

const (
	GradesSheet     = "Grades"
	TimetableSheet  = "Timetable"
	AttendanceSheet = "Attendance"
)

var (
	gradeHeader     = []any{"subject", "value", "category", "date", "semester"}
	timetableHeader = []any{"date", "lesson", "start", "end", "subject", "teacher", "room", "cancelled", "substitution"}
)

type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

// Export renders a snapshot as an XLSX workbook with one sheet per
// resource.
func (e *Exporter) Export(s *model.Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", GradesSheet); err != nil {
		return nil, err
	}
	if err := e.writeGrades(f, s.Grades); err != nil {
		return nil, fmt.Errorf("failed to write grades: %w", err)
	}

	if _, err := f.NewSheet(TimetableSheet); err != nil {
		return nil, err
	}
	if err := e.writeTimetable(f, s.Timetable); err != nil {
		return nil, fmt.Errorf("failed to write timetable: %w", err)
	}

	if _, err := f.NewSheet(AttendanceSheet); err != nil {
		return nil, err
	}
	if err := e.writeAttendance(f, s.Attendance); err != nil {
		return nil, fmt.Errorf("failed to write attendance: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Exporter) writeGrades(f *excelize.File, grades []model.GradeEntry) error {
	if err := writeRow(f, GradesSheet, 1, gradeHeader); err != nil {
		return err
	}
	for i, g := range grades {
		date := ""
		if g.Date != nil {
			date = model.FormatDate(*g.Date)
		}
		if err := writeRow(f, GradesSheet, i+2, []any{g.Subject, g.Value, g.Category, date, g.Semester}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) writeTimetable(f *excelize.File, tt model.TimetableMap) error {
	if err := writeRow(f, TimetableSheet, 1, timetableHeader); err != nil {
		return err
	}
	dates := make([]string, 0, len(tt))
	for d := range tt {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	row := 2
	for _, d := range dates {
		for _, s := range tt[d] {
			values := []any{d, s.LessonNumber, s.Start, s.End, s.Subject, s.Teacher, s.Room, s.IsCancelled, s.IsSubstitution}
			if err := writeRow(f, TimetableSheet, row, values); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

func (e *Exporter) writeAttendance(f *excelize.File, a model.AttendanceSummary) error {
	rows := [][]any{
		{"metric", "value"},
		{"total", a.Total},
		{"presence_percentage", a.PresencePercentage},
	}
	if a.ReportedPercentage != nil {
		rows = append(rows, []any{"reported_percentage", *a.ReportedPercentage})
	}
	for _, c := range []model.AttendanceCategory{model.AttendanceAbsence, model.AttendanceExcusedAbsence, model.AttendanceLateness} {
		rows = append(rows, []any{string(c), a.Categories[c]})
	}
	rows = append(rows, []any{"unclassified", a.Unclassified})

	labels := make([]string, 0, len(a.Labels))
	for l := range a.Labels {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		rows = append(rows, []any{"label: " + l, a.Labels[l]})
	}

	for i, r := range rows {
		if err := writeRow(f, AttendanceSheet, i+1, r); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
