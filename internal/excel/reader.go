package excel

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"integration-school-portal/internal/model"

	"github.com/xuri/excelize/v2"
)

// ReadGrades reads the grades sheet of an exported workbook. Columns are
// located by header name, so reordered sheets still load.
func ReadGrades(data []byte) ([]model.GradeEntry, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer file.Close()

	rows, err := file.GetRows(GradesSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s has no header", GradesSheet)
	}

	columnMap := make(map[string]int)
	for i, col := range rows[0] {
		columnMap[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"subject", "value", "semester"} {
		if _, ok := columnMap[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	grades := []model.GradeEntry{}
	for i, row := range rows[1:] {
		get := func(name string) string {
			if idx, ok := columnMap[name]; ok && idx < len(row) {
				return strings.TrimSpace(row[idx])
			}
			return ""
		}

		g := model.GradeEntry{Subject: get("subject"), Value: get("value"), Category: get("category")}
		if g.Subject == "" || g.Value == "" {
			continue
		}
		semester, err := strconv.Atoi(get("semester"))
		if err != nil || (semester != 1 && semester != 2) {
			return nil, fmt.Errorf("error parsing row %d: invalid semester %q", i+2, get("semester"))
		}
		g.Semester = semester
		if d := get("date"); d != "" {
			t, err := time.Parse(model.DateLayout, d)
			if err != nil {
				return nil, fmt.Errorf("error parsing row %d: %w", i+2, err)
			}
			g.Date = &t
		}
		grades = append(grades, g)
	}
	return grades, nil
}
