package parser

import (
	"regexp"
	"strconv"
	"strings"

	"integration-school-portal/internal/model"
)

var rePercent = regexp.MustCompile(`(\d{1,3}(?:[.,]\d+)?)\s*%`)

type jsonAttendance struct {
	Date     flexText `json:"date"`
	LessonNo flexInt  `json:"lessonNo"`
	Subject  flexText `json:"subject"`
	Type     flexText `json:"type"`
	Label    flexText `json:"label"`
	Category flexText `json:"category"`
}

type attendancePage struct {
	records  []model.AttendanceRecord
	reported *float64
}

// ParseAttendance returns classified records plus their summary. When a
// legacy page states its own percentage it is kept as ReportedPercentage.
func ParseAttendance(body []byte, c *Classifier) ([]model.AttendanceRecord, model.AttendanceSummary, Outcome) {
	page, outcome := dispatch(body,
		attempt[attendancePage]{name: StrategyJSON, parse: func(b []byte) (attendancePage, bool) {
			return attendanceFromJSON(b, c)
		}},
		attempt[attendancePage]{name: StrategyHTMLTree, parse: func(b []byte) (attendancePage, bool) {
			if !looksLikeHTML(b) {
				return attendancePage{}, false
			}
			return attendanceFromRows(treeRows(b), b, c)
		}},
		attempt[attendancePage]{name: StrategyHTMLText, parse: func(b []byte) (attendancePage, bool) {
			return attendanceFromRows(textRows(b), b, c)
		}},
	)
	records := page.records
	if records == nil {
		records = []model.AttendanceRecord{}
	}
	summary := model.Summarize(records)
	summary.ReportedPercentage = page.reported
	return records, summary, outcome
}

func attendanceFromJSON(body []byte, c *Classifier) (attendancePage, bool) {
	if !looksLikeJSON(body) {
		return attendancePage{}, false
	}
	items, ok := decodeList[jsonAttendance](body, "attendances")
	if !ok {
		return attendancePage{}, false
	}
	page := attendancePage{records: make([]model.AttendanceRecord, 0, len(items))}
	for _, it := range items {
		label := firstText(it.Type, it.Label, it.Category)
		if label == "" {
			continue
		}
		page.records = append(page.records, model.AttendanceRecord{
			Date:         it.Date.String(),
			LessonNumber: int(it.LessonNo),
			Subject:      it.Subject.String(),
			Label:        label,
			Category:     c.Classify(label),
		})
	}
	return page, true
}

// attendanceFromRows reads rows shaped date | lesson number | subject | label.
func attendanceFromRows(rows []row, body []byte, c *Classifier) (attendancePage, bool) {
	var page attendancePage
	for _, r := range rows {
		if len(r) < 4 {
			continue
		}
		date := reISODate.FindString(r[0].text)
		label := r[3].text
		if date == "" || label == "" {
			continue
		}
		number := 0
		if m := reLeadingInt.FindStringSubmatch(r[1].text); m != nil {
			number, _ = strconv.Atoi(m[1])
		}
		page.records = append(page.records, model.AttendanceRecord{
			Date:         date,
			LessonNumber: number,
			Subject:      r[2].text,
			Label:        label,
			Category:     c.Classify(label),
		})
	}
	if m := rePercent.FindSubmatch(visibleText(body)); m != nil {
		if v, err := strconv.ParseFloat(strings.Replace(string(m[1]), ",", ".", 1), 64); err == nil && v <= 100 {
			page.reported = &v
		}
	}
	return page, len(page.records) > 0 || page.reported != nil
}

func visibleText(body []byte) []byte {
	return []byte(stripTags(reScriptBody.ReplaceAllString(string(body), " ")))
}
