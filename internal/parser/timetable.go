package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"integration-school-portal/internal/model"
)

var (
	reTimeRange   = regexp.MustCompile(`(\d{1,2}:\d{2})\s*[-–]\s*(\d{1,2}:\d{2})`)
	reLeadingInt  = regexp.MustCompile(`^\s*(\d+)`)
	reRoom        = regexp.MustCompile(`(?i)\s*(?:\bs\.|\bsala\b|\broom\b)\s*([\p{L}\d/.\-]+)\s*$`)
	reLessonFlags = regexp.MustCompile(`(?i)\(?\s*(odwołane|odwolane|cancell?ed|zastępstwo|zastepstwo|substitution)\s*\)?`)
)

type jsonLesson struct {
	LessonNo            flexInt  `json:"lessonNo"`
	HourFrom            flexText `json:"hourFrom"`
	HourTo              flexText `json:"hourTo"`
	Start               flexText `json:"start"`
	End                 flexText `json:"end"`
	Subject             flexText `json:"subject"`
	Teacher             flexText `json:"teacher"`
	Classroom           flexText `json:"classroom"`
	Room                flexText `json:"room"`
	IsCanceled          flexBool `json:"isCanceled"`
	IsCancelled         flexBool `json:"isCancelled"`
	IsSubstitutionClass flexBool `json:"isSubstitutionClass"`
	IsSubstitution      flexBool `json:"isSubstitution"`
}

func (l jsonLesson) slot(fallbackNumber int) (model.LessonSlot, bool) {
	s := model.LessonSlot{
		LessonNumber:   int(l.LessonNo),
		Start:          firstText(l.HourFrom, l.Start),
		End:            firstText(l.HourTo, l.End),
		Subject:        l.Subject.String(),
		Teacher:        l.Teacher.String(),
		Room:           firstText(l.Classroom, l.Room),
		IsCancelled:    bool(l.IsCanceled || l.IsCancelled),
		IsSubstitution: bool(l.IsSubstitutionClass || l.IsSubstitution),
	}
	if s.LessonNumber <= 0 {
		s.LessonNumber = fallbackNumber
	}
	return s, s.Subject != ""
}

// ParseTimetable parses one week. weekStart anchors the HTML grid, whose
// columns are weekdays starting on Monday; JSON payloads carry their own
// dates.
func ParseTimetable(body []byte, weekStart time.Time) (model.TimetableMap, Outcome) {
	tt, outcome := dispatch(body,
		attempt[model.TimetableMap]{name: StrategyJSON, parse: timetableFromJSON},
		attempt[model.TimetableMap]{name: StrategyHTMLTree, parse: func(b []byte) (model.TimetableMap, bool) {
			if !looksLikeHTML(b) {
				return nil, false
			}
			return timetableFromRows(treeRows(b), weekStart)
		}},
		attempt[model.TimetableMap]{name: StrategyHTMLText, parse: func(b []byte) (model.TimetableMap, bool) {
			return timetableFromRows(textRows(b), weekStart)
		}},
	)
	if tt == nil {
		tt = model.TimetableMap{}
	}
	tt.Normalize()
	return tt, outcome
}

func timetableFromJSON(body []byte) (model.TimetableMap, bool) {
	if !looksLikeJSON(body) {
		return nil, false
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, false
	}
	days := top
	for k, raw := range top {
		if strings.EqualFold(k, "timetable") {
			days = nil
			if err := json.Unmarshal(raw, &days); err != nil {
				return nil, false
			}
			break
		}
	}
	for k := range days {
		if _, err := time.Parse(model.DateLayout, k); err != nil {
			return nil, false
		}
	}

	tt := model.TimetableMap{}
	for date, raw := range days {
		var periods []json.RawMessage
		if err := json.Unmarshal(raw, &periods); err != nil {
			continue
		}
		for i, period := range periods {
			if s, ok := firstGroup(period, i+1); ok {
				tt[date] = append(tt[date], s)
			}
		}
	}
	return tt, true
}

// firstGroup resolves one period. A period is null, a single lesson, or a
// list of parallel class-groups of which the first non-empty one wins.
func firstGroup(raw json.RawMessage, number int) (model.LessonSlot, bool) {
	var groups []jsonLesson
	if err := json.Unmarshal(raw, &groups); err == nil {
		for _, g := range groups {
			if s, ok := g.slot(number); ok {
				return s, true
			}
		}
		return model.LessonSlot{}, false
	}
	var single jsonLesson
	if err := json.Unmarshal(raw, &single); err != nil {
		return model.LessonSlot{}, false
	}
	return single.slot(number)
}

// timetableFromRows reads the legacy grid: lesson number | hours | Monday
// ... Sunday.
func timetableFromRows(rows []row, weekStart time.Time) (model.TimetableMap, bool) {
	if weekStart.IsZero() {
		return nil, false
	}
	tt := model.TimetableMap{}
	found := false
	for _, r := range rows {
		if len(r) < 3 {
			continue
		}
		m := reLeadingInt.FindStringSubmatch(r[0].text)
		if m == nil {
			continue
		}
		number, err := strconv.Atoi(m[1])
		if err != nil || number <= 0 {
			continue
		}
		var start, end string
		if tr := reTimeRange.FindStringSubmatch(r[1].text); tr != nil {
			start, end = tr[1], tr[2]
		}
		for day, c := range r[2:] {
			if day > 6 {
				break
			}
			text := ""
			for _, frag := range c.fragments() {
				if frag.text != "" {
					text = frag.text
					break
				}
			}
			if text == "" {
				continue
			}
			slot := lessonFromText(text)
			slot.LessonNumber, slot.Start, slot.End = number, start, end
			if slot.Subject == "" {
				continue
			}
			date := model.FormatDate(weekStart.AddDate(0, 0, day))
			tt[date] = append(tt[date], slot)
			found = true
		}
	}
	return tt, found
}

// lessonFromText splits "Subject - Teacher s. Room (odwołane)".
func lessonFromText(text string) model.LessonSlot {
	var s model.LessonSlot
	folded := fold(text)
	s.IsCancelled = strings.Contains(folded, "odwolan") || strings.Contains(folded, "cancel")
	s.IsSubstitution = strings.Contains(folded, "zastepstw") || strings.Contains(folded, "substitut")
	text = collapse(reLessonFlags.ReplaceAllString(text, " "))

	if m := reRoom.FindStringSubmatchIndex(text); m != nil {
		s.Room = text[m[2]:m[3]]
		text = strings.TrimSpace(text[:m[0]])
	}
	subject, teacher, _ := strings.Cut(text, " - ")
	s.Subject = strings.TrimSpace(subject)
	s.Teacher = strings.TrimSpace(teacher)
	return s
}
