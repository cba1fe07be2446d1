package parser

import (
	"regexp"
	"strings"
	"time"

	"integration-school-portal/internal/model"
)

var (
	reISODate  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	reCategory = regexp.MustCompile(`(?i)(?:kategoria|category)\s*:\s*([^<\n]+)`)
	// Loose grade tokens seen when a cell has no per-grade markup.
	reGradeToken = regexp.MustCompile(`^(?:\d+(?:[.,]\d+)?(?:/\d+(?:[.,]\d+)?)?[+-]?|[A-Fa-f][+-]?|np|bz|\+)$`)
)

type jsonGrade struct {
	Subject  flexText `json:"subject"`
	Grade    flexText `json:"grade"`
	Value    flexText `json:"value"`
	Category flexText `json:"category"`
	Date     flexText `json:"date"`
	AddDate  flexText `json:"addDate"`
	Semester flexInt  `json:"semester"`
}

// ParseGrades returns grades newest first. Entries without a subject or a
// value are dropped.
func ParseGrades(body []byte) ([]model.GradeEntry, Outcome) {
	grades, outcome := dispatch(body,
		attempt[[]model.GradeEntry]{name: StrategyJSON, parse: gradesFromJSON},
		attempt[[]model.GradeEntry]{name: StrategyHTMLTree, parse: func(b []byte) ([]model.GradeEntry, bool) {
			if !looksLikeHTML(b) {
				return nil, false
			}
			return gradesFromRows(treeRows(b), false)
		}},
		attempt[[]model.GradeEntry]{name: StrategyHTMLText, parse: func(b []byte) ([]model.GradeEntry, bool) {
			return gradesFromRows(textRows(b), true)
		}},
	)
	if grades == nil {
		grades = []model.GradeEntry{}
	}
	model.SortGrades(grades)
	return grades, outcome
}

func gradesFromJSON(body []byte) ([]model.GradeEntry, bool) {
	if !looksLikeJSON(body) {
		return nil, false
	}
	records, ok := decodeList[jsonGrade](body, "grades")
	if !ok {
		return nil, false
	}
	grades := make([]model.GradeEntry, 0, len(records))
	for _, r := range records {
		g := model.GradeEntry{
			Subject:  r.Subject.String(),
			Value:    firstText(r.Grade, r.Value),
			Category: r.Category.String(),
			Date:     parseDate(firstText(r.Date, r.AddDate)),
			Semester: int(r.Semester),
		}
		if g.Subject == "" || g.Value == "" {
			continue
		}
		if g.Semester != 1 && g.Semester != 2 {
			g.Semester = model.SemesterFor(g.Date)
		}
		grades = append(grades, g)
	}
	return grades, true
}

// gradesFromRows reads rows shaped subject | semester 1 grades | semester 2
// grades. Columns past the second semester are attributed to semester 2.
func gradesFromRows(rows []row, loose bool) ([]model.GradeEntry, bool) {
	var grades []model.GradeEntry
	for _, r := range rows {
		if len(r) < 2 || r[0].text == "" {
			continue
		}
		subject := r[0].text
		for i, c := range r[1:] {
			semester := i + 1
			if semester > 2 {
				semester = 2
			}
			for _, frag := range c.fragments() {
				values := []string{frag.text}
				if loose || len(c.groups) == 0 {
					values = gradeTokens(frag.text)
				}
				for _, v := range values {
					if v == "" {
						continue
					}
					g := model.GradeEntry{Subject: subject, Value: v, Semester: semester}
					if frag.title != "" {
						g.Category = titleCategory(frag.title)
						g.Date = parseDate(frag.title)
					}
					grades = append(grades, g)
				}
			}
		}
	}
	return grades, len(grades) > 0
}

func gradeTokens(text string) []string {
	var out []string
	for _, tok := range strings.Fields(text) {
		if reGradeToken.MatchString(tok) {
			out = append(out, tok)
		}
	}
	return out
}

func titleCategory(title string) string {
	m := reCategory.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return collapse(m[1])
}

// parseDate finds the first ISO date in s.
func parseDate(s string) *time.Time {
	m := reISODate.FindString(s)
	if m == "" {
		return nil
	}
	t, err := time.Parse(model.DateLayout, m)
	if err != nil {
		return nil
	}
	return &t
}
