package portaltest

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"integration-school-portal/internal/model"
)

func loginPage(token, notice string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html lang="pl"><head><title>Logowanie</title></head><body>`)
	if notice != "" {
		fmt.Fprintf(&b, `<div class="alert">%s</div>`, html.EscapeString(notice))
	}
	b.WriteString(`<form method="post" action="/loguj">`)
	if token != "" {
		fmt.Fprintf(&b, `<input type="hidden" name="_token" value="%s">`, html.EscapeString(token))
	}
	b.WriteString(`<input type="text" name="login"><input type="password" name="pass"><button>Zaloguj</button></form></body></html>`)
	return b.String()
}

func gradesHTML(grades []model.GradeEntry) string {
	type cells [2][]string
	var order []string
	bySubject := map[string]*cells{}
	for _, g := range grades {
		c, ok := bySubject[g.Subject]
		if !ok {
			c = &cells{}
			bySubject[g.Subject] = c
			order = append(order, g.Subject)
		}
		title := "Kategoria: " + g.Category
		if g.Date != nil {
			title += "<br>Data: " + model.FormatDate(*g.Date)
		}
		c[g.Semester-1] = append(c[g.Semester-1], fmt.Sprintf(
			`<span class="grade-box"><a href="#" title="%s">%s</a></span>`,
			html.EscapeString(title), html.EscapeString(g.Value)))
	}

	var b strings.Builder
	b.WriteString(`<html><body><table class="decorated stretch"><thead><tr><th>Przedmiot</th><th>Okres 1</th><th>Okres 2</th></tr></thead><tbody>`)
	for _, subject := range order {
		c := bySubject[subject]
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			html.EscapeString(subject), strings.Join(c[0], " "), strings.Join(c[1], " "))
	}
	b.WriteString(`</tbody></table></body></html>`)
	return b.String()
}

func gradesJSON(grades []model.GradeEntry) ([]byte, error) {
	type grade struct {
		Subject  map[string]string `json:"Subject"`
		Grade    string            `json:"Grade"`
		Category map[string]string `json:"Category"`
		Date     string            `json:"Date,omitempty"`
		Semester int               `json:"Semester"`
	}
	out := struct {
		Grades []grade `json:"Grades"`
	}{Grades: []grade{}}
	for _, g := range grades {
		item := grade{
			Subject:  map[string]string{"Name": g.Subject},
			Grade:    g.Value,
			Category: map[string]string{"Name": g.Category},
			Semester: g.Semester,
		}
		if g.Date != nil {
			item.Date = model.FormatDate(*g.Date)
		}
		out.Grades = append(out.Grades, item)
	}
	return json.Marshal(out)
}

func lessonText(s model.LessonSlot) string {
	text := s.Subject + " - " + s.Teacher + " s. " + s.Room
	switch {
	case s.IsCancelled:
		text += " (odwołane)"
	case s.IsSubstitution:
		text += " (zastępstwo)"
	}
	return text
}

func timetableHTML(tt model.TimetableMap, weekStart time.Time) string {
	var b strings.Builder
	b.WriteString(`<html><body><table class="decorated plan-lekcji"><tr><th>Nr</th><th>Godziny</th>`)
	for _, d := range []string{"Poniedziałek", "Wtorek", "Środa", "Czwartek", "Piątek", "Sobota", "Niedziela"} {
		fmt.Fprintf(&b, "<th>%s</th>", d)
	}
	b.WriteString("</tr>\n")
	for n := 1; n <= len(hours); n++ {
		fmt.Fprintf(&b, "<tr><td>%d</td><td>%s - %s</td>", n, hours[n-1][0], hours[n-1][1])
		for day := 0; day < 7; day++ {
			date := model.FormatDate(weekStart.AddDate(0, 0, day))
			b.WriteString("<td>")
			for _, s := range tt[date] {
				if s.LessonNumber == n {
					fmt.Fprintf(&b, `<div class="text">%s</div>`, html.EscapeString(lessonText(s)))
				}
			}
			b.WriteString("</td>")
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

func timetableJSON(tt model.TimetableMap, weekStart time.Time) ([]byte, error) {
	type lesson struct {
		LessonNo            string            `json:"LessonNo"`
		HourFrom            string            `json:"HourFrom"`
		HourTo              string            `json:"HourTo"`
		Subject             map[string]string `json:"Subject"`
		Teacher             map[string]string `json:"Teacher"`
		Classroom           map[string]string `json:"Classroom"`
		IsCanceled          bool              `json:"IsCanceled"`
		IsSubstitutionClass bool              `json:"IsSubstitutionClass"`
	}
	days := map[string][][]lesson{}
	for day := 0; day < 7; day++ {
		date := model.FormatDate(weekStart.AddDate(0, 0, day))
		periods := [][]lesson{}
		for _, s := range tt[date] {
			for len(periods) < s.LessonNumber-1 {
				periods = append(periods, nil)
			}
			first, last, _ := strings.Cut(s.Teacher, " ")
			periods = append(periods, []lesson{{
				LessonNo:            fmt.Sprint(s.LessonNumber),
				HourFrom:            s.Start,
				HourTo:              s.End,
				Subject:             map[string]string{"Name": s.Subject},
				Teacher:             map[string]string{"FirstName": first, "LastName": last},
				Classroom:           map[string]string{"Name": s.Room},
				IsCanceled:          s.IsCancelled,
				IsSubstitutionClass: s.IsSubstitution,
			}})
		}
		days[date] = periods
	}
	return json.Marshal(map[string]any{"Timetable": days})
}

func attendanceHTML(records []model.AttendanceRecord, reported float64) string {
	var b strings.Builder
	b.WriteString(`<html><body><h3>Frekwencja</h3><table class="decorated center">`)
	b.WriteString(`<tr><th>Data</th><th>Lekcja</th><th>Przedmiot</th><th>Typ</th></tr>` + "\n")
	for _, r := range records {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td><td>%s</td><td>%s</td></tr>\n",
			r.Date, r.LessonNumber, html.EscapeString(r.Subject), html.EscapeString(r.Label))
	}
	fmt.Fprintf(&b, `</table><p class="summary">Frekwencja: %.1f%%</p></body></html>`, reported)
	return b.String()
}

func attendanceJSON(records []model.AttendanceRecord) ([]byte, error) {
	type item struct {
		Date     string `json:"Date"`
		LessonNo int    `json:"LessonNo"`
		Subject  string `json:"Subject"`
		Type     string `json:"Type"`
	}
	out := struct {
		Attendances []item `json:"Attendances"`
	}{Attendances: []item{}}
	for _, r := range records {
		out.Attendances = append(out.Attendances, item{Date: r.Date, LessonNo: r.LessonNumber, Subject: r.Subject, Type: r.Label})
	}
	return json.Marshal(out)
}
