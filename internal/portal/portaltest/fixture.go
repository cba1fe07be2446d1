package portaltest

import (
	"hash/fnv"
	"math/rand"
	"time"

	"integration-school-portal/internal/model"
)

var (
	subjects   = []string{"Matematyka", "Język polski", "Fizyka", "Historia", "Biologia", "Chemia", "Język angielski"}
	teachers   = []string{"Anna Nowak", "Piotr Kowalski", "Ewa Wiśniewska", "Marek Zieliński", "Joanna Lewandowska"}
	rooms      = []string{"101", "12", "214", "s1", "7A"}
	values     = []string{"1", "2", "3", "4", "5", "6", "4+", "3-", "5-", "2+"}
	categories = []string{"sprawdzian", "kartkówka", "odpowiedź", "praca domowa", "aktywność"}
	hours      = [][2]string{
		{"8:00", "8:45"}, {"8:55", "9:40"}, {"9:50", "10:35"}, {"10:50", "11:35"},
		{"11:45", "12:30"}, {"12:50", "13:35"}, {"13:45", "14:30"}, {"14:40", "15:25"},
	}
	attendanceLabels = []struct {
		label    string
		category model.AttendanceCategory
	}{
		{"nieobecność", model.AttendanceAbsence},
		{"spóźnienie", model.AttendanceLateness},
		{"nieobecność usprawiedliwiona", model.AttendanceExcusedAbsence},
		{"zwolnienie", model.AttendanceExcusedAbsence},
		{"wycieczka", model.AttendanceOther},
	}
	schoolYearStart = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
)

// Fixture is the deterministic data set the fake portal serves for one
// identifier.
type Fixture struct {
	Grades     []model.GradeEntry
	Attendance []model.AttendanceRecord
	Reported   float64
	identifier string
}

func seed(parts ...string) *rand.Rand {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

// NewFixture generates grades and attendance for identifier. The same
// identifier always yields the same data.
func NewFixture(identifier string) Fixture {
	r := seed("fixture", identifier)
	f := Fixture{identifier: identifier}

	n := 6 + r.Intn(10)
	for i := 0; i < n; i++ {
		date := schoolYearStart.AddDate(0, 0, r.Intn(280))
		f.Grades = append(f.Grades, model.GradeEntry{
			Subject:  subjects[r.Intn(len(subjects))],
			Value:    values[r.Intn(len(values))],
			Category: categories[r.Intn(len(categories))],
			Date:     &date,
			Semester: model.SemesterFor(&date),
		})
	}
	model.SortGrades(f.Grades)

	n = 3 + r.Intn(8)
	for i := 0; i < n; i++ {
		label := attendanceLabels[r.Intn(len(attendanceLabels))]
		f.Attendance = append(f.Attendance, model.AttendanceRecord{
			Date:         model.FormatDate(schoolYearStart.AddDate(0, 0, r.Intn(280))),
			LessonNumber: 1 + r.Intn(len(hours)),
			Subject:      subjects[r.Intn(len(subjects))],
			Label:        label.label,
			Category:     label.category,
		})
	}
	f.Reported = float64(80+r.Intn(20)) + 0.5
	return f
}

// Timetable generates the Monday to Friday plan of the week containing
// weekStart. Days may have gaps between lessons.
func (f Fixture) Timetable(weekStart time.Time) model.TimetableMap {
	weekStart = model.WeekStart(weekStart)
	r := seed("timetable", f.identifier, model.FormatDate(weekStart))
	tt := model.TimetableMap{}
	for day := 0; day < 5; day++ {
		date := model.FormatDate(weekStart.AddDate(0, 0, day))
		count := 3 + r.Intn(len(hours)-3)
		for n := 1; n <= count; n++ {
			if n > 1 && r.Intn(6) == 0 {
				continue
			}
			flag := r.Intn(10)
			tt[date] = append(tt[date], model.LessonSlot{
				LessonNumber:   n,
				Start:          hours[n-1][0],
				End:            hours[n-1][1],
				Subject:        subjects[r.Intn(len(subjects))],
				Teacher:        teachers[r.Intn(len(teachers))],
				Room:           rooms[r.Intn(len(rooms))],
				IsCancelled:    flag == 0,
				IsSubstitution: flag == 1,
			})
		}
	}
	tt.Normalize()
	return tt
}
