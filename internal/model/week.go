package model

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// WeekStart returns the Monday (00:00, same location) of t's ISO week.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseWeek accepts any date inside the week and returns its Monday.
func ParseWeek(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid week date %q: %w", s, err)
	}
	return WeekStart(t), nil
}

func NextWeek(weekStart time.Time) time.Time {
	return weekStart.AddDate(0, 0, 7)
}
