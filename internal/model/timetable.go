package model

import "sort"

type LessonSlot struct {
	LessonNumber   int    `json:"lesson_number"`
	Start          string `json:"start,omitempty"`
	End            string `json:"end,omitempty"`
	Subject        string `json:"subject"`
	Teacher        string `json:"teacher,omitempty"`
	Room           string `json:"room,omitempty"`
	IsCancelled    bool   `json:"is_cancelled"`
	IsSubstitution bool   `json:"is_substitution"`
}

// TimetableMap groups lesson slots by ISO calendar date (YYYY-MM-DD).
type TimetableMap map[string][]LessonSlot

// Normalize drops empty days and orders every day by lesson number.
func (t TimetableMap) Normalize() {
	for date, slots := range t {
		if len(slots) == 0 {
			delete(t, date)
			continue
		}
		sort.SliceStable(slots, func(i, j int) bool {
			return slots[i].LessonNumber < slots[j].LessonNumber
		})
	}
}

// Merge copies every day of other into t, replacing only those days.
func (t TimetableMap) Merge(other TimetableMap) {
	for date, slots := range other {
		t[date] = append([]LessonSlot(nil), slots...)
	}
}

func (t TimetableMap) Clone() TimetableMap {
	out := make(TimetableMap, len(t))
	out.Merge(t)
	return out
}
