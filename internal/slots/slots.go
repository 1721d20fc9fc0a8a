// Package slots defines the fixed grid of bookable 30-minute slots in a
// working day and maps busy intervals onto it.
package slots

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	LabelLayout = "15:04"

	DayStartHour = 9
	DayEndHour   = 17

	Duration = 30 * time.Minute
)

// BusyInterval is one occupied period reported by an external calendar.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

var (
	labels = buildLabels()
	index  = buildIndex(labels)
)

func buildLabels() []string {
	out := make([]string, 0, (DayEndHour-DayStartHour)*2)
	for h := DayStartHour; h < DayEndHour; h++ {
		for _, m := range []int{0, 30} {
			out = append(out, fmt.Sprintf("%02d:%02d", h, m))
		}
	}
	return out
}

func buildIndex(ls []string) map[string]int {
	idx := make(map[string]int, len(ls))
	for i, l := range ls {
		idx[l] = i
	}
	return idx
}

// All returns the ordered slot labels of a working day. The returned slice is a copy.
func All() []string {
	out := make([]string, len(labels))
	copy(out, labels)
	return out
}

// Valid reports whether label is one of the grid labels.
func Valid(label string) bool {
	_, ok := index[label]
	return ok
}

// ParseDate parses a YYYY-MM-DD string into midnight of that day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

// Start returns the instant a slot begins on the given day.
func Start(day time.Time, label string) (time.Time, error) {
	if !Valid(label) {
		return time.Time{}, fmt.Errorf("unknown time slot %q", label)
	}
	t, err := time.Parse(LabelLayout, label)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time slot %q: %w", label, err)
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// Bounds returns the working-day window [09:00, 17:00) for day.
func Bounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	loc := day.Location()
	return time.Date(y, m, d, DayStartHour, 0, 0, 0, loc), time.Date(y, m, d, DayEndHour, 0, 0, 0, loc)
}

// Occupied returns the grid labels of day that iv overlaps, in grid order.
// A slot only partly covered by iv counts as occupied.
func Occupied(iv BusyInterval, day time.Time) []string {
	dayStart, dayEnd := Bounds(day)
	start := iv.Start.In(day.Location())
	end := iv.End.In(day.Location())
	if start.Before(dayStart) {
		start = dayStart
	}
	if end.After(dayEnd) {
		end = dayEnd
	}

	var out []string
	for cur := floor(start, dayStart); cur.Before(end); cur = cur.Add(Duration) {
		label := cur.Format(LabelLayout)
		if Valid(label) {
			out = append(out, label)
		}
	}
	return out
}

func floor(t, dayStart time.Time) time.Time {
	offset := t.Sub(dayStart)
	return dayStart.Add(offset - offset%Duration)
}

// Available subtracts every occupied label from the grid. The result keeps
// grid order and never contains duplicates.
func Available(occupied ...[]string) []string {
	taken := make(map[string]struct{})
	for _, set := range occupied {
		for _, l := range set {
			taken[l] = struct{}{}
		}
	}
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := taken[l]; !ok {
			out = append(out, l)
		}
	}
	return out
}
