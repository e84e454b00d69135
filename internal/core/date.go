package core

import (
	"regexp"
	"time"
)

// DateLayout is the only date format users can query with.
const DateLayout = "02.01.2006"

var datePattern = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day t falls on in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return NewDate(y, int(m), d)
}

// ParseDate accepts exactly DD.MM.YYYY with a real calendar day.
// Other spellings of valid dates ("1.3.2024", "2024-03-01") are rejected.
func ParseDate(text string) (Date, bool) {
	if !datePattern.MatchString(text) {
		return Date{}, false
	}
	t, err := time.ParseInLocation(DateLayout, text, time.UTC)
	if err != nil || t.Year() < 1 {
		return Date{}, false
	}
	return Date{Time: t}, true
}

// Label renders the date the way users type it.
func (d Date) Label() string {
	return d.Format(DateLayout)
}

// Bounds returns the half-open interval [start, end) covering the day in loc.
func (d Date) Bounds(loc *time.Location) (time.Time, time.Time) {
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
