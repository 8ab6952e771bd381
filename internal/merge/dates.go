package merge

import (
	"fmt"
	"time"

	"tasksync/internal/service"
)

// CombineDateAndTime returns the calendar date from date (YYYY-MM-DD, a
// longer RFC3339 value is truncated to its date) at the time of day of prev,
// both interpreted in loc. Date and time are independent: a backend that only
// stores dates must not erase a time the user set. A nil prev yields midnight.
func CombineDateAndTime(date string, prev *time.Time, loc *time.Location) (time.Time, error) {
	if len(date) > len(service.DateLayout) {
		date = date[:len(service.DateLayout)]
	}
	d, err := time.ParseInLocation(service.DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q: %w", date, err)
	}
	if prev == nil {
		return d, nil
	}
	p := prev.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(),
		p.Hour(), p.Minute(), p.Second(), p.Nanosecond(), loc), nil
}

// DateOf returns the calendar date of t in loc, or "" for nil.
func DateOf(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format(service.DateLayout)
}
