package service

import "time"

// Clock returns the current instant. Engines never read the wall clock directly,
// so day boundaries can be driven from tests and maintenance jobs.
type Clock func() time.Time

// Calendar turns instants into calendar days of one location.
type Calendar struct {
	Now Clock
	Loc *time.Location
}

// NewCalendar creates a Calendar. A nil clock means time.Now, a nil location UTC.
func NewCalendar(now Clock, loc *time.Location) Calendar {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{Now: now, Loc: loc}
}

// Today returns local midnight of the current day.
func (c Calendar) Today() time.Time {
	return c.DayOf(c.Now())
}

// DayOf returns local midnight of the day containing t.
func (c Calendar) DayOf(t time.Time) time.Time {
	t = t.In(c.Loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.Loc)
}
