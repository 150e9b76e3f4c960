package reset

import "time"

// Schedule is the monthly reset boundary: a day of month and wall clock time in a
// fixed location. Days past the end of a short month fall on its last day.
type Schedule struct {
	DayOfMonth int
	Hour       int
	Minute     int
	Location   *time.Location
}

func (s Schedule) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// For returns the reset instant for the given month.
func (s Schedule) For(year int, month time.Month) time.Time {
	loc := s.location()
	day := s.DayOfMonth
	if day < 1 {
		day = 1
	}
	if last := daysIn(year, month, loc); day > last {
		day = last
	}
	return time.Date(year, month, day, s.Hour, s.Minute, 0, 0, loc)
}

// Next returns the first reset instant strictly after now.
func (s Schedule) Next(now time.Time) time.Time {
	local := now.In(s.location())
	candidate := s.For(local.Year(), local.Month())
	if candidate.After(now) {
		return candidate
	}
	y, m, _ := local.AddDate(0, 0, -local.Day()+1).AddDate(0, 1, 0).Date()
	return s.For(y, m)
}

// Previous returns the latest reset instant at or before now. It marks the start of the
// current usage cycle.
func (s Schedule) Previous(now time.Time) time.Time {
	local := now.In(s.location())
	candidate := s.For(local.Year(), local.Month())
	if !candidate.After(now) {
		return candidate
	}
	y, m, _ := local.AddDate(0, 0, -local.Day()+1).AddDate(0, -1, 0).Date()
	return s.For(y, m)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
