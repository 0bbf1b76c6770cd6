// Package window decides whether a yearly anniversary falls inside a
// forward-looking window of days, ignoring the year component.
//
// Dates are projected onto a fixed non-leap reference year and compared as
// day-of-year values with modulo-365 arithmetic, so a window that starts in
// late December continues into January. February 29 is projected onto
// February 28, in both the anniversary and the reference day.
package window

import "time"

const (
	refYear    = 2001 // any non-leap year
	daysInYear = 365
)

// DayOfYear returns t's day-of-year (1..365) in the reference year.
func DayOfYear(t time.Time) int {
	month, day := t.Month(), t.Day()
	if month == time.February && day == 29 {
		day = 28
	}
	return time.Date(refYear, month, day, 0, 0, 0, 0, time.UTC).YearDay()
}

// Window is the half-open interval [start, start+days) over reference days.
type Window struct {
	start int
	days  int
}

// New builds the window that opens on today and spans days reference days.
// days is clamped to [0, 365].
func New(today time.Time, days int) Window {
	days = max(days, 0)
	days = min(days, daysInYear)
	return Window{start: DayOfYear(today), days: days}
}

func (w Window) Start() int { return w.start }
func (w Window) Days() int  { return w.days }

// ContainsDay reports whether the reference day-of-year doy is in the window.
func (w Window) ContainsDay(doy int) bool {
	return (doy-w.start+daysInYear)%daysInYear < w.days
}

func (w Window) Contains(anniversary time.Time) bool {
	return w.ContainsDay(DayOfYear(anniversary))
}

// InWindow reports whether anniversary's month-day falls within
// [today, today+windowDays).
func InWindow(today, anniversary time.Time, windowDays int) bool {
	return New(today, windowDays).Contains(anniversary)
}

// MaxCycleDays is the largest window for which a birthday cycle can close:
// the span around today covers 2*days reference days and must leave at
// least one day of the year outside it.
const MaxCycleDays = (daysInYear - 1) / 2

// Around builds the window [today-days, today+days) over reference days.
// days is clamped to [0, MaxCycleDays].
func Around(today time.Time, days int) Window {
	days = max(days, 0)
	days = min(days, MaxCycleDays)
	start := (DayOfYear(today) - days + daysInYear) % daysInYear
	return Window{start: start, days: 2 * days}
}

// Closed reports whether the cycle for anniversary is over on today: the
// anniversary is neither within the next windowDays days nor within the
// windowDays days that just passed. An anniversary notified anywhere in its
// forward window therefore stays open until windowDays days after the date.
func Closed(today, anniversary time.Time, windowDays int) bool {
	return !Around(today, windowDays).Contains(anniversary)
}
